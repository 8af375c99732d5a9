package cover

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/JakeFAU/creative-collector/internal/crawler"
)

// Placeholder geometry and palette.
const (
	PlaceholderWidth  = 800
	PlaceholderHeight = 600
	Watermark         = "自创"
)

var (
	backgroundColor = color.RGBA{R: 240, G: 240, B: 240, A: 255}
	textColor       = color.RGBA{R: 50, G: 50, B: 50, A: 255}
	watermarkColor  = color.RGBA{R: 100, G: 100, B: 100, A: 255}
)

// DefaultFontPaths are tried in order; the first parseable font wins.
var DefaultFontPaths = []string{
	"/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc",
	"/usr/share/fonts/truetype/wqy/wqy-microhei.ttc",
	"/System/Library/Fonts/PingFang.ttc",
	"C:/Windows/Fonts/simhei.ttf",
	"C:/Windows/Fonts/simsun.ttc",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

// TokenSource yields random name tokens.
type TokenSource interface {
	Token(n int) (string, error)
}

// Placeholder renders covers for self-authored submissions.
type Placeholder struct {
	store     crawler.MediaStore
	tokens    TokenSource
	fontPaths []string
	logger    *zap.Logger
}

// NewPlaceholder builds a Placeholder. A nil fontPaths uses DefaultFontPaths.
func NewPlaceholder(store crawler.MediaStore, tokens TokenSource, fontPaths []string, logger *zap.Logger) *Placeholder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fontPaths == nil {
		fontPaths = DefaultFontPaths
	}
	return &Placeholder{store: store, tokens: tokens, fontPaths: fontPaths, logger: logger.Named("placeholder")}
}

// Generate renders text with the watermark, stores it as
// creative_collection/custom_<token>.png and returns its managed URL.
func (p *Placeholder) Generate(ctx context.Context, text string) (string, error) {
	token, err := p.tokens.Token(8)
	if err != nil {
		return "", fmt.Errorf("placeholder name: %w", err)
	}
	img := p.Render(text)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode placeholder: %w", err)
	}
	rel := crawler.ManagedPath(crawler.MediaPrefix, "custom_"+token+".png")
	if _, err := p.store.PutObject(ctx, rel, "image/png", &buf); err != nil {
		return "", fmt.Errorf("store placeholder: %w", err)
	}
	return crawler.ManagedFileURL(rel), nil
}

// Render draws the placeholder image.
func (p *Placeholder) Render(text string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, PlaceholderWidth, PlaceholderHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: backgroundColor}, image.Point{}, draw.Src)

	large, small := p.faces()
	lines := wrap(large, strings.TrimSpace(text), PlaceholderWidth-80)
	lineHeight := large.Metrics().Height.Ceil()
	if lineHeight == 0 {
		lineHeight = 16
	}
	top := (PlaceholderHeight - lineHeight*len(lines)) / 2
	for i, line := range lines {
		w := font.MeasureString(large, line).Ceil()
		x := (PlaceholderWidth - w) / 2
		y := top + i*lineHeight + large.Metrics().Ascent.Ceil()
		drawString(img, large, textColor, x, y, line)
	}

	w := font.MeasureString(small, Watermark).Ceil()
	drawString(img, small, watermarkColor, PlaceholderWidth-w-20, PlaceholderHeight-20, Watermark)
	return img
}

func drawString(dst draw.Image, face font.Face, c color.Color, x, y int, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func (p *Placeholder) faces() (font.Face, font.Face) {
	for _, path := range p.fontPaths {
		f, err := loadFont(path)
		if err != nil {
			continue
		}
		large, err := opentype.NewFace(f, &opentype.FaceOptions{Size: 48, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			continue
		}
		small, err := opentype.NewFace(f, &opentype.FaceOptions{Size: 24, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			continue
		}
		return large, small
	}
	p.logger.Debug("no system font found, using basic font")
	return basicfont.Face7x13, basicfont.Face7x13
}

func loadFont(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(strings.ToLower(path), ".ttc") {
		coll, err := opentype.ParseCollection(data)
		if err != nil {
			return nil, err
		}
		return coll.Font(0)
	}
	return opentype.Parse(data)
}

// wrap breaks s into lines no wider than maxWidth pixels.
func wrap(face font.Face, s string, maxWidth int) []string {
	if s == "" {
		return []string{""}
	}
	var (
		lines []string
		cur   []rune
	)
	for _, r := range s {
		if r == '\n' {
			lines = append(lines, string(cur))
			cur = cur[:0]
			continue
		}
		next := append(cur, r)
		if len(cur) > 0 && font.MeasureString(face, string(next)).Ceil() > maxWidth {
			lines = append(lines, string(cur))
			cur = []rune{r}
			continue
		}
		cur = next
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}
