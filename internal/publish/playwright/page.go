package playwright

import (
	"context"

	pw "github.com/playwright-community/playwright-go"
)

// Page adapts a Playwright page to publish.Page. Playwright calls are not
// context aware, so ctx is checked before each one.
type Page struct {
	page pw.Page
}

func (p *Page) first(sel string) pw.Locator {
	return p.page.Locator(sel).First()
}

// Count implements selector.Probe.
func (p *Page) Count(ctx context.Context, sel string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.page.Locator(sel).Count()
}

// Visible implements selector.Probe.
func (p *Page) Visible(ctx context.Context, sel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.first(sel).IsVisible()
}

// Text implements selector.Probe.
func (p *Page) Text(ctx context.Context, sel string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.first(sel).TextContent()
}

// Texts implements selector.Probe.
func (p *Page) Texts(ctx context.Context, sel string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.page.Locator(sel).AllTextContents()
}

// Attr implements selector.Probe.
func (p *Page) Attr(ctx context.Context, sel, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, err := p.first(sel).GetAttribute(name)
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

// Click implements selector.Probe.
func (p *Page) Click(ctx context.Context, sel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.first(sel).Click()
}

// Goto navigates and waits for DOMContentLoaded.
func (p *Page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, pw.PageGotoOptions{WaitUntil: pw.WaitUntilStateDomcontentloaded})
	return err
}

// URL returns the current location.
func (p *Page) URL() string {
	return p.page.URL()
}

// Fill replaces the value of an input.
func (p *Page) Fill(ctx context.Context, sel, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.first(sel).Fill(value)
}

// Type sends text key by key.
func (p *Page) Type(ctx context.Context, sel, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.first(sel).PressSequentially(text)
}

// Press sends one key to the element.
func (p *Page) Press(ctx context.Context, sel, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.first(sel).Press(key)
}

// KeyboardType types into the focused element.
func (p *Page) KeyboardType(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Keyboard().Type(text)
}

// KeyboardPress presses a key on the focused element.
func (p *Page) KeyboardPress(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Keyboard().Press(key)
}

// SetInputFiles attaches path to a file input.
func (p *Page) SetInputFiles(ctx context.Context, sel, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.first(sel).SetInputFiles(path)
}

// Disabled reports whether the element is disabled.
func (p *Page) Disabled(ctx context.Context, sel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.first(sel).IsDisabled()
}
