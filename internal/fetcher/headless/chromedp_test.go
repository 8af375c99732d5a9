package headless

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}, nil); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	b, err := NewChromedp(Config{MaxParallel: 2}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cap(b.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(b.limiter))
	}
	if b.cfg.NavigationTimeout != 40*time.Second {
		t.Fatalf("expected default navigation timeout, got %v", b.cfg.NavigationTimeout)
	}
}

func stepNames(plan []launchStep) []string {
	names := make([]string, 0, len(plan))
	for _, s := range plan {
		names = append(names, s.name)
	}
	return names
}

func TestLaunchPlanOrder(t *testing.T) {
	t.Parallel()

	b, err := NewChromedp(Config{ChromePaths: []string{filepath.Join(t.TempDir(), "missing")}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(stepNames(b.launchPlan()), ","); got != "bundled,bare" {
		t.Fatalf("unexpected plan without local chrome: %s", got)
	}

	chrome := filepath.Join(t.TempDir(), "chrome")
	if err := os.WriteFile(chrome, []byte{}, 0o755); err != nil {
		t.Fatalf("write fake chrome: %v", err)
	}
	b, err = NewChromedp(Config{ChromePaths: []string{"/nope/chrome", chrome}, Proxy: "http://127.0.0.1:8080"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	plan := b.launchPlan()
	if got := strings.Join(stepNames(plan), ","); got != "local,bundled,bare" {
		t.Fatalf("unexpected plan with local chrome: %s", got)
	}
	if len(plan[0].opts) <= len(plan[2].opts) {
		t.Fatal("expected hardened steps to carry more options than the bare launch")
	}
}

func TestLimiterAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	b, err := NewChromedp(Config{MaxParallel: 1}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := b.acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	b.release()
	if err := b.acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestScriptsQuoteSelectors(t *testing.T) {
	t.Parallel()

	sel := `meta[property="og:image"]`
	if got := countScript(sel); !strings.Contains(got, `"meta[property=\"og:image\"]"`) {
		t.Fatalf("selector not JSON-quoted: %s", got)
	}
	if got := attrScript(sel, "content"); !strings.Contains(got, `getAttribute("content")`) {
		t.Fatalf("attribute not quoted: %s", got)
	}
}

func TestResponseMetaCapturesDocumentStatus(t *testing.T) {
	t.Parallel()

	m := &responseMeta{}
	m.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404},
	})
	if m.status() != 0 {
		t.Fatalf("expected non-document responses to be ignored, got %d", m.status())
	}
	m.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 403},
	})
	if m.status() != 403 {
		t.Fatalf("expected document status, got %d", m.status())
	}
}

func TestDisabledOpener(t *testing.T) {
	t.Parallel()

	if _, err := NewDisabled().Open(context.Background()); !errors.Is(err, ErrBrowserDisabled) {
		t.Fatalf("expected ErrBrowserDisabled, got %v", err)
	}
}
