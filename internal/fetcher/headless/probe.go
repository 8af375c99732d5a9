package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chromedp/chromedp"
)

// errNoElement is returned when a selector matches nothing.
var errNoElement = errors.New("no element matches selector")

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func countScript(sel string) string {
	return fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(sel))
}

func visibleScript(sel string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	const style = window.getComputedStyle(el);
	if (style.visibility === "hidden" || style.display === "none") return false;
	return el.getClientRects().length > 0;
})()`, jsString(sel))
}

func textScript(sel string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return null;
	return el.innerText || el.textContent || "";
})()`, jsString(sel))
}

func textsScript(sel string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(el => el.innerText || el.textContent || "")`,
		jsString(sel))
}

func attrScript(sel, name string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return {found: false, ok: false, value: ""};
	const v = el.getAttribute(%s);
	return {found: true, ok: v !== null, value: v || ""};
})()`, jsString(sel), jsString(name))
}

func clickScript(sel string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	el.click();
	return true;
})()`, jsString(sel))
}

// Count returns how many elements match sel.
func (s *Session) Count(ctx context.Context, sel string) (int, error) {
	var n int
	if err := s.run(ctx, chromedp.Evaluate(countScript(sel), &n)); err != nil {
		return 0, fmt.Errorf("count %q: %w", sel, err)
	}
	return n, nil
}

// Visible reports whether the first match is rendered.
func (s *Session) Visible(ctx context.Context, sel string) (bool, error) {
	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(visibleScript(sel), &ok)); err != nil {
		return false, fmt.Errorf("visible %q: %w", sel, err)
	}
	return ok, nil
}

// Text returns the inner text of the first match.
func (s *Session) Text(ctx context.Context, sel string) (string, error) {
	var text *string
	if err := s.run(ctx, chromedp.Evaluate(textScript(sel), &text)); err != nil {
		return "", fmt.Errorf("text %q: %w", sel, err)
	}
	if text == nil {
		return "", errNoElement
	}
	return *text, nil
}

// Texts returns the inner text of every match.
func (s *Session) Texts(ctx context.Context, sel string) ([]string, error) {
	var texts []string
	if err := s.run(ctx, chromedp.Evaluate(textsScript(sel), &texts)); err != nil {
		return nil, fmt.Errorf("texts %q: %w", sel, err)
	}
	return texts, nil
}

type attrResult struct {
	Found bool   `json:"found"`
	OK    bool   `json:"ok"`
	Value string `json:"value"`
}

// Attr reads an attribute of the first match.
func (s *Session) Attr(ctx context.Context, sel, name string) (string, bool, error) {
	var res attrResult
	if err := s.run(ctx, chromedp.Evaluate(attrScript(sel, name), &res)); err != nil {
		return "", false, fmt.Errorf("attr %q: %w", sel, err)
	}
	if !res.Found {
		return "", false, errNoElement
	}
	return res.Value, res.OK, nil
}

// Click clicks the first match through the DOM.
func (s *Session) Click(ctx context.Context, sel string) error {
	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(clickScript(sel), &clicked)); err != nil {
		return fmt.Errorf("click %q: %w", sel, err)
	}
	if !clicked {
		return errNoElement
	}
	return nil
}
