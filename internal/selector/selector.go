// Package selector implements fail-soft element resolution for DOMs whose
// markup changes without notice. A logical target ("the title", "the publish
// button") is described by a Table of ordered candidates; the first candidate
// that exists and is visible wins. Probe failures and panics are treated as
// "no match" and never abort the caller.
package selector

import (
	"context"
	"fmt"
	"strings"
)

// Probe inspects and acts on DOM elements addressed by a selector string.
// Implementations exist for chromedp (crawling) and playwright (publishing).
type Probe interface {
	Count(ctx context.Context, sel string) (int, error)
	Visible(ctx context.Context, sel string) (bool, error)
	Text(ctx context.Context, sel string) (string, error)
	Texts(ctx context.Context, sel string) ([]string, error)
	Attr(ctx context.Context, sel, name string) (string, bool, error)
	Click(ctx context.Context, sel string) error
}

// Candidate is one way of locating a logical target.
type Candidate struct {
	Selector string `yaml:"selector"`
	// Attr reads the named attribute instead of the element text.
	Attr string `yaml:"attr,omitempty"`
	// AllowHidden matches on existence alone (meta tags, file inputs).
	AllowHidden bool `yaml:"allow_hidden,omitempty"`
}

// Table is the ordered candidate list for a logical target.
type Table struct {
	Target     string
	Candidates []Candidate
}

// NewTable builds a Table from plain selectors.
func NewTable(target string, selectors ...string) Table {
	t := Table{Target: target}
	for _, s := range selectors {
		t.Candidates = append(t.Candidates, Candidate{Selector: s})
	}
	return t
}

// With appends candidates and returns the table.
func (t Table) With(c ...Candidate) Table {
	t.Candidates = append(append([]Candidate(nil), t.Candidates...), c...)
	return t
}

// Result describes which candidate matched and what it produced.
type Result struct {
	Matched   bool
	Index     int
	Candidate Candidate
	Value     string
	Values    []string
}

func noMatch() Result {
	return Result{Index: -1}
}

// Action runs against the first matching candidate. Returning an error skips
// to the next candidate.
type Action func(ctx context.Context, p Probe, c Candidate) (Result, error)

// Resolve evaluates the table first-match-wins and runs act on the winner.
func Resolve(ctx context.Context, p Probe, t Table, act Action) Result {
	for i, c := range t.Candidates {
		if ctx.Err() != nil {
			break
		}
		if !matches(ctx, p, c) {
			continue
		}
		res, err := safeAct(ctx, p, c, act)
		if err != nil {
			continue
		}
		res.Matched = true
		res.Index = i
		res.Candidate = c
		return res
	}
	return noMatch()
}

// Matches reports whether the candidate exists and, unless AllowHidden is set,
// is visible.
func Matches(ctx context.Context, p Probe, c Candidate) bool {
	return matches(ctx, p, c)
}

func matches(ctx context.Context, p Probe, c Candidate) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	n, err := p.Count(ctx, c.Selector)
	if err != nil || n == 0 {
		return false
	}
	if c.AllowHidden {
		return true
	}
	visible, err := p.Visible(ctx, c.Selector)
	return err == nil && visible
}

func safeAct(ctx context.Context, p Probe, c Candidate, act Action) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("selector %q panicked: %v", c.Selector, r)
		}
	}()
	if act == nil {
		return Result{}, nil
	}
	return act(ctx, p, c)
}

// Read returns the text (or Attr) of the first matching candidate with a
// non-empty value. No match yields "".
func Read(ctx context.Context, p Probe, t Table) string {
	res := Resolve(ctx, p, t, readValue)
	return res.Value
}

// ReadText reads element text, ignoring any Attr on the candidates.
func ReadText(ctx context.Context, p Probe, t Table) string {
	return Read(ctx, p, withAttr(t, ""))
}

// ReadAttr reads the named attribute from every candidate lacking its own Attr.
func ReadAttr(ctx context.Context, p Probe, t Table, name string) string {
	return Read(ctx, p, withAttr(t, name))
}

func withAttr(t Table, name string) Table {
	out := Table{Target: t.Target, Candidates: make([]Candidate, len(t.Candidates))}
	for i, c := range t.Candidates {
		if name == "" || c.Attr == "" {
			c.Attr = name
		}
		out.Candidates[i] = c
	}
	return out
}

// ReadResult is Read returning the full match description.
func ReadResult(ctx context.Context, p Probe, t Table) Result {
	return Resolve(ctx, p, t, readValue)
}

func readValue(ctx context.Context, p Probe, c Candidate) (Result, error) {
	var (
		v   string
		err error
	)
	if c.Attr != "" {
		var ok bool
		v, ok, err = p.Attr(ctx, c.Selector, c.Attr)
		if err == nil && !ok {
			err = fmt.Errorf("attribute %q missing", c.Attr)
		}
	} else {
		v, err = p.Text(ctx, c.Selector)
	}
	if err != nil {
		return Result{}, err
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return Result{}, fmt.Errorf("empty value for %q", c.Selector)
	}
	return Result{Value: v}, nil
}

// ReadAll returns the texts of every element matched by the first matching
// candidate.
func ReadAll(ctx context.Context, p Probe, t Table) []string {
	res := Resolve(ctx, p, t, readValues)
	return res.Values
}

// Collect gathers the texts of every matching candidate in table order.
func Collect(ctx context.Context, p Probe, t Table) []string {
	var out []string
	for _, c := range t.Candidates {
		if ctx.Err() != nil {
			break
		}
		if !matches(ctx, p, c) {
			continue
		}
		res, err := safeAct(ctx, p, c, readValues)
		if err != nil {
			continue
		}
		out = append(out, res.Values...)
	}
	return out
}

func readValues(ctx context.Context, p Probe, c Candidate) (Result, error) {
	texts, err := p.Texts(ctx, c.Selector)
	if err != nil {
		return Result{}, err
	}
	var values []string
	for _, s := range texts {
		if s = strings.TrimSpace(s); s != "" {
			values = append(values, s)
		}
	}
	if len(values) == 0 {
		return Result{}, fmt.Errorf("no text under %q", c.Selector)
	}
	return Result{Values: values}, nil
}

// Click clicks the first matching candidate. An unmatched result is a
// non-fatal failure; callers decide whether to escalate.
func Click(ctx context.Context, p Probe, t Table) Result {
	return Resolve(ctx, p, t, func(ctx context.Context, p Probe, c Candidate) (Result, error) {
		if err := p.Click(ctx, c.Selector); err != nil {
			return Result{}, fmt.Errorf("click %q: %w", c.Selector, err)
		}
		return Result{}, nil
	})
}

// Any reports whether any candidate matches.
func Any(ctx context.Context, p Probe, t Table) bool {
	return Resolve(ctx, p, t, nil).Matched
}
