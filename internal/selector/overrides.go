package selector

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Overrides replaces built-in candidate lists without a code change. The
// document is keyed by scope (a platform or flow name) and then by target:
//
//	douyin:
//	  title:
//	    - selector: "h1[data-e2e='video-desc']"
//	    - selector: "meta[property='og:title']"
//	      attr: content
//	      allow_hidden: true
type Overrides map[string]map[string][]Candidate

// LoadOverrides reads an override document. A missing path yields an empty set.
func LoadOverrides(path string) (Overrides, error) {
	if strings.TrimSpace(path) == "" {
		return Overrides{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Overrides{}, nil
		}
		return nil, fmt.Errorf("read selector overrides: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes an override document and validates every candidate.
func ParseOverrides(data []byte) (Overrides, error) {
	out := Overrides{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode selector overrides: %w", err)
	}
	for scope, targets := range out {
		for target, cands := range targets {
			for i, c := range cands {
				if strings.TrimSpace(c.Selector) == "" {
					return nil, fmt.Errorf("%s.%s[%d]: selector is required", scope, target, i)
				}
			}
		}
	}
	return out, nil
}

// Apply returns t with its candidates replaced when an override exists for
// scope and t.Target.
func (o Overrides) Apply(scope string, t Table) Table {
	if o == nil {
		return t
	}
	cands, ok := o[scope][t.Target]
	if !ok || len(cands) == 0 {
		return t
	}
	t.Candidates = append([]Candidate(nil), cands...)
	return t
}
