// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator creates UUID v7 task IDs and short random tokens.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Token returns n random hex characters (n <= 32) for file names.
func (Generator) Token(n int) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	s := strings.ReplaceAll(id.String(), "-", "")
	if n <= 0 || n > len(s) {
		n = len(s)
	}
	return s[:n], nil
}

// Parse validates a task ID and returns its raw bytes.
func Parse(id string) ([16]byte, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse task id: %w", err)
	}
	return u, nil
}
