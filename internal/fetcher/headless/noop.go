package headless

import (
	"context"
	"errors"
)

// ErrBrowserDisabled is returned by Disabled.
var ErrBrowserDisabled = errors.New("browser crawling disabled")

// Disabled implements Opener when no browser may be launched, so platform
// crawls fail fast with a clear error.
type Disabled struct{}

// NewDisabled creates a Disabled opener.
func NewDisabled() *Disabled {
	return &Disabled{}
}

// Open always fails.
func (Disabled) Open(context.Context) (Page, error) {
	return nil, ErrBrowserDisabled
}
