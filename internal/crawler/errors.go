package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the collection and publish pipelines.
var (
	ErrUnsupportedURL     = errors.New("unsupported url")
	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskExists         = errors.New("task already exists")
	ErrTaskTerminal       = errors.New("task already terminal")
	ErrProgressRegression = errors.New("progress may not decrease")
	ErrRecordNotFound     = errors.New("record not found")
	ErrObjectNotFound     = errors.New("object not found")
	ErrSessionInvalid     = errors.New("session invalid")
	ErrPublishTimeout     = errors.New("publish timed out")
	ErrQueueClosed        = errors.New("queue closed")
)

// CrawlError wraps a browser or network failure during collection.
type CrawlError struct {
	Platform Platform
	URL      string
	Err      error
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("crawl %s %s: %v", e.Platform, e.URL, e.Err)
}

func (e *CrawlError) Unwrap() error {
	return e.Err
}

// StoreIOError wraps a persistence failure.
type StoreIOError struct {
	Op  string
	Err error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreIOError) Unwrap() error {
	return e.Err
}

// UnsupportedURL builds an error wrapping ErrUnsupportedURL with context.
func UnsupportedURL(platform Platform, url string) error {
	return fmt.Errorf("%w: %s rejects %q", ErrUnsupportedURL, platform, url)
}
