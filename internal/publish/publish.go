// Package publish models browser-driven upload of a finished video to a
// creator platform: the job description, the page surface a flow drives, and
// the state machine every flow reports through.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/JakeFAU/creative-collector/internal/crawler"
	"github.com/JakeFAU/creative-collector/internal/selector"
)

// State is a publish flow milestone.
type State string

// Flow states. Published, Failed and TimedOut are terminal.
const (
	StateIdle             State = "idle"
	StateSessionValidated State = "session_validated"
	StateUploading        State = "uploading"
	StateMetadataFilled   State = "metadata_filled"
	StateScheduleSet      State = "schedule_set"
	StateSubmitted        State = "submitted"
	StatePublished        State = "published"
	StateFailed           State = "publish_failed"
	StateTimedOut         State = "publish_timeout"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StatePublished || s == StateFailed || s == StateTimedOut
}

var transitions = map[State][]State{
	StateIdle:             {StateSessionValidated, StateFailed},
	StateSessionValidated: {StateUploading, StateFailed},
	StateUploading:        {StateMetadataFilled, StateFailed},
	StateMetadataFilled:   {StateScheduleSet, StateSubmitted, StateFailed},
	StateScheduleSet:      {StateSubmitted, StateFailed},
	StateSubmitted:        {StatePublished, StateFailed, StateTimedOut},
}

// ErrIllegalTransition is returned when a flow skips or reverses a state.
var ErrIllegalTransition = errors.New("illegal publish state transition")

// Machine tracks a single flow's state and the path it took.
type Machine struct {
	state State
	trace []State
}

// NewMachine starts in StateIdle.
func NewMachine() *Machine {
	return &Machine{state: StateIdle, trace: []State{StateIdle}}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Trace returns every state visited, in order.
func (m *Machine) Trace() []State {
	return append([]State(nil), m.trace...)
}

// To moves the machine to next.
func (m *Machine) To(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			m.trace = append(m.trace, next)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
}

// ScheduleLayout is the date format typed into schedule pickers.
const ScheduleLayout = "2006-01-02 15:04"

// MaxTitleRunes is the longest title the upload form accepts.
const MaxTitleRunes = 30

// UploadJob describes one video to publish.
type UploadJob struct {
	Title    string
	FilePath string
	Tags     []string
	// PublishAt schedules the post; nil publishes immediately.
	PublishAt *time.Time
	// AccountFile is the browser storage-state file holding the session.
	AccountFile   string
	ThumbnailPath string
}

// Validate checks the job before a browser is launched. A missing account
// file is reported as ErrSessionInvalid.
func (j UploadJob) Validate() error {
	if strings.TrimSpace(j.FilePath) == "" {
		return errors.New("file path is required")
	}
	if _, err := os.Stat(j.FilePath); err != nil {
		return fmt.Errorf("video file: %w", err)
	}
	if j.ThumbnailPath != "" {
		if _, err := os.Stat(j.ThumbnailPath); err != nil {
			return fmt.Errorf("thumbnail file: %w", err)
		}
	}
	if strings.TrimSpace(j.AccountFile) == "" {
		return fmt.Errorf("%w: no account file", crawler.ErrSessionInvalid)
	}
	if _, err := os.Stat(j.AccountFile); err != nil {
		return fmt.Errorf("%w: %v", crawler.ErrSessionInvalid, err)
	}
	return nil
}

// DisplayTitle is the title truncated to what the form accepts.
func (j UploadJob) DisplayTitle() string {
	return crawler.Truncate(strings.TrimSpace(j.Title), MaxTitleRunes)
}

// CleanTags strips leading '#' and drops blanks and repeats.
func (j UploadJob) CleanTags() []string {
	out := make([]string, 0, len(j.Tags))
	for _, t := range j.Tags {
		out = append(out, strings.TrimLeft(strings.TrimSpace(t), "#"))
	}
	return crawler.DedupeStrings(out)
}

// Page is the browser tab a publish flow drives.
type Page interface {
	selector.Probe
	Goto(ctx context.Context, url string) error
	URL() string
	Fill(ctx context.Context, sel, value string) error
	// Type sends text key by key to the element.
	Type(ctx context.Context, sel, text string) error
	Press(ctx context.Context, sel, key string) error
	// KeyboardType and KeyboardPress act on whatever has focus.
	KeyboardType(ctx context.Context, text string) error
	KeyboardPress(ctx context.Context, key string) error
	SetInputFiles(ctx context.Context, sel, path string) error
	Disabled(ctx context.Context, sel string) (bool, error)
}

// Session is a launched browser context with one page.
type Session interface {
	Page() Page
	// SaveStorageState writes cookies and local storage to path.
	SaveStorageState(ctx context.Context, path string) error
	Close() error
}

// Launcher starts sessions from a stored account state.
type Launcher interface {
	Launch(ctx context.Context, storageState string) (Session, error)
}

// Result reports how a flow ended.
type Result struct {
	State State
	Trace []State
	// Reason explains a publish_failed or publish_timeout ending.
	Reason string
	// UploadConfirmed is false when the upload marker never appeared and the
	// flow continued on a best-effort basis.
	UploadConfirmed bool
	Duration        time.Duration
}
