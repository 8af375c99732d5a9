// Package crawler defines core types shared across subsystems.
package crawler

import (
	"time"
)

// TaskStatus represents the lifecycle state of a collection task.
type TaskStatus string

// Task status values persisted in the task store.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusTimeout    TaskStatus = "timeout"
	TaskStatusCanceled   TaskStatus = "canceled"
	TaskStatusNotFound   TaskStatus = "not_found"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusTimeout, TaskStatusCanceled:
		return true
	default:
		return false
	}
}

// Progress milestones reported while a task runs.
const (
	ProgressQueued     = 0
	ProgressStarted    = 10
	ProgressClassified = 20
	ProgressCrawled    = 80
	ProgressDone       = 100
)

// RawMedia is the metadata extracted from a source page.
type RawMedia struct {
	Title    string   `json:"title"`
	Tags     []string `json:"tags"`
	CoverURL string   `json:"cover_url"`
	VideoURL string   `json:"video_url"`
	Subtitle string   `json:"subtitle"`
}

// Task represents one collection request and its progress.
type Task struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Progress  int        `json:"progress"`
	SourceURL string     `json:"source_url"`
	Platform  Platform   `json:"platform"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Result    *RawMedia  `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// TaskUpdate describes a single transition applied to a stored task.
type TaskUpdate struct {
	Status   TaskStatus
	Progress int
	Result   *RawMedia
	Error    string
}

// Apply validates upd against the current task state and returns the updated
// task. Progress never decreases and terminal tasks never change.
func (t Task) Apply(upd TaskUpdate, now time.Time) (Task, error) {
	if t.Status.Terminal() {
		return t, ErrTaskTerminal
	}
	if upd.Progress < t.Progress {
		return t, ErrProgressRegression
	}
	if upd.Progress > ProgressDone {
		upd.Progress = ProgressDone
	}
	if upd.Status.Terminal() {
		upd.Progress = ProgressDone
	}
	if upd.Status != "" {
		t.Status = upd.Status
	}
	t.Progress = upd.Progress
	if upd.Result != nil {
		res := upd.Result.Clone()
		t.Result = &res
	}
	if upd.Error != "" {
		t.Error = upd.Error
	}
	t.UpdatedAt = now
	return t, nil
}

// Clone returns a deep copy of the media.
func (m RawMedia) Clone() RawMedia {
	cp := m
	if m.Tags != nil {
		cp.Tags = append([]string(nil), m.Tags...)
	}
	return cp
}

// RecordStatus is the outcome stored with a collection record.
type RecordStatus string

// Record status values.
const (
	RecordStatusSuccess RecordStatus = "success"
	RecordStatusFailed  RecordStatus = "failed"
)

// CollectionRecord is the persisted, user-facing result of one collection attempt.
type CollectionRecord struct {
	ID             int64        `json:"id"`
	Title          string       `json:"title"`
	Tags           []string     `json:"tags"`
	CoverURL       string       `json:"cover_url"`
	VideoURL       string       `json:"video_url"`
	Script         string       `json:"script"`
	SourcePlatform Platform     `json:"source_platform"`
	Status         RecordStatus `json:"status"`
	ErrorMessage   *string      `json:"error_message"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r CollectionRecord) Clone() CollectionRecord {
	cp := r
	if r.Tags != nil {
		cp.Tags = append([]string(nil), r.Tags...)
	}
	if r.ErrorMessage != nil {
		msg := *r.ErrorMessage
		cp.ErrorMessage = &msg
	}
	return cp
}

// Default and maximum page sizes for record listings.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// RecordFilter selects a page of collection records.
type RecordFilter struct {
	Page     int
	PageSize int
	Status   RecordStatus
	Platform Platform
}

// Normalize clamps paging values into their accepted ranges.
func (f RecordFilter) Normalize() RecordFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset returns the zero-based index of the first record on the page.
func (f RecordFilter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Matches reports whether rec passes the status and platform filters.
func (f RecordFilter) Matches(rec CollectionRecord) bool {
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.Platform != "" && rec.SourcePlatform != f.Platform {
		return false
	}
	return true
}

// QueueItem wraps a task ready to run. Platform is classified once at
// submission and carried through the whole lifecycle.
type QueueItem struct {
	TaskID    string
	URL       string
	Platform  Platform
	Attempt   int
	Submitted int64
}
