package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names a task lifecycle milestone.
type Stage string

// Supported stages, in the order a successful task passes through them.
const (
	StageQueued     Stage = "TASK_QUEUED"
	StageStarted    Stage = "TASK_STARTED"
	StageClassified Stage = "TASK_CLASSIFIED"
	StageCrawled    Stage = "TASK_CRAWLED"
	StageCompleted  Stage = "TASK_COMPLETED"
	StageFailed     Stage = "TASK_FAILED"
	StageTimeout    Stage = "TASK_TIMEOUT"
	StageCanceled   Stage = "TASK_CANCELED"
)

// Terminal reports whether s ends a task.
func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageTimeout, StageCanceled:
		return true
	default:
		return false
	}
}

// Event is one milestone reported for a task.
type Event struct {
	// TaskID is the 16-byte form of the task UUID.
	TaskID   [16]byte
	TS       time.Time
	Stage    Stage
	Platform string
	// URL is the submitted source URL.
	URL      string
	Progress int
	// Dur is the time since the task started; set on terminal stages.
	Dur  time.Duration
	Note string
}

// Validate rejects malformed events before they enter the hub.
func (e Event) Validate() error {
	if e.TaskID == [16]byte{} {
		return errors.New("task id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageQueued, StageStarted, StageClassified, StageCrawled,
		StageCompleted, StageFailed, StageTimeout, StageCanceled:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Progress < 0 || e.Progress > 100 {
		return fmt.Errorf("progress %d out of range", e.Progress)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// TaskUUID converts the binary task ID for repositories.
func (e Event) TaskUUID() uuid.UUID {
	return uuid.UUID(e.TaskID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
