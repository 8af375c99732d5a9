package crawler

import (
	"context"
	"io"
	"time"
)

// TaskStore persists task state. UpdateTask must apply Task.Apply atomically
// so concurrent writers never lose an update.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	UpdateTask(ctx context.Context, taskID string, upd TaskUpdate) (Task, error)
	GetTask(ctx context.Context, taskID string) (Task, error)
}

// RecordStore persists the collection record log. AppendRecord assigns the
// next monotonically increasing ID.
type RecordStore interface {
	AppendRecord(ctx context.Context, rec CollectionRecord) (CollectionRecord, error)
	GetRecord(ctx context.Context, id int64) (CollectionRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]CollectionRecord, int, error)
	DeleteRecord(ctx context.Context, id int64) (CollectionRecord, error)
}

// MediaStore holds managed media files (videos, covers) addressed by a
// forward-slash relative path.
type MediaStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	OpenObject(ctx context.Context, path string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, path string) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for collection tasks.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Crawler extracts RawMedia from a platform page.
type Crawler interface {
	Platform() Platform
	Crawl(ctx context.Context, url string) (RawMedia, error)
}

// Hasher computes digests used for collision-resistant names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
