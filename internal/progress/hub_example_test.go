package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type exampleCountingSink struct {
	total int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Event) error {
	s.total += len(batch)
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit emits a stage event and flushes it via Close.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1, MaxBatchWait: time.Second}, sink)

	hub.Emit(Event{
		TaskID:   UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001")),
		TS:       time.Unix(0, 0),
		Stage:    StageQueued,
		Platform: "toutiao",
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}
	fmt.Println(sink.total)
	// Output: 1
}
