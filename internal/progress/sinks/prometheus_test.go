package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creative-collector/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	id := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{TaskID: id, TS: now, Stage: progress.StageQueued, Platform: "douyin"},
		{TaskID: id, TS: now, Stage: progress.StageStarted, Platform: "douyin", Progress: 10},
		{TaskID: id, TS: now, Stage: progress.StageStarted, Platform: "douyin", Progress: 10},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{TaskID: id, TS: now, Stage: progress.StageTimeout, Platform: "douyin", Progress: 100, Dur: 30 * time.Second},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksQueued.WithLabelValues("douyin")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.tasksStarted.WithLabelValues("douyin")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksFinished.WithLabelValues("douyin", "TASK_TIMEOUT")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.tasksRunning))
	require.Equal(t, 1, testutil.CollectAndCount(sink.taskRuntime, "collector_progress_task_runtime_seconds"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
