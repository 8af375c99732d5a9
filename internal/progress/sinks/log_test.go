package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/creative-collector/internal/progress"
)

func TestLogSinkLevelsByStage(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))
	id := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	err := sink.Consume(context.Background(), []progress.Event{
		{TaskID: id, TS: now, Stage: progress.StageQueued, Platform: "douyin", URL: "https://www.douyin.com/video/1"},
		{TaskID: id, TS: now, Stage: progress.StageStarted, Platform: "douyin", Progress: 10},
		{TaskID: id, TS: now, Stage: progress.StageFailed, Platform: "douyin", Progress: 100, Dur: time.Second, Note: "crawl failed"},
	})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 2, "debug-level started stage should be filtered")
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "https://www.douyin.com/video/1", entries[0].ContextMap()["source_url"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "crawl failed", entries[1].ContextMap()["note"])
	require.Equal(t, time.Second, entries[1].ContextMap()["elapsed"])
}
