package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/creative-collector/internal/progress"
)

// LogSink writes one structured line per task stage. Failed and timed-out
// stages are logged at warn level, intermediate stages at debug.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink logging through logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		lvl := stageLevel(evt.Stage)
		ce := s.logger.Check(lvl, "task stage")
		if ce == nil {
			continue
		}
		fields := []zap.Field{
			zap.String("task_id", evt.TaskUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("platform", evt.Platform),
			zap.Int("progress", evt.Progress),
		}
		if evt.URL != "" && evt.Stage == progress.StageQueued {
			fields = append(fields, zap.String("source_url", evt.URL))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("elapsed", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		ce.Write(fields...)
	}
	return nil
}

func stageLevel(stage progress.Stage) zapcore.Level {
	switch stage {
	case progress.StageFailed, progress.StageTimeout:
		return zapcore.WarnLevel
	case progress.StageQueued, progress.StageCompleted, progress.StageCanceled:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
