package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/creative-collector/internal/progress"
)

// PrometheusSink exports task lifecycle metrics.
type PrometheusSink struct {
	tasksQueued   *prometheus.CounterVec
	tasksStarted  *prometheus.CounterVec
	tasksFinished *prometheus.CounterVec
	tasksRunning  prometheus.Gauge
	taskRuntime   *prometheus.HistogramVec

	tracker *taskTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		tasksQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_progress_tasks_queued_total",
			Help: "Tasks accepted for collection.",
		}, []string{"platform"}),
		tasksStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_progress_tasks_started_total",
			Help: "Tasks picked up by a worker.",
		}, []string{"platform"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_progress_tasks_finished_total",
			Help: "Tasks that reached a terminal stage, by stage.",
		}, []string{"platform", "stage"}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collector_progress_tasks_running",
			Help: "Tasks currently between start and a terminal stage.",
		}),
		taskRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collector_progress_task_runtime_seconds",
			Help:    "Wall time from start to terminal stage.",
			Buckets: []float64{1, 5, 10, 20, 40, 60, 120, 300},
		}, []string{"stage"}),
		tracker: newTaskTracker(),
	}
	for _, c := range []prometheus.Collector{
		s.tasksQueued, s.tasksStarted, s.tasksFinished, s.tasksRunning, s.taskRuntime,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	platform := evt.Platform
	if platform == "" {
		platform = "unknown"
	}
	switch {
	case evt.Stage == progress.StageQueued:
		s.tasksQueued.WithLabelValues(platform).Inc()
	case evt.Stage == progress.StageStarted:
		s.tasksStarted.WithLabelValues(platform).Inc()
		if s.tracker.start(evt.TaskID) {
			s.tasksRunning.Inc()
		}
	case evt.Stage.Terminal():
		s.tasksFinished.WithLabelValues(platform, string(evt.Stage)).Inc()
		if evt.Dur > 0 {
			s.taskRuntime.WithLabelValues(string(evt.Stage)).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.TaskID) {
			s.tasksRunning.Dec()
		}
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type taskTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newTaskTracker() *taskTracker {
	return &taskTracker{running: make(map[[16]byte]struct{})}
}

func (t *taskTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *taskTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
