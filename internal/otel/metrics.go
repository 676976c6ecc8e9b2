package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce     sync.Once
	recomputeCounter    metric.Int64Counter
	recomputeDuration   metric.Float64Histogram
	watchEventsCounter  metric.Int64Counter
	hookEventsCounter   metric.Int64Counter
	sseEventsCounter    metric.Int64Counter
	sseConnectionsGauge metric.Int64ObservableGauge
	sseConnections      int64
	sseConnectionsMu    sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times;
// only runs once. Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		recomputeCounter, err = m.Int64Counter("plandash_snapshot_recomputes_total", metric.WithDescription("Total plan snapshot derivations"))
		if err != nil {
			return
		}
		recomputeDuration, err = m.Float64Histogram("plandash_snapshot_recompute_seconds", metric.WithDescription("Plan snapshot derivation duration in seconds"))
		if err != nil {
			return
		}
		watchEventsCounter, err = m.Int64Counter("plandash_watch_events_total", metric.WithDescription("Debounced filesystem change events by source"))
		if err != nil {
			return
		}
		hookEventsCounter, err = m.Int64Counter("plandash_hook_events_total", metric.WithDescription("Lifecycle hook events ingested by event name"))
		if err != nil {
			return
		}
		sseEventsCounter, err = m.Int64Counter("plandash_sse_events_total", metric.WithDescription("Total SSE events published"))
		if err != nil {
			return
		}
		sseConnectionsGauge, err = m.Int64ObservableGauge("plandash_sse_connections", metric.WithDescription("Current SSE subscriber count"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			sseConnectionsMu.Lock()
			n := sseConnections
			sseConnectionsMu.Unlock()
			o.ObserveInt64(sseConnectionsGauge, n)
			return nil
		}, sseConnectionsGauge)
		if err != nil {
			return
		}
	})
	return err
}

// RecordRecompute records one plan snapshot derivation and its duration.
func RecordRecompute(ctx context.Context, duration time.Duration) {
	if recomputeCounter != nil {
		recomputeCounter.Add(ctx, 1)
	}
	if recomputeDuration != nil {
		recomputeDuration.Record(ctx, duration.Seconds())
	}
}

// RecordWatchEvent records one debounced filesystem event ("plan" or "sessions").
func RecordWatchEvent(ctx context.Context, source string) {
	if watchEventsCounter != nil {
		watchEventsCounter.Add(ctx, 1, metric.WithAttributes(AttrSource.String(source)))
	}
}

// RecordHookEvent records one ingested lifecycle hook event.
func RecordHookEvent(ctx context.Context, event string) {
	if hookEventsCounter != nil {
		hookEventsCounter.Add(ctx, 1, metric.WithAttributes(AttrEvent.String(event)))
	}
}

// RecordSSEEvent records one SSE event published.
func RecordSSEEvent(ctx context.Context) {
	if sseEventsCounter != nil {
		sseEventsCounter.Add(ctx, 1)
	}
}

// AddSSEConnection adds 1 to the SSE connection gauge (call on subscribe).
func AddSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections++
	sseConnectionsMu.Unlock()
}

// RemoveSSEConnection subtracts 1 from the SSE connection gauge (call on unsubscribe).
func RemoveSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections--
	if sseConnections < 0 {
		sseConnections = 0
	}
	sseConnectionsMu.Unlock()
}

// TaskCountFunc returns (ready, in_progress, done, failed, blocked) counts
// for the plandash_tasks_total gauge.
type TaskCountFunc func() (ready, inProgress, done, failed, blocked int64)

// InitMetricsWithTaskCount creates instruments and optionally registers a
// callback for task gauges. If taskCount is nil, task gauges are not reported.
func InitMetricsWithTaskCount(ctx context.Context, taskCount TaskCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if taskCount == nil {
		return nil
	}
	m := Meter()
	tasksGauge, err := m.Float64ObservableGauge("plandash_tasks_total", metric.WithDescription("Number of plan tasks by derived status"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		ready, inProgress, done, failed, blocked := taskCount()
		o.ObserveFloat64(tasksGauge, float64(ready), metric.WithAttributes(AttrStatus.String("ready")))
		o.ObserveFloat64(tasksGauge, float64(inProgress), metric.WithAttributes(AttrStatus.String("in_progress")))
		o.ObserveFloat64(tasksGauge, float64(done), metric.WithAttributes(AttrStatus.String("done")))
		o.ObserveFloat64(tasksGauge, float64(failed), metric.WithAttributes(AttrStatus.String("failed")))
		o.ObserveFloat64(tasksGauge, float64(blocked), metric.WithAttributes(AttrStatus.String("blocked")))
		return nil
	}, tasksGauge)
	return err
}
