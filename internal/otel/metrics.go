package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce   sync.Once
	requestsCounter   metric.Int64Counter
	toolDuration      metric.Float64Histogram
	queueDepthGauge   metric.Int64ObservableGauge
	queueDepth        int64
	queueDepthMu      sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times;
// only runs once. Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		requestsCounter, err = m.Int64Counter("benchrun_validation_requests_total", metric.WithDescription("Total validation requests handled"))
		if err != nil {
			return
		}
		toolDuration, err = m.Float64Histogram("benchrun_validation_tool_duration_seconds", metric.WithDescription("Build-tool invocation duration in seconds"))
		if err != nil {
			return
		}
		queueDepthGauge, err = m.Int64ObservableGauge("benchrun_validation_queue_depth", metric.WithDescription("Requests waiting for the single-flight tool slot"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			queueDepthMu.Lock()
			n := queueDepth
			queueDepthMu.Unlock()
			o.ObserveInt64(queueDepthGauge, n)
			return nil
		}, queueDepthGauge)
		if err != nil {
			return
		}
	})
	return err
}

// RecordRequest records one handled validation request with its tool
// duration.
func RecordRequest(ctx context.Context, action, transport string, duration time.Duration) {
	if requestsCounter != nil {
		requestsCounter.Add(ctx, 1, metric.WithAttributes(AttrAction.String(action), AttrTransport.String(transport)))
	}
	if toolDuration != nil {
		toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrAction.String(action)))
	}
}

// AddQueued adds 1 to the queue depth gauge (call before waiting for the
// tool slot).
func AddQueued() {
	queueDepthMu.Lock()
	queueDepth++
	queueDepthMu.Unlock()
}

// RemoveQueued subtracts 1 from the queue depth gauge.
func RemoveQueued() {
	queueDepthMu.Lock()
	queueDepth--
	if queueDepth < 0 {
		queueDepth = 0
	}
	queueDepthMu.Unlock()
}
