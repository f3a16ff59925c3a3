package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce     sync.Once
	taskOpsCounter      metric.Int64Counter
	workerInvokeCounter metric.Int64Counter
	workerInvokeDur     metric.Float64Histogram
	roundsCounter       metric.Int64Counter
	inFlightGauge       metric.Int64ObservableGauge
	inFlight            int64
	inFlightMu          sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		taskOpsCounter, err = m.Int64Counter("motleycrew_task_operations_total", metric.WithDescription("Total task operations (dispatch, complete, fail)"))
		if err != nil {
			return
		}
		workerInvokeCounter, err = m.Int64Counter("motleycrew_worker_invocations_total", metric.WithDescription("Total worker invocations"))
		if err != nil {
			return
		}
		workerInvokeDur, err = m.Float64Histogram("motleycrew_worker_invoke_duration_seconds", metric.WithDescription("Worker invocation duration in seconds"))
		if err != nil {
			return
		}
		roundsCounter, err = m.Int64Counter("motleycrew_scheduling_rounds_total", metric.WithDescription("Total availability evaluations of the dispatch loop"))
		if err != nil {
			return
		}
		inFlightGauge, err = m.Int64ObservableGauge("motleycrew_tasks_in_flight", metric.WithDescription("Tasks currently executing on workers"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			inFlightMu.Lock()
			n := inFlight
			inFlightMu.Unlock()
			o.ObserveInt64(inFlightGauge, n)
			return nil
		}, inFlightGauge)
	})
	return err
}

// RecordTaskOp records a task operation (dispatch, complete, fail).
func RecordTaskOp(ctx context.Context, op, recipe, status string) {
	if taskOpsCounter == nil {
		return
	}
	taskOpsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		AttrRecipe.String(recipe),
		AttrStatus.String(status),
	))
}

// RecordWorkerInvoke records one worker invocation and its duration. outcome is "ok" or "error".
func RecordWorkerInvoke(ctx context.Context, recipe, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(AttrRecipe.String(recipe), AttrOutcome.String(outcome))
	if workerInvokeCounter != nil {
		workerInvokeCounter.Add(ctx, 1, attrs)
	}
	if workerInvokeDur != nil {
		workerInvokeDur.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordRound records one availability evaluation in the given mode.
func RecordRound(ctx context.Context, mode string) {
	if roundsCounter != nil {
		roundsCounter.Add(ctx, 1, metric.WithAttributes(AttrMode.String(mode)))
	}
}

// AddInFlight adds 1 to the in-flight gauge (call on dispatch).
func AddInFlight() {
	inFlightMu.Lock()
	inFlight++
	inFlightMu.Unlock()
}

// RemoveInFlight subtracts 1 from the in-flight gauge (call on completion).
func RemoveInFlight() {
	inFlightMu.Lock()
	inFlight--
	if inFlight < 0 {
		inFlight = 0
	}
	inFlightMu.Unlock()
}

// TaskCountFunc returns (created, running, done, failed) counts. Used for motleycrew_tasks gauge.
type TaskCountFunc func() (created, running, done, failed int64)

// InitMetricsWithTaskCount creates instruments and optionally registers a callback for task gauges.
// Call after InitMeterProvider. If taskCount is nil, task gauges are not reported.
func InitMetricsWithTaskCount(ctx context.Context, taskCount TaskCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if taskCount == nil {
		return nil
	}
	m := Meter()
	tasksGauge, err := m.Float64ObservableGauge("motleycrew_tasks", metric.WithDescription("Number of tasks by status"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		created, running, done, failed := taskCount()
		o.ObserveFloat64(tasksGauge, float64(created), metric.WithAttributes(AttrStatus.String("created")))
		o.ObserveFloat64(tasksGauge, float64(running), metric.WithAttributes(AttrStatus.String("running")))
		o.ObserveFloat64(tasksGauge, float64(done), metric.WithAttributes(AttrStatus.String("done")))
		o.ObserveFloat64(tasksGauge, float64(failed), metric.WithAttributes(AttrStatus.String("failed")))
		return nil
	}, tasksGauge)
	return err
}
