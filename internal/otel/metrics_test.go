package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInitMetrics_RecordTaskOp(t *testing.T) {
	ctx := context.Background()
	_, err := InitMeterProvider(ctx, Config{ServiceName: "metrics-test"})
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	if err := InitMetrics(ctx); err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	RecordTaskOp(ctx, "dispatch", "a", "running")
	RecordTaskOp(ctx, "complete", "a", "done")
}

func TestAddInFlight_RemoveInFlight(t *testing.T) {
	AddInFlight()
	AddInFlight()
	RemoveInFlight()
	RemoveInFlight()
	RemoveInFlight() // should not go negative
	inFlightMu.Lock()
	defer inFlightMu.Unlock()
	if inFlight != 0 {
		t.Errorf("inFlight = %d", inFlight)
	}
}

func TestRecordWorkerInvoke_RecordRound(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, Config{ServiceName: "record-test"})
	_ = InitMetrics(ctx)
	RecordWorkerInvoke(ctx, "a", "ok", 100*time.Millisecond)
	RecordWorkerInvoke(ctx, "b", "error", 50*time.Millisecond)
	RecordRound(ctx, "sync")
}

func TestInitMetricsWithTaskCount(t *testing.T) {
	ctx := context.Background()
	handler, _ := InitMeterProvider(ctx, Config{ServiceName: "taskcount-test"})
	err := InitMetricsWithTaskCount(ctx, func() (created, running, done, failed int64) {
		return 1, 2, 3, 0
	})
	if err != nil {
		t.Fatalf("InitMetricsWithTaskCount: %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "motleycrew_tasks") {
		t.Errorf("task gauge not exported:\n%s", rec.Body.String())
	}
}

func TestInitMetricsWithTaskCount_nilFunc(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, Config{ServiceName: "taskcount-nil-test"})
	err := InitMetricsWithTaskCount(ctx, nil)
	if err != nil {
		t.Fatalf("InitMetricsWithTaskCount(nil): %v", err)
	}
}
