package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/SkynetNext/serverinfo-rest/internal/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	prev := logger.L
	logger.L = zap.New(core)
	t.Cleanup(func() { logger.L = prev })
	return logs
}

func TestAccessLogger_FlushOnShutdown(t *testing.T) {
	logs := observeLogs(t)

	InitAccessLogger(100, time.Hour)
	for i := 0; i < 3; i++ {
		LogAccess(context.Background(), &AccessLogEntry{
			RequestID: "req",
			Method:    "GET",
			Path:      "/api/v1/health",
			Status:    200,
		})
	}
	ShutdownAccessLogger()

	entries := logs.FilterMessage("access_log").All()
	if len(entries) != 3 {
		t.Fatalf("Expected 3 access log entries, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["path"]; got != "/api/v1/health" {
		t.Errorf("Expected path field, got %v", got)
	}

	// A second shutdown must be harmless
	ShutdownAccessLogger()
}

func TestLogAccess_WithoutLogger(t *testing.T) {
	logs := observeLogs(t)

	LogAccess(context.Background(), &AccessLogEntry{RequestID: "direct", Status: 404})

	if logs.FilterMessage("access_log").Len() != 1 {
		t.Error("Expected direct write when the access logger is not running")
	}
}

func TestAccessLogger_FlushOnBatchSize(t *testing.T) {
	logs := observeLogs(t)

	InitAccessLogger(2, time.Hour)
	defer ShutdownAccessLogger()

	LogAccess(context.Background(), &AccessLogEntry{RequestID: "a"})
	LogAccess(context.Background(), &AccessLogEntry{RequestID: "b"})

	deadline := time.Now().Add(time.Second)
	for logs.FilterMessage("access_log").Len() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("Expected batch to flush once full")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
