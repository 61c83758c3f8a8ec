package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/SkynetNext/serverinfo-rest/internal/logger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AccessLogEntry represents one served HTTP request
type AccessLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	TraceID    string    `json:"trace_id,omitempty"`
	SpanID     string    `json:"span_id,omitempty"`
	RequestID  string    `json:"request_id"`
	RemoteAddr string    `json:"remote_addr"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	BytesIn    int64     `json:"bytes_in,omitempty"`
	BytesOut   int64     `json:"bytes_out,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// AccessLogger handles access log recording with batching support
type AccessLogger struct {
	logChan       chan *AccessLogEntry
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

var (
	// Global access logger instance
	globalAccessLogger *AccessLogger
	globalMu           sync.RWMutex
)

// InitAccessLogger starts the global access logger. Calling it again while one is
// running is a no-op.
// batchSize: number of logs to accumulate before flushing
// flushInterval: maximum time to wait before flushing
func InitAccessLogger(batchSize int, flushInterval time.Duration) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalAccessLogger != nil {
		return
	}
	globalAccessLogger = &AccessLogger{
		logChan:       make(chan *AccessLogEntry, batchSize*2), // Buffer 2x batch size
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopChan:      make(chan struct{}),
	}
	globalAccessLogger.start()
}

// LogAccess records an access log entry.
// This is non-blocking - if buffer is full, the entry is dropped.
func LogAccess(ctx context.Context, entry *AccessLogEntry) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		entry.TraceID = span.SpanContext().TraceID().String()
		entry.SpanID = span.SpanContext().SpanID().String()
	}
	entry.Timestamp = time.Now()

	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalAccessLogger == nil {
		// Fallback: log directly if access logger not initialized
		writeEntry(entry)
		return
	}

	select {
	case globalAccessLogger.logChan <- entry:
	default:
		logger.L.Warn("access log buffer full, dropping entry",
			zap.String("request_id", entry.RequestID),
		)
	}
}

// start starts the batch processing goroutine
func (al *AccessLogger) start() {
	al.wg.Add(1)
	go al.processBatches()
}

// processBatches processes access logs in batches
func (al *AccessLogger) processBatches() {
	defer al.wg.Done()

	batch := make([]*AccessLogEntry, 0, al.batchSize)
	ticker := time.NewTicker(al.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-al.stopChan:
			// Drain whatever is still queued, then flush
			for {
				select {
				case entry := <-al.logChan:
					batch = append(batch, entry)
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				al.flushBatch(batch)
			}
			return
		case entry := <-al.logChan:
			batch = append(batch, entry)
			if len(batch) >= al.batchSize {
				al.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				al.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

// flushBatch writes a batch of access logs
func (al *AccessLogger) flushBatch(batch []*AccessLogEntry) {
	for _, entry := range batch {
		writeEntry(entry)
	}
}

func writeEntry(entry *AccessLogEntry) {
	fields := []zap.Field{
		zap.String("request_id", entry.RequestID),
		zap.String("remote_addr", entry.RemoteAddr),
		zap.String("method", entry.Method),
		zap.String("path", entry.Path),
		zap.Int("status", entry.Status),
		zap.Int64("duration_ms", entry.DurationMs),
	}

	if entry.TraceID != "" {
		fields = append(fields, zap.String("trace_id", entry.TraceID))
	}
	if entry.SpanID != "" {
		fields = append(fields, zap.String("span_id", entry.SpanID))
	}
	if entry.BytesIn > 0 {
		fields = append(fields, zap.Int64("bytes_in", entry.BytesIn))
	}
	if entry.BytesOut > 0 {
		fields = append(fields, zap.Int64("bytes_out", entry.BytesOut))
	}
	if entry.Error != "" {
		fields = append(fields, zap.String("error", entry.Error))
	}

	logger.L.Info("access_log", fields...)
}

// ShutdownAccessLogger flushes pending entries and stops the global access logger
func ShutdownAccessLogger() {
	globalMu.Lock()
	al := globalAccessLogger
	globalAccessLogger = nil
	globalMu.Unlock()

	if al != nil {
		close(al.stopChan)
		al.wg.Wait()
	}
}
