package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/SkynetNext/serverinfo-rest/internal/buffer"
	"github.com/SkynetNext/serverinfo-rest/internal/logger"
	"github.com/SkynetNext/serverinfo-rest/internal/metrics"
	"github.com/SkynetNext/serverinfo-rest/internal/middleware"
	"github.com/SkynetNext/serverinfo-rest/internal/protocol"
	"github.com/SkynetNext/serverinfo-rest/internal/router"
	"github.com/SkynetNext/serverinfo-rest/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// writeTimeout bounds the single response write
const writeTimeout = 5 * time.Second

// CORS headers added to every response when enabled
var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type",
}

// handleConnection serves exactly one request on conn and closes it
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	startTime := time.Now()
	remoteAddr := conn.RemoteAddr().String()
	requestID := uuid.NewString()

	ctx, span := tracing.StartSpan(ctx, "serverinfo.handle_request")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("net.peer.addr", remoteAddr),
	)

	if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
		logger.DebugWithTrace(ctx, "failed to set read deadline",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return
	}

	// One read only: anything past the buffer is truncated
	buf := buffer.Get()
	defer buffer.Put(buf)
	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			logger.DebugWithTrace(ctx, "client read error",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
		}
		return
	}

	req := protocol.Decode(buf[:n])
	resp := protocol.NewResponse()
	s.serve(ctx, req, resp)

	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.target", req.Path),
		attribute.Int("http.status_code", resp.StatusCode),
	)

	entry := &middleware.AccessLogEntry{
		RequestID:  requestID,
		RemoteAddr: remoteAddr,
		Method:     req.Method,
		Path:       req.Path,
		Status:     resp.StatusCode,
		BytesIn:    int64(n),
	}

	out := resp.Encode()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		logger.DebugWithTrace(ctx, "failed to set write deadline", zap.Error(err))
	}
	written, err := conn.Write(out)
	entry.BytesOut = int64(written)
	if err != nil {
		span.SetStatus(codes.Error, "send failed")
		entry.Error = err.Error()
		logger.WarnWithTrace(ctx, "failed to send response",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
	}

	duration := time.Since(startTime)
	entry.DurationMs = duration.Milliseconds()
	metrics.RequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	metrics.RequestLatency.WithLabelValues(req.Method).Observe(duration.Seconds())
	middleware.LogAccess(ctx, entry)
}

// serve fills in resp for req: CORS, malformed-request and pre-flight handling,
// then dispatch
func (s *Server) serve(ctx context.Context, req *protocol.Request, resp *protocol.Response) {
	if s.config.EnableCors {
		for k, v := range corsHeaders {
			resp.Headers[k] = v
		}
	}

	switch {
	case req.Malformed():
		resp.Error(http.StatusBadRequest, "Malformed request line")
	case req.Method == http.MethodOptions:
		resp.SetStatus(http.StatusNoContent)
	default:
		s.dispatch(ctx, req, resp)
	}
}

// dispatch runs the registered handler. Handler errors and panics stop here and
// become a generic 500; details go to the log only.
func (s *Server) dispatch(ctx context.Context, req *protocol.Request, resp *protocol.Response) {
	logger.DebugWithTrace(ctx, "dispatch",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
	)

	h, ok := s.router.Lookup(req.Method, req.Path)
	if !ok {
		resp.Error(http.StatusNotFound, "Endpoint not found")
		return
	}

	if err := invoke(h, req, resp); err != nil {
		metrics.HandlerFaults.Inc()
		logger.ErrorWithTrace(ctx, "handler error",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		resp.Error(http.StatusInternalServerError, "Internal server error")
	}
}

// invoke calls h, converting a panic into an error
func invoke(h router.Handler, req *protocol.Request, resp *protocol.Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(req, resp)
}
