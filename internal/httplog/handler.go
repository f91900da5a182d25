package httplog

import (
	"fmt"
	"net/http"
	"time"

	"github.com/liaoxianfu/ai-agent/internal/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type handler struct {
	options *handlerOptions
}

// NewHandler returns middleware that tags every request with a correlation identifier and logs its completion.
func NewHandler(opts ...HandlerOption) func(next http.Handler) http.Handler {
	h := &handler{
		options: buildHandlerOptions(opts...),
	}
	return h.Wrap
}

func (h *handler) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h.handleRequest(w, req, next)
	})
}

func (h *handler) handleRequest(w http.ResponseWriter, req *http.Request, next http.Handler) {
	start := time.Now()

	// A present identifier is adopted as is, the line encoder escapes what it can not print.
	id := req.Header.Get(h.options.header)
	if id == "" {
		id = h.options.generateID()
	}
	req = req.WithContext(correlation.WithID(req.Context(), id))
	w.Header().Set(h.options.header, id)

	l := h.options.perRequestLoggerFn(h.options.logger, req)

	// Add trace information if tracing is configured.
	currentSpan := trace.SpanContextFromContext(req.Context())
	if currentSpan.IsValid() {
		fields := h.options.traceFormatter.GetTraceFields(req, currentSpan)
		l = l.With(fields...)
	}

	req = injectLoggerInContext(req, l)

	sr := &statusRecorder{writer: w}

	var completed bool
	defer func() {
		if completed {
			return
		}
		// next.ServeHTTP panicked or called runtime.Goexit. The panic is not recovered so the stacktrace stays intact.
		status := http.StatusInternalServerError
		if sr.writeHeaderCalled {
			status = sr.StatusCode
		}
		res := h.responseInfo(id, sr, start)
		res.StatusCode = status
		h.logRequest(l, zapcore.ErrorLevel, "HTTP request panicked", req, res)
	}()

	if h.options.logStart {
		h.logRequest(l, zapcore.DebugLevel, "Received HTTP request", req, &ResponseInfo{RequestID: id, Start: start})
	}

	next.ServeHTTP(sr, req)
	completed = true

	res := h.responseInfo(id, sr, start)
	msg := fmt.Sprintf("process finished... process time [%dms]: %d-%s", res.Latency.Milliseconds(), res.StatusCode, req.URL.Path)
	h.logRequest(l, levelForStatus(res.StatusCode), msg, req, res)
}

func (h *handler) responseInfo(id string, sr *statusRecorder, start time.Time) *ResponseInfo {
	return &ResponseInfo{
		RequestID:    id,
		StatusCode:   sr.status(),
		ContentType:  sr.ContentType,
		BytesWritten: sr.BytesWritten,
		Start:        start,
		Latency:      time.Since(start),
	}
}

func (h *handler) logRequest(l *zap.Logger, level zapcore.Level, msg string, req *http.Request, res *ResponseInfo) {
	if shouldLog := h.options.perRequestFilterFn(req, level); !shouldLog {
		return
	}

	if ce := l.Check(level, msg); ce != nil {
		fields := h.options.requestFormatter.GetRequestFields(req, res)
		ce.Write(fields...)
	}
}

func levelForStatus(status int) zapcore.Level {
	switch {
	case status <= 399:
		return zapcore.InfoLevel
	case status <= 499:
		// Client side error.
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
