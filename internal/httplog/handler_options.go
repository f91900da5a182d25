package httplog

import (
	"net/http"

	"github.com/liaoxianfu/ai-agent/internal/correlation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// HeaderRequestID is the header the correlation identifier is read from and echoed in.
const HeaderRequestID = "X-Request-ID"

type PerRequestLoggerFunc func(parent *zap.Logger, req *http.Request) *zap.Logger

// DefaultPerRequestLoggerFunc tags the parent logger with the correlation identifier of the request.
func DefaultPerRequestLoggerFunc(parent *zap.Logger, req *http.Request) *zap.Logger {
	return parent.With(correlation.Field(req.Context()))
}

// PerRequestFilterFunc decides if a request line at the given level is written.
type PerRequestFilterFunc func(req *http.Request, level zapcore.Level) bool

func DefaultPerRequestFilterFunc(_ *http.Request, _ zapcore.Level) bool {
	return true
}

// IDGenerator returns a new correlation identifier.
type IDGenerator func() string

type handlerOptions struct {
	logger             *zap.Logger
	perRequestLoggerFn PerRequestLoggerFunc
	perRequestFilterFn PerRequestFilterFunc
	traceFormatter     TraceFormatter
	requestFormatter   RequestFormatter
	generateID         IDGenerator
	header             string
	logStart           bool
}

func defaultHandlerOptions() *handlerOptions {
	return &handlerOptions{
		logger:             zap.L(),
		perRequestLoggerFn: DefaultPerRequestLoggerFunc,
		perRequestFilterFn: DefaultPerRequestFilterFunc,
		traceFormatter:     DefaultFormatter,
		requestFormatter:   NoopFormatter,
		generateID:         correlation.NewID,
		header:             HeaderRequestID,
	}
}

type HandlerOption func(*handlerOptions)

func buildHandlerOptions(opts ...HandlerOption) *handlerOptions {
	options := defaultHandlerOptions()
	for _, fn := range opts {
		fn(options)
	}
	return options
}

func WithLogger(logger *zap.Logger) HandlerOption {
	return func(options *handlerOptions) {
		options.logger = logger
	}
}

func WithPerRequestLogger(fn PerRequestLoggerFunc) HandlerOption {
	return func(options *handlerOptions) {
		options.perRequestLoggerFn = fn
	}
}

func WithPerRequestFilter(fn PerRequestFilterFunc) HandlerOption {
	return func(options *handlerOptions) {
		options.perRequestFilterFn = fn
	}
}

func WithTraceFormatter(f TraceFormatter) HandlerOption {
	return func(options *handlerOptions) {
		options.traceFormatter = f
	}
}

// WithRequestFormatter attaches structured HTTP fields to the completion line. None are attached by default since
// the message already holds the latency, status and path.
func WithRequestFormatter(f RequestFormatter) HandlerOption {
	return func(options *handlerOptions) {
		options.requestFormatter = f
	}
}

func WithIDGenerator(fn IDGenerator) HandlerOption {
	return func(options *handlerOptions) {
		options.generateID = fn
	}
}

// WithRequestIDHeader changes the header the correlation identifier is read from and echoed in.
func WithRequestIDHeader(name string) HandlerOption {
	return func(options *handlerOptions) {
		options.header = name
	}
}

// WithStartLog writes an extra DEBUG line when a request is received.
func WithStartLog(enabled bool) HandlerOption {
	return func(options *handlerOptions) {
		options.logStart = enabled
	}
}
