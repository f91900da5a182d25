package httplog

import (
	"context"
	"net/http"

	"github.com/liaoxianfu/ai-agent/internal/correlation"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "logger"
)

func injectLoggerInContext(req *http.Request, l *zap.Logger) *http.Request {
	ctx := context.WithValue(req.Context(), loggerContextKey, l)
	return req.WithContext(ctx)
}

// FromContext returns the logger of the request ctx belongs to.
func FromContext(ctx context.Context) *zap.Logger {
	l, ok := ctx.Value(loggerContextKey).(*zap.Logger)
	if !ok {
		// Logger is not injected in the context, use the global logger tagged with whatever id the context has.
		l = zap.L().With(correlation.Field(ctx))
		l.Debug("FromContext is used outside of a HTTP request context. Make sure the HTTP handler is wrapped in a logging handler.")
	}
	return l
}
