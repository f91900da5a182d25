package httplog

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ResponseInfo struct {
	// RequestID is the correlation identifier of the request.
	RequestID    string
	StatusCode   int
	ContentType  string
	BytesWritten int64
	Start        time.Time
	Latency      time.Duration
}

type TraceFormatter interface {
	GetTraceFields(req *http.Request, spanCtx trace.SpanContext) []zap.Field
}

type RequestFormatter interface {
	GetRequestFields(req *http.Request, res *ResponseInfo) []zap.Field
}

type Formatter interface {
	TraceFormatter
	RequestFormatter
}

var DefaultFormatter = ElasticCommonSchemaFormatter

// Names accepted by FormatterByName.
const (
	FormatECS    = "ecs"
	FormatGCloud = "gcloud"
	FormatNone   = "none"
)

var errGCloudProjectRequired = errors.New("the gcloud format needs a project ID")

// FormatterByName returns the formatter registered under name. The project ID is only used by the gcloud format.
//
//nolint:ireturn // formatters are picked at runtime
func FormatterByName(name, projectID string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case FormatECS:
		return ElasticCommonSchemaFormatter, nil
	case FormatGCloud:
		if projectID == "" {
			return nil, errGCloudProjectRequired
		}
		return NewGoogleCloudFormatter(projectID), nil
	case FormatNone, "":
		return NoopFormatter, nil
	default:
		return nil, fmt.Errorf("unknown log format %q", name)
	}
}
