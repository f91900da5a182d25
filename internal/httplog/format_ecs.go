package httplog

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// The types below follow the Elastic Common Schema, see https://www.elastic.co/guide/en/ecs/current/ecs-field-reference.html

// ecsTrace holds trace.id and the non standard trace.sampled.
type ecsTrace struct {
	ID      string
	Sampled bool
}

func (t *ecsTrace) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", t.ID)
	enc.AddBool("sampled", t.Sampled)
	return nil
}

type ecsSpan struct {
	ID string
}

func (s *ecsSpan) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", s.ID)
	return nil
}

// ecsEvent holds event.start, event.duration (nanoseconds) and event.end.
type ecsEvent struct {
	Start    time.Time
	Duration time.Duration
}

func (e *ecsEvent) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("start", e.Start.Format(time.RFC3339Nano))
	enc.AddInt64("duration", e.Duration.Nanoseconds())
	enc.AddString("end", e.Start.Add(e.Duration).Format(time.RFC3339Nano))
	return nil
}

type ecsHTTPRequest struct {
	// ID is http.request.id, the correlation identifier of the request.
	ID        string
	BodyBytes int64
	Method    string
	MimeType  string
	Referrer  string
}

func (r *ecsHTTPRequest) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", r.ID)
	if err := enc.AddObject("body", zapcore.ObjectMarshalerFunc(func(body zapcore.ObjectEncoder) error {
		body.AddInt64("bytes", r.BodyBytes)
		return nil
	})); err != nil {
		return err
	}
	enc.AddString("method", r.Method)
	enc.AddString("mime_type", r.MimeType)
	enc.AddString("referrer", r.Referrer)
	return nil
}

type ecsHTTPResponse struct {
	BodyBytes  int64
	MimeType   string
	StatusCode int
}

func (r *ecsHTTPResponse) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if err := enc.AddObject("body", zapcore.ObjectMarshalerFunc(func(body zapcore.ObjectEncoder) error {
		body.AddInt64("bytes", r.BodyBytes)
		return nil
	})); err != nil {
		return err
	}
	enc.AddString("mime_type", r.MimeType)
	enc.AddInt("status_code", r.StatusCode)
	return nil
}

type ecsHTTP struct {
	Request  *ecsHTTPRequest
	Response *ecsHTTPResponse
	Version  string
}

func (h *ecsHTTP) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if err := enc.AddObject("request", h.Request); err != nil {
		return err
	}
	if err := enc.AddObject("response", h.Response); err != nil {
		return err
	}
	enc.AddString("version", h.Version)
	return nil
}

type ecsURL struct {
	URL *url.URL
}

func (u *ecsURL) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	var username string
	if u.URL.User != nil {
		username = u.URL.User.Username()
	}

	enc.AddString("original", u.URL.Redacted())
	enc.AddString("path", u.URL.Path)
	enc.AddString("query", u.URL.RawQuery)
	enc.AddString("scheme", u.URL.Scheme)
	enc.AddString("username", username)
	return nil
}

// ecsAddress is used for client.address and server.address.
type ecsAddress string

func (a ecsAddress) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("address", string(a))
	return nil
}

type ecsUserAgent string

func (u ecsUserAgent) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("original", string(u))
	return nil
}

type elasticCommonSchemaFormatter struct{}

var ElasticCommonSchemaFormatter Formatter = &elasticCommonSchemaFormatter{}

func (*elasticCommonSchemaFormatter) GetTraceFields(_ *http.Request, spanCtx trace.SpanContext) []zap.Field {
	return []zap.Field{
		zap.Object("trace", &ecsTrace{
			ID:      spanCtx.TraceID().String(),
			Sampled: spanCtx.IsSampled(),
		}),
		zap.Object("span", &ecsSpan{
			ID: spanCtx.SpanID().String(),
		}),
	}
}

func (*elasticCommonSchemaFormatter) GetRequestFields(req *http.Request, res *ResponseInfo) []zap.Field {
	var serverAddr string
	if localAddr, ok := req.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		serverAddr = localAddr.String()
	}

	return []zap.Field{
		zap.Object("event", &ecsEvent{
			Start:    res.Start,
			Duration: res.Latency,
		}),
		zap.Object("http", &ecsHTTP{
			Request: &ecsHTTPRequest{
				ID:        res.RequestID,
				BodyBytes: req.ContentLength,
				Method:    req.Method,
				MimeType:  req.Header.Get("Content-Type"),
				Referrer:  req.Referer(),
			},
			Response: &ecsHTTPResponse{
				BodyBytes:  res.BytesWritten,
				MimeType:   res.ContentType,
				StatusCode: res.StatusCode,
			},
			Version: fmt.Sprintf("%d.%d", req.ProtoMajor, req.ProtoMinor),
		}),
		zap.Object("url", &ecsURL{URL: req.URL}),
		zap.Object("user_agent", ecsUserAgent(req.UserAgent())),
		zap.Object("client", ecsAddress(req.RemoteAddr)),
		zap.Object("server", ecsAddress(serverAddr)),
	}
}
