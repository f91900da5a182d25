package httplog_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/liaoxianfu/ai-agent/internal/correlation"
	"github.com/liaoxianfu/ai-agent/internal/httplog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var finishedLine = regexp.MustCompile(`^process finished\.\.\. process time \[(\d+)ms\]: (\d{3})-(/\S*)$`)

func newObservedHandler(level zapcore.Level, opts ...httplog.HandlerOption) (func(http.Handler) http.Handler, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	opts = append([]httplog.HandlerOption{httplog.WithLogger(zap.New(core))}, opts...)
	return httplog.NewHandler(opts...), logs
}

func TestNewHandler(t *testing.T) {
	t.Parallel()

	t.Run("Should adopt the inbound request id", func(t *testing.T) {
		t.Parallel()

		requestLogger, logs := newObservedHandler(zapcore.InfoLevel)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("x-request-id", "abc")
		rec := httptest.NewRecorder()

		var seen string
		requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = correlation.ID(r.Context())
			httplog.FromContext(r.Context()).Info("hello world")
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rec, req)

		assert.Equal(t, "abc", seen)
		assert.Equal(t, "abc", rec.Header().Get(httplog.HeaderRequestID))

		lines := logs.All()
		require.Len(t, lines, 2)
		for _, line := range lines {
			assert.Equal(t, "abc", line.ContextMap()[correlation.FieldKey])
		}
		assert.Equal(t, "hello world", lines[0].Message)
		assert.Regexp(t, finishedLine, lines[1].Message)
	})

	t.Run("Should generate an id when the header is missing", func(t *testing.T) {
		t.Parallel()

		requestLogger, logs := newObservedHandler(zapcore.InfoLevel)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		var seen string
		requestLogger(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = correlation.ID(r.Context())
		})).ServeHTTP(rec, req)

		assert.Regexp(t, `^[0-9a-f]{32}$`, seen)
		assert.Equal(t, seen, rec.Header().Get(httplog.HeaderRequestID))
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, seen, logs.All()[0].ContextMap()[correlation.FieldKey])
	})

	t.Run("Should adopt any present request id verbatim", func(t *testing.T) {
		t.Parallel()

		values := map[string]string{
			"long":     strings.Repeat("a", 200),
			"with tab": "abc\tdef",
			"padded":   "  abc  ",
		}
		for name, value := range values {
			t.Run(name, func(t *testing.T) {
				t.Parallel()

				requestLogger, logs := newObservedHandler(zapcore.InfoLevel,
					httplog.WithIDGenerator(func() string { return "generated" }),
				)

				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Header.Set("X-Request-ID", value)
				rec := httptest.NewRecorder()

				var seen string
				requestLogger(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
					seen = correlation.ID(r.Context())
					httplog.FromContext(r.Context()).Info("inside")
				})).ServeHTTP(rec, req)

				assert.Equal(t, value, seen)
				assert.Equal(t, value, rec.Header().Get(httplog.HeaderRequestID))

				lines := logs.All()
				require.Len(t, lines, 2)
				for _, line := range lines {
					assert.Equal(t, value, line.ContextMap()[correlation.FieldKey])
				}
			})
		}
	})

	t.Run("Should read a custom header", func(t *testing.T) {
		t.Parallel()

		requestLogger, _ := newObservedHandler(zapcore.InfoLevel, httplog.WithRequestIDHeader("X-Correlation-ID"))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Correlation-ID", "custom")
		rec := httptest.NewRecorder()

		requestLogger(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {})).ServeHTTP(rec, req)

		assert.Equal(t, "custom", rec.Header().Get("X-Correlation-ID"))
		assert.Empty(t, rec.Header().Get(httplog.HeaderRequestID))
	})

	t.Run("Should log the latency, status and path", func(t *testing.T) {
		t.Parallel()

		requestLogger, logs := newObservedHandler(zapcore.InfoLevel)

		req := httptest.NewRequest(http.MethodGet, "/some/path?q=1", nil)
		rec := httptest.NewRecorder()

		requestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("body"))
		})).ServeHTTP(rec, req)

		require.Equal(t, 1, logs.Len())
		m := finishedLine.FindStringSubmatch(logs.All()[0].Message)
		require.NotNil(t, m)
		assert.Equal(t, "200", m[2])
		assert.Equal(t, "/some/path", m[3])
	})

	t.Run("Should send an extra log message at the beginning of the request when enabled", func(t *testing.T) {
		t.Parallel()

		requestLogger, logs := newObservedHandler(zapcore.DebugLevel, httplog.WithStartLog(true))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		requestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rec, req)

		lines := logs.All()

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, lines, 2)

		assert.Equal(t, zapcore.DebugLevel, lines[0].Level)
		assert.Equal(t, "Received HTTP request", lines[0].Message)
		assert.Equal(t, zapcore.InfoLevel, lines[1].Level)
		assert.Regexp(t, finishedLine, lines[1].Message)
	})

	t.Run("Should not log the start of a request by default", func(t *testing.T) {
		t.Parallel()

		requestLogger, logs := newObservedHandler(zapcore.DebugLevel)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		requestLogger(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {})).ServeHTTP(rec, req)

		assert.Equal(t, 1, logs.Len())
	})

	t.Run("Emit the right log level for each status code", func(t *testing.T) {
		t.Parallel()

		codes := []int{200, 201, 204, 301, 304, 399, 400, 401, 404, 418, 499, 500, 502, 503, 599}
		for _, code := range codes {
			t.Run(fmt.Sprintf("HTTP code %d", code), func(t *testing.T) {
				t.Parallel()

				requestLogger, logs := newObservedHandler(zapcore.InfoLevel)

				req := httptest.NewRequest(http.MethodGet, "/", nil)
				rec := httptest.NewRecorder()

				requestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(code)
				})).ServeHTTP(rec, req)

				lines := logs.All()

				assert.Equal(t, code, rec.Code)
				require.Len(t, lines, 1)
				assert.Contains(t, lines[0].Message, fmt.Sprintf(": %d-/", code))

				switch {
				case code <= 399:
					assert.Equal(t, zapcore.InfoLevel, lines[0].Level)
				case code <= 499:
					assert.Equal(t, zapcore.WarnLevel, lines[0].Level)
				default:
					assert.Equal(t, zapcore.ErrorLevel, lines[0].Level)
				}
			})
		}
	})

	t.Run("Should keep the first status when WriteHeader is called twice", func(t *testing.T) {
		t.Parallel()

		requestLogger, logs := newObservedHandler(zapcore.InfoLevel)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		requestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.WriteHeader(http.StatusInternalServerError)
		})).ServeHTTP(rec, req)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
		assert.Contains(t, logs.All()[0].Message, ": 404-/")
	})

	t.Run("Log when a handler panicked", func(t *testing.T) {
		t.Parallel()

		t.Run("With error", func(t *testing.T) {
			t.Parallel()

			requestLogger, logs := newObservedHandler(zapcore.InfoLevel)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Request-ID", "panicking")
			rec := httptest.NewRecorder()

			broken := errors.New("broken")
			assert.PanicsWithError(t, broken.Error(), func() {
				requestLogger(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
					panic(broken)
				})).ServeHTTP(rec, req)
			})

			lines := logs.All()
			require.Len(t, lines, 1)
			assert.Equal(t, zapcore.ErrorLevel, lines[0].Level)
			assert.Equal(t, "HTTP request panicked", lines[0].Message)
			assert.Equal(t, "panicking", lines[0].ContextMap()[correlation.FieldKey])
		})

		t.Run("With nil", func(t *testing.T) {
			t.Parallel()

			requestLogger, logs := newObservedHandler(zapcore.InfoLevel)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()

			assert.Panics(t, func() {
				requestLogger(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
					panic(nil)
				})).ServeHTTP(rec, req)
			})

			lines := logs.All()
			require.Len(t, lines, 1)
			assert.Equal(t, zapcore.ErrorLevel, lines[0].Level)
			assert.Equal(t, "HTTP request panicked", lines[0].Message)
		})

		t.Run("Should report 500 when nothing was written", func(t *testing.T) {
			t.Parallel()

			requestLogger, logs := newObservedHandler(zapcore.InfoLevel,
				httplog.WithRequestFormatter(httplog.ElasticCommonSchemaFormatter),
			)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()

			assert.Panics(t, func() {
				requestLogger(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
					panic("boom")
				})).ServeHTTP(rec, req)
			})

			require.Equal(t, 1, logs.Len())
			httpMap, ok := logs.All()[0].ContextMap()["http"].(map[string]interface{})
			require.True(t, ok, "http field should be a map")
			responseMap, ok := httpMap["response"].(map[string]interface{})
			require.True(t, ok, "response field should be a map")
			assert.Equal(t, 500, responseMap["status_code"])
		})
	})

	t.Run("Test different formatters", func(t *testing.T) {
		t.Parallel()

		formatters := []struct {
			name      string
			formatter httplog.Formatter
		}{
			{"ECS", httplog.ElasticCommonSchemaFormatter},
			{"GCloud", httplog.NewGoogleCloudFormatter("test-project")},
			{"Noop", httplog.NoopFormatter},
		}

		for _, f := range formatters {
			t.Run(f.name, func(t *testing.T) {
				t.Parallel()

				requestLogger, logs := newObservedHandler(zapcore.InfoLevel,
					httplog.WithRequestFormatter(f.formatter),
					httplog.WithTraceFormatter(f.formatter),
				)

				req := httptest.NewRequest(http.MethodGet, "/", nil)
				rec := httptest.NewRecorder()

				requestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusOK)
				})).ServeHTTP(rec, req)

				lines := logs.All()

				assert.Equal(t, http.StatusOK, rec.Code)
				require.Len(t, lines, 1)
				assert.Equal(t, zapcore.InfoLevel, lines[0].Level)
				assert.Regexp(t, finishedLine, lines[0].Message)
			})
		}
	})

	t.Run("Should add the request id to the ECS fields", func(t *testing.T) {
		t.Parallel()

		requestLogger, logs := newObservedHandler(zapcore.InfoLevel,
			httplog.WithRequestFormatter(httplog.ElasticCommonSchemaFormatter),
		)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "ecs-id")
		rec := httptest.NewRecorder()

		requestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		})).ServeHTTP(rec, req)

		require.Equal(t, 1, logs.Len())

		httpMap, ok := logs.All()[0].ContextMap()["http"].(map[string]interface{})
		require.True(t, ok, "http field should be a map")

		requestMap, ok := httpMap["request"].(map[string]interface{})
		require.True(t, ok, "request field should be a map")
		assert.Equal(t, "ecs-id", requestMap["id"])

		responseMap, ok := httpMap["response"].(map[string]interface{})
		require.True(t, ok, "response field should be a map")
		assert.Equal(t, 201, responseMap["status_code"])
		assert.Equal(t, "application/json", responseMap["mime_type"])

		bodyMap, ok := responseMap["body"].(map[string]interface{})
		require.True(t, ok, "body field should be a map")
		assert.Equal(t, int64(2), bodyMap["bytes"])
	})

	t.Run("Should add the request id as the gcloud operation", func(t *testing.T) {
		t.Parallel()

		requestLogger, logs := newObservedHandler(zapcore.InfoLevel,
			httplog.WithRequestFormatter(httplog.NewGoogleCloudFormatter("test-project")),
		)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "gcloud-id")
		rec := httptest.NewRecorder()

		requestLogger(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {})).ServeHTTP(rec, req)

		require.Equal(t, 1, logs.Len())
		opMap, ok := logs.All()[0].ContextMap()["logging.googleapis.com/operation"].(map[string]interface{})
		require.True(t, ok, "operation field should be a map")
		assert.Equal(t, "gcloud-id", opMap["id"])

		httpMap, ok := logs.All()[0].ContextMap()["httpRequest"].(map[string]interface{})
		require.True(t, ok, "httpRequest field should be a map")
		assert.Equal(t, 200, httpMap["status"])
	})

	t.Run("Should inject trace ID into logs when in active span", func(t *testing.T) {
		t.Parallel()

		requestLogger, logs := newObservedHandler(zapcore.InfoLevel)

		tracer := noop.NewTracerProvider().Tracer("test")
		parentSpan := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID{12, 34, 56, 78, 90},
			SpanID:     trace.SpanID{43, 21},
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})
		ctx, span := tracer.Start(trace.ContextWithSpanContext(context.Background(), parentSpan), "test-span", trace.WithNewRoot())
		defer span.End()

		req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httplog.FromContext(r.Context()).Info("This should also contain the trace ID")
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rec, req)

		lines := logs.All()
		require.Len(t, lines, 2)

		traceID := span.SpanContext().TraceID().String()
		for _, line := range lines {
			traceMap, ok := line.ContextMap()["trace"].(map[string]interface{})
			require.True(t, ok, "trace field should be a map")
			assert.Equal(t, traceID, traceMap["id"])
			assert.Equal(t, true, traceMap["sampled"])
		}
	})

	t.Run("Should not add trace fields without a span", func(t *testing.T) {
		t.Parallel()

		requestLogger, logs := newObservedHandler(zapcore.InfoLevel)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		requestLogger(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {})).ServeHTTP(rec, req)

		require.Equal(t, 1, logs.Len())
		assert.NotContains(t, logs.All()[0].ContextMap(), "trace")
	})

	t.Run("Check custom per request logger function", func(t *testing.T) {
		t.Parallel()

		requestLogger, logs := newObservedHandler(zapcore.InfoLevel,
			httplog.WithPerRequestLogger(func(parent *zap.Logger, _ *http.Request) *zap.Logger {
				return parent.With(zap.String("custom", "field"))
			}),
		)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		requestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rec, req)

		lines := logs.All()
		require.Len(t, lines, 1)
		assert.Equal(t, "field", lines[0].ContextMap()["custom"])
	})

	t.Run("Check custom per request filter function", func(t *testing.T) {
		t.Parallel()

		t.Run("Should not log request when filter returns false", func(t *testing.T) {
			t.Parallel()

			requestLogger, logs := newObservedHandler(zapcore.DebugLevel,
				httplog.WithStartLog(true),
				httplog.WithPerRequestFilter(func(_ *http.Request, _ zapcore.Level) bool {
					return false
				}),
			)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()

			requestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rec, req)

			assert.Empty(t, logs.All())
		})

		t.Run("Should only log the levels the filter accepts", func(t *testing.T) {
			t.Parallel()

			filter := httplog.WithPerRequestFilter(func(req *http.Request, level zapcore.Level) bool {
				return req.URL.Query().Get("shouldLogLevel") == level.String()
			})

			cases := map[string]struct {
				level   zapcore.Level
				message *regexp.Regexp
			}{
				"info":  {level: zapcore.InfoLevel, message: finishedLine},
				"debug": {level: zapcore.DebugLevel, message: regexp.MustCompile(`^Received HTTP request$`)},
			}
			for name, tc := range cases {
				t.Run(name, func(t *testing.T) {
					t.Parallel()

					requestLogger, logs := newObservedHandler(zapcore.DebugLevel, httplog.WithStartLog(true), filter)

					req := httptest.NewRequest(http.MethodGet, "/?shouldLogLevel="+name, nil)
					rec := httptest.NewRecorder()

					requestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
						w.WriteHeader(http.StatusOK)
					})).ServeHTTP(rec, req)

					lines := logs.All()
					require.Len(t, lines, 1)
					assert.Equal(t, tc.level, lines[0].Level)
					assert.Regexp(t, tc.message, lines[0].Message)
				})
			}
		})
	})

	t.Run("Should keep concurrent requests isolated", func(t *testing.T) {
		t.Parallel()

		requestLogger, logs := newObservedHandler(zapcore.InfoLevel)
		h := requestLogger(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			httplog.FromContext(r.Context()).Info("work", zap.String("expected", correlation.ID(r.Context())))
		}))

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Header.Set("X-Request-ID", fmt.Sprintf("req-%d", i))
				h.ServeHTTP(httptest.NewRecorder(), req)
			}(i)
		}
		wg.Wait()

		work := logs.FilterMessage("work").All()
		require.Len(t, work, 50)
		for _, line := range work {
			ctx := line.ContextMap()
			assert.Equal(t, ctx["expected"], ctx[correlation.FieldKey])
		}
	})
}

func TestFormatterByName(t *testing.T) {
	t.Parallel()

	t.Run("Should resolve the known formats", func(t *testing.T) {
		t.Parallel()

		f, err := httplog.FormatterByName("ECS", "")
		require.NoError(t, err)
		assert.Same(t, httplog.ElasticCommonSchemaFormatter, f)

		f, err = httplog.FormatterByName("none", "")
		require.NoError(t, err)
		assert.Same(t, httplog.NoopFormatter, f)

		f, err = httplog.FormatterByName("", "")
		require.NoError(t, err)
		assert.Same(t, httplog.NoopFormatter, f)

		f, err = httplog.FormatterByName("gcloud", "my-project")
		require.NoError(t, err)
		assert.NotNil(t, f)
	})

	t.Run("Should reject gcloud without a project", func(t *testing.T) {
		t.Parallel()

		_, err := httplog.FormatterByName("gcloud", "")
		assert.Error(t, err)
	})

	t.Run("Should reject unknown formats", func(t *testing.T) {
		t.Parallel()

		_, err := httplog.FormatterByName("xml", "")
		assert.ErrorContains(t, err, `unknown log format "xml"`)
	})
}
