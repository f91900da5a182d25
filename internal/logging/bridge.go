package logging

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/liaoxianfu/ai-agent/internal/correlation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// slogLevelStep is the distance between two named slog levels.
const slogLevelStep = 4

//nolint:gochecknoglobals // lookup table
var levelsByName = map[string]zapcore.Level{
	slog.LevelDebug.String(): zapcore.DebugLevel,
	slog.LevelInfo.String():  zapcore.InfoLevel,
	slog.LevelWarn.String():  zapcore.WarnLevel,
	slog.LevelError.String(): zapcore.ErrorLevel,
}

// ZapLevel maps a slog level to a zap level. Named levels map one to one;
// any other level falls back to its numeric value, scaled to zap's spacing
// and clamped to the DEBUG..ERROR range.
func ZapLevel(l slog.Level) zapcore.Level {
	if lvl, ok := levelsByName[l.String()]; ok {
		return lvl
	}

	n := int(l)
	q := n / slogLevelStep
	if n%slogLevelStep != 0 && n < 0 {
		q--
	}

	switch {
	case q < int(zapcore.DebugLevel):
		return zapcore.DebugLevel
	case q > int(zapcore.ErrorLevel):
		return zapcore.ErrorLevel
	default:
		return zapcore.Level(q)
	}
}

// SlogLevel is the inverse of ZapLevel for zap's named levels.
func SlogLevel(l zapcore.Level) slog.Level {
	switch {
	case l <= zapcore.DebugLevel:
		return slog.LevelDebug
	case l == zapcore.InfoLevel:
		return slog.LevelInfo
	case l == zapcore.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Bridge is a slog.Handler that re-emits records through a zap logger. The
// record is attributed to the code that called slog (or log), and carries the
// correlation identifier of the context it was logged with.
type Bridge struct {
	logger *zap.Logger
	fields []zap.Field
	prefix string
}

var _ slog.Handler = &Bridge{}

// NewBridge returns a slog.Handler writing to l.
func NewBridge(l *zap.Logger) *Bridge {
	return &Bridge{logger: l}
}

func (b *Bridge) Enabled(_ context.Context, l slog.Level) bool {
	return b.logger.Core().Enabled(ZapLevel(l))
}

//nolint:gocritic // slog.Handler passes the record by value
func (b *Bridge) Handle(ctx context.Context, r slog.Record) error {
	ent := zapcore.Entry{
		LoggerName: b.logger.Name(),
		Time:       r.Time,
		Level:      ZapLevel(r.Level),
		Message:    r.Message,
	}
	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		ent.Caller = zapcore.EntryCaller{
			Defined:  true,
			PC:       frame.PC,
			File:     frame.File,
			Line:     frame.Line,
			Function: frame.Function,
		}
	}

	ce := b.logger.Core().Check(ent, nil)
	if ce == nil {
		return nil
	}

	fields := make([]zap.Field, 0, len(b.fields)+r.NumAttrs()+1)
	if id := correlation.FromContext(ctx, ""); id != "" {
		fields = append(fields, zap.String(correlation.FieldKey, id))
	}
	fields = append(fields, b.fields...)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendAttr(fields, b.prefix, a)
		return true
	})

	ce.Write(fields...)
	return nil
}

//nolint:ireturn // required by slog.Handler
func (b *Bridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := b.clone()
	for _, a := range attrs {
		c.fields = appendAttr(c.fields, c.prefix, a)
	}
	return c
}

//nolint:ireturn // required by slog.Handler
func (b *Bridge) WithGroup(name string) slog.Handler {
	if name == "" {
		return b
	}
	c := b.clone()
	c.prefix += name + "."
	return c
}

func (b *Bridge) clone() *Bridge {
	return &Bridge{
		logger: b.logger,
		fields: append([]zap.Field(nil), b.fields...),
		prefix: b.prefix,
	}
}

func appendAttr(fields []zap.Field, prefix string, a slog.Attr) []zap.Field {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return fields
	}

	key := prefix + a.Key
	v := a.Value

	switch v.Kind() {
	case slog.KindGroup:
		attrs := v.Group()
		if len(attrs) == 0 {
			return fields
		}
		if a.Key == "" {
			for _, ga := range attrs {
				fields = appendAttr(fields, prefix, ga)
			}
			return fields
		}
		return append(fields, zap.Object(key, zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
			for _, ga := range attrs {
				for _, f := range appendAttr(nil, "", ga) {
					f.AddTo(enc)
				}
			}
			return nil
		})))
	case slog.KindString:
		return append(fields, zap.String(key, v.String()))
	case slog.KindInt64:
		return append(fields, zap.Int64(key, v.Int64()))
	case slog.KindUint64:
		return append(fields, zap.Uint64(key, v.Uint64()))
	case slog.KindFloat64:
		return append(fields, zap.Float64(key, v.Float64()))
	case slog.KindBool:
		return append(fields, zap.Bool(key, v.Bool()))
	case slog.KindDuration:
		return append(fields, zap.Duration(key, v.Duration()))
	case slog.KindTime:
		return append(fields, zap.Time(key, v.Time()))
	default:
		if err, ok := v.Any().(error); ok {
			return append(fields, zap.NamedError(key, err))
		}
		return append(fields, zap.Any(key, v.Any()))
	}
}
