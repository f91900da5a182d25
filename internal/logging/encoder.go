package logging

import (
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/liaoxianfu/ai-agent/internal/correlation"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	timeLayout    = "2006-01-02 15:04:05.000"
	levelWidth    = 8
	traceIDWidth  = 32
	undefinedFile = "undefined"
)

//nolint:gochecknoglobals // shared by all encoders
var bufferPool = buffer.NewPool()

type palette struct {
	time   *color.Color
	source *color.Color
	levels map[zapcore.Level]*color.Color
}

func newPalette() *palette {
	p := &palette{
		time:   color.New(color.FgGreen),
		source: color.New(color.FgCyan),
		levels: map[zapcore.Level]*color.Color{
			zapcore.DebugLevel:  color.New(color.FgBlue, color.Bold),
			zapcore.InfoLevel:   color.New(color.Bold),
			zapcore.WarnLevel:   color.New(color.FgYellow, color.Bold),
			zapcore.ErrorLevel:  color.New(color.FgRed, color.Bold),
			zapcore.DPanicLevel: color.New(color.FgWhite, color.BgRed, color.Bold),
			zapcore.PanicLevel:  color.New(color.FgWhite, color.BgRed, color.Bold),
			zapcore.FatalLevel:  color.New(color.FgWhite, color.BgRed, color.Bold),
		},
	}

	// Colour is decided per sink, not by the terminal detection of fatih/color.
	p.time.EnableColor()
	p.source.EnableColor()
	for _, c := range p.levels {
		c.EnableColor()
	}
	return p
}

// lineEncoder renders entries as
//
//	| time | level | traceid | process [pid]:tid | file:function:line - message |
//
// Fields other than the correlation identifier are appended to the message as
// a JSON object.
type lineEncoder struct {
	// Encoder accumulates the context fields added with Logger.With.
	zapcore.Encoder

	colors  *palette
	pid     string
	traceID string
}

var _ zapcore.Encoder = &lineEncoder{}

func newLineEncoder(colorize bool) *lineEncoder {
	enc := &lineEncoder{
		Encoder: zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			NameKey:        "logger",
			SkipLineEnding: true,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeName:     zapcore.FullNameEncoder,
		}),
		pid: strconv.Itoa(os.Getpid()),
	}
	if colorize {
		enc.colors = newPalette()
	}
	return enc
}

func (e *lineEncoder) AddString(key, value string) {
	if key == correlation.FieldKey {
		e.traceID = value
		return
	}
	e.Encoder.AddString(key, value)
}

//nolint:ireturn // required by zapcore.Encoder
func (e *lineEncoder) Clone() zapcore.Encoder {
	return &lineEncoder{
		Encoder: e.Encoder.Clone(),
		colors:  e.colors,
		pid:     e.pid,
		traceID: e.traceID,
	}
}

//nolint:gocritic // zapcore.Encoder passes the entry by value
func (e *lineEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	traceID := e.traceID
	rest := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		if f.Key == correlation.FieldKey && f.Type == zapcore.StringType {
			traceID = f.String
			continue
		}
		rest = append(rest, f)
	}
	if traceID == "" {
		traceID = correlation.Missing
	}

	extra, err := e.Encoder.EncodeEntry(zapcore.Entry{LoggerName: ent.LoggerName}, rest)
	if err != nil {
		return nil, err
	}
	defer extra.Free()

	file, function, line := callerParts(ent.Caller)

	buf := bufferPool.Get()
	buf.AppendString("| ")
	buf.AppendString(e.paintTime(ent.Time.Format(timeLayout)))
	buf.AppendString(" | ")
	buf.AppendString(e.paintLevel(ent.Level, center(ent.Level.CapitalString(), levelWidth)))
	buf.AppendString(" | ")
	buf.AppendString(e.paintLevel(ent.Level, padRight(escapeControl(traceID), traceIDWidth)))
	buf.AppendString(" | process [")
	buf.AppendString(e.paintSource(e.pid))
	buf.AppendString("]:")
	buf.AppendString(e.paintSource(strconv.Itoa(threadID())))
	buf.AppendString(" | ")
	buf.AppendString(e.paintSource(file))
	buf.AppendByte(':')
	buf.AppendString(e.paintSource(function))
	buf.AppendByte(':')
	buf.AppendString(e.paintSource(strconv.Itoa(line)))
	buf.AppendString(" - ")
	buf.AppendString(e.paintLevel(ent.Level, ent.Message))
	if extra.Len() > len("{}") {
		buf.AppendByte(' ')
		buf.AppendString(extra.String())
	}
	buf.AppendString(" |")
	if ent.Stack != "" {
		buf.AppendByte('\n')
		buf.AppendString(ent.Stack)
	}
	buf.AppendString(zapcore.DefaultLineEnding)

	return buf, nil
}

func (e *lineEncoder) paintTime(s string) string {
	if e.colors == nil {
		return s
	}
	return e.colors.time.Sprint(s)
}

func (e *lineEncoder) paintSource(s string) string {
	if e.colors == nil {
		return s
	}
	return e.colors.source.Sprint(s)
}

func (e *lineEncoder) paintLevel(l zapcore.Level, s string) string {
	if e.colors == nil {
		return s
	}
	c, ok := e.colors.levels[l]
	if !ok {
		return s
	}
	return c.Sprint(s)
}

func callerParts(c zapcore.EntryCaller) (file, function string, line int) {
	if !c.Defined {
		return undefinedFile, "?", 0
	}

	file = c.File
	// Keep the package directory and the file name, like zapcore.EntryCaller.TrimmedPath.
	if idx := strings.LastIndexByte(file, '/'); idx != -1 {
		if idx = strings.LastIndexByte(file[:idx], '/'); idx != -1 {
			file = file[idx+1:]
		}
	}

	function = c.Function
	if idx := strings.LastIndexByte(function, '/'); idx != -1 {
		function = function[idx+1:]
	}
	if idx := strings.IndexByte(function, '.'); idx != -1 {
		function = function[idx+1:]
	}
	if function == "" {
		function = "?"
	}

	return file, function, c.Line
}

func center(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}

func padRight(s string, width int) string {
	if pad := width - len(s); pad > 0 {
		return s + strings.Repeat(" ", pad)
	}
	return s
}

// escapeControl keeps a single rendered line per entry: control characters
// in s are written as Go escape sequences.
func escapeControl(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c != 0x7f {
			b.WriteByte(c)
			continue
		}
		q := strconv.QuoteRune(rune(c))
		b.WriteString(q[1 : len(q)-1])
	}
	return b.String()
}
