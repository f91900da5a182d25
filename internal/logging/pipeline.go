package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/liaoxianfu/ai-agent/internal/logging/rotate"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultDir is the directory the file sinks write to when none is configured.
	DefaultDir = "logs"
	// DefaultRetentionDays is how many days of log files are kept.
	DefaultRetentionDays = 30
	// DefaultBufferSize is the size of the write queue of every sink.
	DefaultBufferSize = 256 * 1024
	// DefaultFlushInterval is how often queued lines are written out.
	DefaultFlushInterval = time.Second

	errorFilePrefix = "error_"
	dirPermissions  = 0o755
)

// ColorMode decides whether the console sink is colourised.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// Config describes the sinks of a Pipeline.
type Config struct {
	// Debug lowers the console level to DEBUG and adds stack traces to errors.
	Debug bool
	// Dir holds the rotating log files. It is created when missing.
	Dir string
	// RetentionDays is the number of days of files kept by each file sink.
	RetentionDays int
	// Compress zips files of finished days.
	Compress bool

	// DisableConsole turns the console sink off.
	DisableConsole bool
	// Console is where the console sink writes to. Defaults to stdout.
	Console zapcore.WriteSyncer
	// Color controls colourised console output.
	Color ColorMode

	// BufferSize and FlushInterval configure the asynchronous write queue of every sink.
	BufferSize    int
	FlushInterval time.Duration

	// Components maps component names to the level their standard library
	// output is bridged at. See DefaultComponents.
	Components map[string]zapcore.Level

	// Location and Now drive daily rotation. They default to local time.
	Location *time.Location
	Now      func() time.Time
}

// DefaultConfig returns the configuration used by the service.
func DefaultConfig() Config {
	return Config{
		Debug:         true,
		Dir:           DefaultDir,
		RetentionDays: DefaultRetentionDays,
		Compress:      true,
		Color:         ColorAuto,
		BufferSize:    DefaultBufferSize,
		FlushInterval: DefaultFlushInterval,
		Components:    DefaultComponents(),
	}
}

//nolint:gocritic // Config is copied on purpose
func (c Config) withDefaults() Config {
	if c.Dir == "" {
		c.Dir = DefaultDir
	}
	if c.Console == nil {
		c.Console = stdout()
	}
	if c.Color == "" {
		c.Color = ColorAuto
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.Components == nil {
		c.Components = DefaultComponents()
	}
	return c
}

func (c *Config) colorize() bool {
	switch c.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		return !color.NoColor
	}
}

// stdout hides (*os.File).Sync, which fails for terminals and pipes.
//
//nolint:ireturn // zapcore.WriteSyncer is what the cores consume
func stdout() zapcore.WriteSyncer {
	return zapcore.AddSync(struct{ io.Writer }{os.Stdout})
}

// Pipeline is the logging handle of the process. It is built once at startup
// with New and released with Close.
type Pipeline struct {
	logger     *zap.Logger
	level      zap.AtomicLevel
	components map[string]zapcore.Level

	syncers []*zapcore.BufferedWriteSyncer
	files   []*rotate.Writer
}

// New builds the console sink, creates the log directory and builds both
// rotating file sinks. The directory creation error is returned as is, wrapped.
func New(cfg Config) (*Pipeline, error) {
	cfg = cfg.withDefaults()

	consoleLevel := zapcore.InfoLevel
	if cfg.Debug {
		consoleLevel = zapcore.DebugLevel
	}

	p := &Pipeline{
		level:      zap.NewAtomicLevelAt(consoleLevel),
		components: cfg.Components,
	}

	var cores []zapcore.Core
	if !cfg.DisableConsole {
		cores = append(cores, zapcore.NewCore(newLineEncoder(cfg.colorize()), p.queue(cfg.Console, &cfg), p.level))
	}

	if err := os.MkdirAll(cfg.Dir, dirPermissions); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	sinks := []struct {
		prefix string
		level  zapcore.Level
	}{
		{prefix: "", level: zapcore.InfoLevel},
		{prefix: errorFilePrefix, level: zapcore.ErrorLevel},
	}
	for _, s := range sinks {
		w, err := rotate.New(rotate.Options{
			Dir:           cfg.Dir,
			Prefix:        s.prefix,
			RetentionDays: cfg.RetentionDays,
			Compress:      cfg.Compress,
			Location:      cfg.Location,
			Now:           cfg.Now,
		})
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("open %slog file: %w", s.prefix, err)
		}
		p.files = append(p.files, w)
		cores = append(cores, zapcore.NewCore(newLineEncoder(false), p.queue(w, &cfg), s.level))
	}

	opts := []zap.Option{
		zap.AddCaller(),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
	}
	if cfg.Debug {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	p.logger = zap.New(zapcore.NewTee(cores...), opts...)

	p.logger.Info("init logger success")
	return p, nil
}

func (p *Pipeline) queue(ws zapcore.WriteSyncer, cfg *Config) *zapcore.BufferedWriteSyncer {
	s := &zapcore.BufferedWriteSyncer{
		WS:            ws,
		Size:          cfg.BufferSize,
		FlushInterval: cfg.FlushInterval,
	}
	p.syncers = append(p.syncers, s)
	return s
}

// Logger returns the root logger of the pipeline.
func (p *Pipeline) Logger() *zap.Logger {
	return p.logger
}

// SetConsoleLevel changes the minimum level of the console sink at runtime.
func (p *Pipeline) SetConsoleLevel(l zapcore.Level) {
	p.level.SetLevel(l)
}

// Sync flushes every queued line to its destination.
func (p *Pipeline) Sync() error {
	var err error
	for _, s := range p.syncers {
		err = multierr.Append(err, s.Sync())
	}
	return err
}

// Close flushes and stops every write queue and closes the log files.
func (p *Pipeline) Close() error {
	var err error
	for _, s := range p.syncers {
		err = multierr.Append(err, s.Stop())
	}
	for _, f := range p.files {
		err = multierr.Append(err, f.Close())
	}
	return err
}
