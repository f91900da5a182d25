package logging

import (
	"errors"
	"log"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrAlreadyInstalled is returned by Install while another pipeline is installed.
var ErrAlreadyInstalled = errors.New("logging: a pipeline is already installed")

//nolint:gochecknoglobals // the process has one set of global loggers
var installed atomic.Bool

// Install makes p the destination of the process wide loggers: zap.L(),
// slog.Default() and the log package. The returned func restores the
// previous loggers; calling it more than once is a no-op.
func (p *Pipeline) Install() (func(), error) {
	if !installed.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInstalled
	}

	prevSlog := slog.Default()
	prevWriter := log.Writer()
	prevFlags := log.Flags()
	prevPrefix := log.Prefix()

	undoZap := zap.ReplaceGlobals(p.logger)

	// slog.SetDefault only records the caller of log.Print when a file flag is set.
	log.SetFlags(prevFlags | log.Lshortfile)
	log.SetPrefix("")
	slog.SetDefault(slog.New(p.SlogHandler()))
	prevLevel := slog.SetLogLoggerLevel(SlogLevel(p.ComponentLevel(ComponentStdLog)))

	var once sync.Once
	return func() {
		once.Do(func() {
			slog.SetDefault(prevSlog)
			slog.SetLogLoggerLevel(prevLevel)
			log.SetOutput(prevWriter)
			log.SetFlags(prevFlags)
			log.SetPrefix(prevPrefix)
			undoZap()
			installed.Store(false)
		})
	}, nil
}
