package logging

import (
	"log"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Components known to the service.
const (
	// ComponentHTTPServer is the error log of net/http.Server.
	ComponentHTTPServer = "http.server"
	// ComponentHTTPAccess is the request logging middleware.
	ComponentHTTPAccess = "http.access"
	// ComponentStdLog is the output of the standard library log package.
	ComponentStdLog = "stdlog"
)

// DefaultComponents returns the default redirection table.
func DefaultComponents() map[string]zapcore.Level {
	return map[string]zapcore.Level{
		ComponentHTTPServer: zapcore.ErrorLevel,
		ComponentHTTPAccess: zapcore.InfoLevel,
		ComponentStdLog:     zapcore.InfoLevel,
	}
}

// ComponentLevel returns the level output of the named component is bridged
// at. Unknown components are bridged at INFO.
func (p *Pipeline) ComponentLevel(name string) zapcore.Level {
	if lvl, ok := p.components[name]; ok {
		return lvl
	}
	return zapcore.InfoLevel
}

// Component returns the pipeline logger named after a component. Entries
// below the component level are dropped.
func (p *Pipeline) Component(name string) *zap.Logger {
	l := p.logger.Named(name)
	// A core that already drops the level needs no filter, and zap rejects lowering it.
	if lvl := p.ComponentLevel(name); p.logger.Core().Enabled(lvl) {
		l = l.WithOptions(zap.IncreaseLevel(lvl))
	}
	return l
}

// StdLogger returns a standard library logger whose output goes through the
// pipeline at the level configured for the component, e.g. for
// http.Server.ErrorLog.
func (p *Pipeline) StdLogger(name string) *log.Logger {
	l, err := zap.NewStdLogAt(p.Component(name), p.ComponentLevel(name))
	if err != nil {
		// Only returned for levels above FATAL.
		return zap.NewStdLog(p.Component(name))
	}
	return l
}

// SlogLogger returns a slog logger for the component that writes through the pipeline.
func (p *Pipeline) SlogLogger(name string) *slog.Logger {
	return slog.New(NewBridge(p.Component(name)))
}

// SlogHandler returns the bridge used as the default slog handler.
func (p *Pipeline) SlogHandler() slog.Handler {
	return NewBridge(p.logger)
}
