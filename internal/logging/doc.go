// Package logging builds the process logging pipeline on top of zap.
//
// A Pipeline owns three sinks that share one line format: a colourised
// console, a daily rotating file for INFO and above and a daily rotating file
// for ERROR and above. Every line carries the correlation identifier of the
// request it was emitted for (see package correlation).
//
// Output of the standard library loggers (log and log/slog) and of named
// components such as the HTTP server is bridged into the same sinks once the
// pipeline is installed:
//
//	p, err := logging.New(logging.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	restore, err := p.Install()
//	if err != nil {
//		return err
//	}
//	defer restore()
package logging
