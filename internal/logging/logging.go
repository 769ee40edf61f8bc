// Package logging selects and installs the shared go-logger instance
// from the pipeline's diagnostic/verbose configuration, the way the
// reference CLI's root command does for its own verbose/debug flags.
package logging

import (
	"github.com/cybergarage/go-logger/log"
)

// Options selects the shared logger's verbosity.
type Options struct {
	// Diagnostic enables capture and timing logs, per spec §6's
	// diagnostic flag; it maps to LevelDebug.
	Diagnostic bool
	// Verbose enables LevelInfo output even without Diagnostic.
	Verbose bool
}

// Configure installs the shared logger at the level Options selects.
// With neither flag set, it installs nil as the shared logger, replacing
// any logger configured earlier.
func Configure(opts Options) {
	switch {
	case opts.Diagnostic:
		log.SetSharedLogger(log.NewStdoutLogger(log.LevelDebug))
	case opts.Verbose:
		log.SetSharedLogger(log.NewStdoutLogger(log.LevelInfo))
	default:
		log.SetSharedLogger(nil)
	}
}
