// Package monitoring carries the shared diagnostic logger used across the rig
// daemons. Keeping it in one place lets tests mute chatty components and lets
// the TELEOP_DEBUG environment variable turn on verbose tracing everywhere.
package monitoring

import (
	"log"
	"os"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Debugf logs only when TELEOP_DEBUG is set in the environment. Used for
// per-sample tracing that would otherwise swamp the logs at poll rates.
func Debugf(format string, v ...interface{}) {
	if os.Getenv("TELEOP_DEBUG") == "" {
		return
	}
	Logf(format, v...)
}
