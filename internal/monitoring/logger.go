// Package monitoring holds the diagnostic loggers shared by the scoring
// worker, the store and the API.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger so tests can capture or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Verbose enables Debugf output.
var Verbose bool

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Debugf logs through Logf when Verbose is set.
func Debugf(format string, v ...interface{}) {
	if !Verbose {
		return
	}
	Logf("[debug] "+format, v...)
}
