// Package monitoring provides the package-level diagnostic sink used by
// the analytics core. The core has no metrics or tracing surface of its
// own; analyzers emit occasional diagnostic lines through an injected
// Sink, which defaults to the package logger here.
package monitoring

import "log"

// Sink is a printf-style diagnostic function. Analyzers accept a Sink at
// construction so tests can capture or mute diagnostics per instance.
type Sink func(format string, v ...interface{})

// Logf is the package-level diagnostic logger. It defaults to log.Printf
// but may be replaced by SetLogger. Tests or production code can redirect
// or mute it.
var Logf Sink = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f Sink) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a Sink that prepends a component tag to every line,
// writing through to the package logger current at call time.
func Prefixed(tag string) Sink {
	return func(format string, v ...interface{}) {
		Logf("["+tag+"] "+format, v...)
	}
}
