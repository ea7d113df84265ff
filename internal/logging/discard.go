package logging

import "fmt"

// discardLogger drops everything except Fatalf's handler dispatch. Used by
// tests and benchmarks that don't want log noise but still need Fatalf's
// side effect to fire.
type discardLogger struct {
	fatalHandler FatalHandler
}

// Discard is a Logger that writes nothing.
var Discard Logger = discardLogger{}

func (discardLogger) Errorf(string, ...any) {}
func (discardLogger) Warnf(string, ...any)  {}
func (discardLogger) Infof(string, ...any)  {}
func (discardLogger) Debugf(string, ...any) {}
func (d discardLogger) Fatalf(format string, args ...any) {
	if d.fatalHandler != nil {
		d.fatalHandler(fmt.Sprintf(format, args...))
	}
}

// NewDiscardLogger returns a discarding logger that still invokes h from
// Fatalf, useful for tests asserting fault-marking behavior without log
// output.
func NewDiscardLogger(h FatalHandler) Logger {
	return discardLogger{fatalHandler: h}
}
