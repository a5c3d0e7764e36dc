package planner

import "log"

// StdLogger adapts the stdlib logger to the Logger surface the planning
// core uses. A zero StdLogger is safe and silent.
type StdLogger struct {
	L *log.Logger
}

// NewStdLogger builds a stdlib-backed logger with the given bracketed
// prefix, e.g. "[HOST] ".
func NewStdLogger(prefix string) StdLogger {
	return StdLogger{L: log.New(log.Writer(), prefix, log.LstdFlags)}
}

func (s StdLogger) Debugf(format string, args ...interface{}) {
	if s.L != nil {
		s.L.Printf("DEBUG "+format, args...)
	}
}

func (s StdLogger) Warnf(format string, args ...interface{}) {
	if s.L != nil {
		s.L.Printf("WARN "+format, args...)
	}
}

func (s StdLogger) Errorf(format string, args ...interface{}) {
	if s.L != nil {
		s.L.Printf("ERROR "+format, args...)
	}
}
