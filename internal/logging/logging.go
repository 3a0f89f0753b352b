package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Kelll31/aptscan/internal/interfaces"
)

// Re-export the shared logging types so callers can depend on this
// package alone.
type (
	Logger = interfaces.Logger
	Field  = interfaces.Field
)

// StdoutLogger is a tiny, structured logger used during development.
// It implements interfaces.Logger and prints JSON lines to an io.Writer
// (stdout by default).
type StdoutLogger struct {
	component string
	out       io.Writer
}

// NewStdoutLogger creates a new StdoutLogger. component is optional and
// is carried on every line; With() can replace it on a child logger.
func NewStdoutLogger(component string) *StdoutLogger {
	return &StdoutLogger{component: component, out: os.Stdout}
}

func (s *StdoutLogger) log(level string, msg string, fields ...interfaces.Field) {
	type outEntry struct {
		Level     string         `json:"level"`
		Msg       string         `json:"msg"`
		Component string         `json:"component,omitempty"`
		Time      string         `json:"time"`
		Fields    map[string]any `json:"fields,omitempty"`
	}
	m := make(map[string]any)
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	entry := outEntry{
		Level:     level,
		Msg:       msg,
		Component: s.component,
		Time:      time.Now().UTC().Format(time.RFC3339),
		Fields:    m,
	}
	enc, err := json.Marshal(entry)
	if err != nil {
		// Fallback simple formatting if JSON marshal fails
		fmt.Fprintf(s.out, "%s %s %v\n", level, msg, m)
		return
	}
	fmt.Fprintln(s.out, string(enc))
}

func (s *StdoutLogger) Debug(msg string, fields ...interfaces.Field) {
	s.log("debug", msg, fields...)
}

func (s *StdoutLogger) Info(msg string, fields ...interfaces.Field) {
	s.log("info", msg, fields...)
}

func (s *StdoutLogger) Warn(msg string, fields ...interfaces.Field) {
	s.log("warn", msg, fields...)
}

func (s *StdoutLogger) Error(msg string, fields ...interfaces.Field) {
	s.log("error", msg, fields...)
}

func (s *StdoutLogger) With(fields ...interfaces.Field) interfaces.Logger {
	child := &StdoutLogger{component: s.component, out: s.out}
	// A "component" field renames the child; other fields are carried by
	// the caller per-call.
	for _, f := range fields {
		if f.Key == "component" {
			if str, ok := f.Value.(string); ok {
				child.component = str
			}
		}
	}
	return child
}
