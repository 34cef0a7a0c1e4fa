// Package logging defines the Logger collaborator interface spec §6
// requires the core to accept (debug/info/warn/error with a structured
// payload) and a default implementation styled after the teacher's
// internal/debug package: guarded by DEBUG_MODE, component-tagged, safe to
// call from concurrent workers.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Logger is the structured logging interface the core depends on. The HTTP
// API server, CLI and any other excluded collaborator may supply their own
// implementation; the core never imports a concrete logging library.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// StderrLogger is the default Logger: plain text lines to an io.Writer,
// gated by an enable flag so debug-level calls are free when disabled.
type StderrLogger struct {
	mu      sync.Mutex
	w       io.Writer
	debug   bool
	component string
}

// New returns a StderrLogger writing to os.Stderr. debugEnabled mirrors
// spec's DEBUG_MODE environment variable / --debug flag.
func New(debugEnabled bool) *StderrLogger {
	return &StderrLogger{w: os.Stderr, debug: debugEnabled}
}

// WithComponent returns a logger that prefixes every line with a component
// tag, matching the teacher's LogIndexing/LogSearch/LogMCP convention.
func (l *StderrLogger) WithComponent(name string) *StderrLogger {
	return &StderrLogger{w: l.w, debug: l.debug, component: name}
}

func (l *StderrLogger) log(level, msg string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format(time.RFC3339)
	tag := l.component
	if tag == "" {
		tag = "sentinel"
	}
	fmt.Fprintf(l.w, "%s [%s] %s: %s", ts, level, tag, msg)
	for k, v := range fields {
		fmt.Fprintf(l.w, " %s=%v", k, v)
	}
	fmt.Fprintln(l.w)
}

func (l *StderrLogger) Debug(msg string, fields map[string]any) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, fields)
}

func (l *StderrLogger) Info(msg string, fields map[string]any)  { l.log("INFO", msg, fields) }
func (l *StderrLogger) Warn(msg string, fields map[string]any)  { l.log("WARN", msg, fields) }
func (l *StderrLogger) Error(msg string, fields map[string]any) { l.log("ERROR", msg, fields) }

// Noop discards everything; useful for tests that don't care about log
// output but still need a Logger to satisfy a constructor.
type Noop struct{}

func (Noop) Debug(string, map[string]any) {}
func (Noop) Info(string, map[string]any)  {}
func (Noop) Warn(string, map[string]any)  {}
func (Noop) Error(string, map[string]any) {}
