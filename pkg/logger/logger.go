// Package logger provides component-tagged leveled logging for the SDK.
//
// Every call takes a component name first ("pipeline", "tags", "api", ...)
// so log output can be filtered per subsystem. Structured fields are passed
// as a plain map. All SDK failure visibility goes through this package: the
// public API never surfaces errors for fire-and-forget operations.
package logger

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
)

// Level controls which messages are emitted.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var (
	mu       sync.RWMutex
	levelVar = new(slog.LevelVar)
	log      = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
)

// SetLevel changes the minimum emitted level at runtime.
func SetLevel(l Level) {
	switch l {
	case DEBUG:
		levelVar.Set(slog.LevelDebug)
	case INFO:
		levelVar.Set(slog.LevelInfo)
	case WARN:
		levelVar.Set(slog.LevelWarn)
	case ERROR:
		levelVar.Set(slog.LevelError)
	}
}

// SetOutput replaces the underlying logger. Used by tests to capture output.
func SetOutput(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

func emit(level slog.Level, component, msg string, fields map[string]any) {
	mu.RLock()
	l := log
	mu.RUnlock()

	attrs := make([]any, 0, 2+2*len(fields))
	attrs = append(attrs, "component", component)

	// stable field order keeps log lines diffable
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k, fields[k])
	}

	l.Log(context.Background(), level, msg, attrs...)
}

func DebugC(component, msg string) { emit(slog.LevelDebug, component, msg, nil) }

func DebugCF(component, msg string, fields map[string]any) {
	emit(slog.LevelDebug, component, msg, fields)
}

func InfoC(component, msg string) { emit(slog.LevelInfo, component, msg, nil) }

func InfoCF(component, msg string, fields map[string]any) {
	emit(slog.LevelInfo, component, msg, fields)
}

func WarnC(component, msg string) { emit(slog.LevelWarn, component, msg, nil) }

func WarnCF(component, msg string, fields map[string]any) {
	emit(slog.LevelWarn, component, msg, fields)
}

func ErrorC(component, msg string) { emit(slog.LevelError, component, msg, nil) }

func ErrorCF(component, msg string, fields map[string]any) {
	emit(slog.LevelError, component, msg, fields)
}
