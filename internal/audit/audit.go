// Package audit records every mutating panel operation as one JSON line
// in an append-only log file.
package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Logger writes audit events. The zero value discards events, which
// keeps tests quiet.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

// Open creates (or appends to) the audit log at path.
func Open(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Logger{
		slog: slog.New(slog.NewJSONHandler(f, nil)),
		file: f,
	}, nil
}

// Record logs one operation with its outcome and key/value details.
func (l *Logger) Record(op string, err error, args ...any) {
	if l == nil || l.slog == nil {
		return
	}
	args = append(args, "op", op)
	if err != nil {
		args = append(args, "outcome", "error", "error", err.Error())
		l.slog.Error("operation failed", args...)
		return
	}
	args = append(args, "outcome", "ok")
	l.slog.Info("operation completed", args...)
}

func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
