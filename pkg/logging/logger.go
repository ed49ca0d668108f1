// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for DealDesk services.
//
// Built on the standard library slog package, with two destinations:
// stderr (always, unless Quiet) and an optional JSON log file per
// service and day. Services call Setup once at startup to install the
// configured logger as the slog default; the rest of the codebase logs
// through plain slog calls.
//
// # Basic Usage
//
//	logging.Setup("contextd")
//	slog.Info("starting", "port", port)
//
// # Log Levels
//
// Four levels, matching slog conventions: Debug for development
// troubleshooting, Info for normal operations, Warn for recoverable
// issues and degraded modes, Error for failed operations.
//
// # Security Considerations
//
// Nothing here redacts sensitive data. Callers must keep document
// contents, tokens, and credentials out of log attributes.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a level name ("debug", "info", "warn", "error") to a
// Level. Unknown names default to Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config configures a Logger. The zero value writes Info+ text to
// stderr.
type Config struct {
	// Level is the minimum level; messages below it are discarded.
	Level Level

	// Service is stamped on every entry as the "service" attribute.
	Service string

	// LogDir, when set, adds a JSON log file named
	// "{Service}_{YYYY-MM-DD}.log" in that directory. The directory is
	// created if missing.
	LogDir string

	// JSON switches stderr output from text to JSON. File output is
	// always JSON.
	JSON bool

	// Quiet disables stderr output entirely.
	Quiet bool
}

// Logger wraps slog.Logger with file lifecycle management.
//
// Thread Safety: Safe for concurrent use; slog handlers are.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

// New creates a Logger from the config. File-open failures degrade to
// stderr-only with a warning rather than failing startup.
func New(cfg Config) *Logger {
	var writers []io.Writer
	if !cfg.Quiet {
		writers = append(writers, os.Stderr)
	}

	var file *os.File
	if cfg.LogDir != "" {
		f, err := openLogFile(cfg.LogDir, cfg.Service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: file output disabled: %v\n", err)
		} else {
			file = f
			writers = append(writers, f)
		}
	}

	var w io.Writer = io.Discard
	if len(writers) == 1 {
		w = writers[0]
	} else if len(writers) > 1 {
		w = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.toSlogLevel()}
	var handler slog.Handler
	if cfg.JSON || cfg.LogDir != "" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return &Logger{slog: logger, file: file}
}

// Slog exposes the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Setup builds a logger for a service from the environment and installs
// it as the slog default.
//
// LOG_LEVEL sets the minimum level, LOG_DIR enables file output, and
// LOG_FORMAT=json switches stderr to JSON. Returns the Logger so the
// caller can Close it on shutdown.
func Setup(service string) *Logger {
	logger := New(Config{
		Level:   ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: service,
		LogDir:  os.Getenv("LOG_DIR"),
		JSON:    strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"),
	})
	slog.SetDefault(logger.Slog())
	return logger
}

func openLogFile(dir, service string) (*os.File, error) {
	if strings.HasPrefix(dir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot expand ~ in log dir: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("cannot create log dir %s: %w", dir, err)
	}

	if service == "" {
		service = "dealdesk"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file: %w", err)
	}
	return f, nil
}
