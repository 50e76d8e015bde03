// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logger holds the process-wide structured logger of mxcp-auth.
//
// Call sites use the terse helpers (Infow, Debugf, ...). Components that take
// a logger as a dependency can obtain the underlying *slog.Logger with [Get].
// Attributes whose key names a credential are always redacted.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/spf13/viper"

	"github.com/stacklok/mxcp-auth/pkg/env"
)

// Redacted replaces the value of sensitive attributes.
const Redacted = "[REDACTED]"

// sensitiveKeys are attribute keys never written in clear. Matching is case
// insensitive on the last path element, so "provider.access_token" matches.
var sensitiveKeys = map[string]struct{}{
	"access_token":   {},
	"refresh_token":  {},
	"id_token":       {},
	"token":          {},
	"client_secret":  {},
	"code":           {},
	"code_verifier":  {},
	"state":          {},
	"encryption_key": {},
	"password":       {},
	"authorization":  {},
}

// Format selects the slog handler used for output.
type Format int

const (
	// FormatText writes key=value lines.
	FormatText Format = iota
	// FormatJSON writes one JSON object per line.
	FormatJSON
)

type options struct {
	format Format
	level  slog.Level
	output io.Writer
}

// Option configures [New].
type Option func(*options)

// WithFormat sets the output format.
func WithFormat(f Format) Option {
	return func(o *options) { o.format = f }
}

// WithLevel sets the minimum level.
func WithLevel(l slog.Level) Option {
	return func(o *options) { o.level = l }
}

// WithOutput sets the destination writer. Defaults to stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// New builds a redacting *slog.Logger. The default is JSON at info level on
// stderr.
func New(opts ...Option) *slog.Logger {
	o := &options{format: FormatJSON, level: slog.LevelInfo, output: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}
	handlerOpts := &slog.HandlerOptions{Level: o.level, ReplaceAttr: redact}
	if o.format == FormatText {
		return slog.New(slog.NewTextHandler(o.output, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(o.output, handlerOpts))
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	if _, ok := sensitiveKeys[key]; ok && a.Value.Kind() != slog.KindBool {
		return slog.String(a.Key, Redacted)
	}
	return a
}

var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(New())
}

// Get returns the current logger.
func Get() *slog.Logger {
	return singleton.Load()
}

// Set replaces the logger. Tests use it to capture output.
func Set(l *slog.Logger) {
	singleton.Store(l)
}

func log(level slog.Level, msg string, args ...any) {
	l := singleton.Load()
	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, msg, args...)
}

func logf(level slog.Level, format string, args ...any) {
	l := singleton.Load()
	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

// Debug logs at debug level.
func Debug(msg string) { log(slog.LevelDebug, msg) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { logf(slog.LevelDebug, format, args...) }

// Debugw logs at debug level with key-value pairs.
func Debugw(msg string, keysAndValues ...any) { log(slog.LevelDebug, msg, keysAndValues...) }

// Info logs at info level.
func Info(msg string) { log(slog.LevelInfo, msg) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { logf(slog.LevelInfo, format, args...) }

// Infow logs at info level with key-value pairs.
func Infow(msg string, keysAndValues ...any) { log(slog.LevelInfo, msg, keysAndValues...) }

// Warn logs at warn level.
func Warn(msg string) { log(slog.LevelWarn, msg) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { logf(slog.LevelWarn, format, args...) }

// Warnw logs at warn level with key-value pairs.
func Warnw(msg string, keysAndValues ...any) { log(slog.LevelWarn, msg, keysAndValues...) }

// Error logs at error level.
func Error(msg string) { log(slog.LevelError, msg) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { logf(slog.LevelError, format, args...) }

// Errorw logs at error level with key-value pairs.
func Errorw(msg string, keysAndValues ...any) { log(slog.LevelError, msg, keysAndValues...) }

// NewLogr returns a logr.Logger writing through the current logger, for
// libraries that log via logr.
func NewLogr() logr.Logger {
	return logr.FromSlogHandler(Get().Handler())
}

// Initialize configures the logger from the process environment and the
// viper "debug" flag.
func Initialize() {
	InitializeWithEnv(&env.OSReader{})
}

// InitializeWithEnv is Initialize with an injected environment.
// UNSTRUCTURED_LOGS=false selects JSON output; anything else is text.
func InitializeWithEnv(envReader env.Reader) {
	var opts []Option
	if unstructuredLogsWithEnv(envReader) {
		opts = append(opts, WithFormat(FormatText))
	}
	if viper.GetBool("debug") {
		opts = append(opts, WithLevel(slog.LevelDebug))
	}

	l := New(opts...)
	singleton.Store(l)
	slog.SetDefault(l)
}

func unstructuredLogsWithEnv(envReader env.Reader) bool {
	v, err := strconv.ParseBool(envReader.Getenv("UNSTRUCTURED_LOGS"))
	if err != nil {
		// unset or not a bool
		return true
	}
	return v
}
