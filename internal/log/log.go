// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log holds the process-wide zap logger and builds it from the
// logging configuration.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var logger *zap.Logger

func init() {
	logger, _ = zap.NewDevelopment()
}

// Logger returns the global logger.
func Logger() *zap.Logger {
	return logger
}

// SetLogger replaces the global logger.
func SetLogger(l *zap.Logger) {
	logger = l
}

// Format names accepted by New.
const (
	FormatJSON = "json"
	FormatText = "text"
	FormatAuto = "auto"
)

// New builds a logger writing to file, or to stderr when file is empty.
// Stdout is never used because the stdio transport owns it. With
// FormatAuto the console encoder is chosen when stderr is a terminal.
// The returned close func flushes the logger and closes the file.
func New(level, format, file string) (*zap.Logger, func() error, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var (
		out    zapcore.WriteSyncer
		closer io.Closer
		isTTY  bool
	)
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- path from config
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", file, err)
		}
		out, closer = zapcore.AddSync(f), f
	} else {
		out = zapcore.Lock(zapcore.AddSync(os.Stderr))
		isTTY = term.IsTerminal(int(os.Stderr.Fd()))
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch format {
	case FormatText:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	case FormatAuto, "":
		if isTTY {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, fmt.Errorf("invalid log format %q", format)
	}

	l := zap.New(zapcore.NewCore(encoder, out, lvl))
	closeFn := func() error {
		_ = l.Sync()
		if closer != nil {
			return closer.Close()
		}
		return nil
	}
	return l, closeFn, nil
}

// Debug logs at debug level on the global logger.
func Debug(msg string, fields ...zap.Field) {
	logger.Debug(msg, fields...)
}

// Info logs at info level on the global logger.
func Info(msg string, fields ...zap.Field) {
	logger.Info(msg, fields...)
}

// Warn logs at warn level on the global logger.
func Warn(msg string, fields ...zap.Field) {
	logger.Warn(msg, fields...)
}

// Error logs at error level on the global logger.
func Error(msg string, fields ...zap.Field) {
	logger.Error(msg, fields...)
}

// Sync flushes the global logger.
func Sync() error {
	return logger.Sync()
}
