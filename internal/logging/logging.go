// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the process-wide zap logger.
package logging

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger configuration.
type Options struct {
	Level   string // debug, info, warn, error
	File    string // optional JSON log file, in addition to stderr
	Verbose bool   // forces debug
	Quiet   bool   // raises stderr to warn
}

// New builds a console logger on stderr, teed into File when set.
// The returned cleanup flushes and closes the file.
func New(o Options) (*zap.Logger, func(), error) {
	lvl, err := ParseLevel(o.Level)
	if err != nil {
		return nil, nil, err
	}
	if o.Verbose {
		lvl = zapcore.DebugLevel
	}
	stderrLvl := lvl
	if o.Quiet && stderrLvl < zapcore.WarnLevel {
		stderrLvl = zapcore.WarnLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), stderrLvl),
	}

	closeFile := func() {}
	if o.File != "" {
		f, err := os.OpenFile(o.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "open log file %s", o.File)
		}
		closeFile = func() { _ = f.Close() }
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(f), lvl))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger, func() {
		_ = logger.Sync()
		closeFile()
	}, nil
}

// Setup builds a logger with New and installs it with zap.ReplaceGlobals.
func Setup(o Options) (*zap.Logger, func(), error) {
	logger, cleanup, err := New(o)
	if err != nil {
		return nil, nil, err
	}
	restore := zap.ReplaceGlobals(logger)
	return logger, func() {
		cleanup()
		restore()
	}, nil
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	var lvl zapcore.Level
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	if s == "warning" {
		s = "warn"
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, errors.Newf("invalid log level %q (debug, info, warn, error)", s)
	}
	return lvl, nil
}
