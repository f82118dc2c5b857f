// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package xlog is the engine's structured logger. It keeps the teacher's
// call convention — Debug/Info/Warn/Error(msg string, keyAndValues ...any) —
// but backs it with zap's SugaredLogger instead of a hand-rolled logger.
package xlog

import (
	"os"
	"sync"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu           sync.RWMutex
	sugar        *zap.SugaredLogger
	currentLevel = zapcore.DebugLevel
	fileSink     *lumberjack.Logger
)

func encoderConfig() zapcore.EncoderConfig {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = "t"
	return enc
}

func init() {
	sugar = build()
}

// build assembles the current sugared logger from whatever sinks are
// configured: the console always, plus a rotating file if EnableRotatingFile
// has been called.
func build() *zap.SugaredLogger {
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stderr), currentLevel),
	}
	if fileSink != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(fileSink), currentLevel))
	}
	return zap.New(zapcore.NewTee(cores...)).Sugar()
}

// SetLevel adjusts the minimum level every configured sink emits.
func SetLevel(level zapcore.Level) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
	sugar = build()
}

// RotatingFileConfig configures an on-disk log sink that rotates by size,
// alongside the console sink every logger always has.
type RotatingFileConfig struct {
	// Path is the log file's location; lumberjack creates it and keeps its
	// rotated backups, named with a timestamp, in the same directory.
	Path string
	// MaxSizeMB is the size, in megabytes, a file reaches before rotating.
	MaxSizeMB int
	// MaxBackups caps how many rotated files are kept; 0 keeps them all.
	MaxBackups int
	// MaxAgeDays caps how long a rotated file is kept, in days; 0 disables
	// age-based cleanup.
	MaxAgeDays int
	// Compress gzips rotated files once they are no longer the active one.
	Compress bool
}

// EnableRotatingFile adds a rotating file sink on top of the console sink a
// dynhb-node always logs to, so long-running validators don't need an
// external log-rotation daemon watching their stderr.
func EnableRotatingFile(cfg RotatingFileConfig) {
	mu.Lock()
	defer mu.Unlock()
	fileSink = &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	sugar = build()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debug logs at debug level with alternating key/value pairs, mirroring the
// teacher's log.Debug("msg", "k1", v1, "k2", v2) call shape.
func Debug(msg string, kv ...interface{}) { current().Debugw(msg, kv...) }

// Info logs at info level.
func Info(msg string, kv ...interface{}) { current().Infow(msg, kv...) }

// Warn logs at warn level.
func Warn(msg string, kv ...interface{}) { current().Warnw(msg, kv...) }

// Error logs at error level.
func Error(msg string, kv ...interface{}) { current().Errorw(msg, kv...) }

// Sync flushes any buffered log entries, for use at process shutdown.
func Sync() error { return current().Sync() }
