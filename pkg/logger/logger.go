package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls how the global logger is built.
type Options struct {
	Prod  bool   // JSON encoding instead of console
	Level string // debug, info, warn, error
	File  string // optional rotated log file; stderr when empty

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	once  sync.Once
	sugar *zap.SugaredLogger
)

// Init initializes the global zap logger. Only the first call has an effect.
func Init(opts Options) {
	once.Do(func() {
		sugar = build(opts).Sugar()
	})
}

func build(opts Options) *zap.Logger {
	var encCfg zapcore.EncoderConfig
	if opts.Prod {
		encCfg = zap.NewProductionEncoderConfig()
	} else {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if opts.Prod {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	out := zapcore.Lock(os.Stderr)
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err == nil {
			out = zapcore.AddSync(&lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
				Compress:   opts.Compress,
			})
		}
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Level != "" {
		if l, err := zapcore.ParseLevel(opts.Level); err == nil {
			level.SetLevel(l)
		}
	} else if !opts.Prod {
		level.SetLevel(zapcore.DebugLevel)
	}

	return zap.New(zapcore.NewCore(enc, out, level), zap.AddCaller())
}

// Get returns the global logger
func Get() *zap.SugaredLogger {
	if sugar == nil {
		Init(Options{}) // default to dev
	}
	return sugar
}

// Sync flushes any buffered log entries.
func Sync() error {
	if sugar != nil {
		return sugar.Sync()
	}
	return nil
}
