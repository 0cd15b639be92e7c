package utilities

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level string
	Dev   bool
	// File enables a rotated JSON sink next to stdout when set, e.g. "logs/service.log".
	File       string
	MaxAgeDays int
}

// ConfigFromEnv reads LOG_DEV, LOG_LEVEL, LOG_FILE and LOG_MAX_AGE_DAYS.
// The level defaults to debug in development and info otherwise.
func ConfigFromEnv() Config {
	cfg := Config{File: os.Getenv("LOG_FILE"), MaxAgeDays: 7}
	cfg.Dev, _ = strconv.ParseBool(os.Getenv("LOG_DEV"))
	if v, err := strconv.Atoi(os.Getenv("LOG_MAX_AGE_DAYS")); err == nil && v > 0 {
		cfg.MaxAgeDays = v
	}
	switch cfg.Level = strings.TrimSpace(os.Getenv("LOG_LEVEL")); {
	case cfg.Level != "":
	case cfg.Dev:
		cfg.Level = "debug"
	default:
		cfg.Level = "info"
	}
	return cfg
}

// parseLevel accepts zap level names in any case plus "warning".
// Unknown names log at info.
func parseLevel(name string) zapcore.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Init builds the process logger. Development mode ignores File.
func Init(cfg Config) (*zap.Logger, error) {
	lvl := parseLevel(cfg.Level)
	if cfg.Dev {
		dev := zap.NewDevelopmentConfig()
		dev.Level = zap.NewAtomicLevelAt(lvl)
		return dev.Build()
	}

	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.TimeKey = "time"
	enc := zapcore.NewJSONEncoder(ec)

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), lvl)}
	if cfg.File != "" {
		w, err := rotatingWriter(cfg.File, cfg.MaxAgeDays)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(w), lvl))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// rotatingWriter rotates daily; path is kept as a symlink to the current file.
func rotatingWriter(path string, maxAgeDays int) (*rotatelogs.RotateLogs, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = 7
	}
	w, err := rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithMaxAge(time.Duration(maxAgeDays)*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return w, nil
}
