package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/mindhaven/mindhaven/config"
)

// Rotation controls when a log file is rolled over and how many old files are kept.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// RotationFrom reads the rotation settings shared by the app and access logs.
func RotationFrom(cfg config.AppConfig) Rotation {
	return Rotation{
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	}
}

// InitLogger installs the process-wide logger: JSON on stdout, plus a rolling file when
// LogPath is set. Retrieve it with L().
func InitLogger(cfg config.AppConfig) error {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	cores := []zapcore.Core{zapcore.NewCore(jsonEncoder(), zapcore.Lock(os.Stdout), level)}
	if cfg.LogPath != "" {
		w, err := rollingWriter(cfg.LogPath, RotationFrom(cfg))
		if err != nil {
			return err
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder(), w, level))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if level == zapcore.DebugLevel {
		opts = append(opts, zap.Development())
	}
	zap.ReplaceGlobals(zap.New(zapcore.NewTee(cores...), opts...))
	return nil
}

// NewRollingFileLogger builds a file-only JSON logger, used for the gin access log.
func NewRollingFileLogger(path, level string, rot Rotation) (*zap.Logger, error) {
	if path == "" {
		return nil, errors.New("log path is empty")
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	w, err := rollingWriter(path, rot)
	if err != nil {
		return nil, err
	}
	return zap.New(zapcore.NewCore(jsonEncoder(), w, lvl)), nil
}

// L returns the installed logger; before InitLogger it is a no-op.
func L() *zap.Logger {
	return zap.L()
}

func rollingWriter(path string, rot Rotation) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    rot.MaxSizeMB,
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAgeDays,
		Compress:   rot.Compress,
	}), nil
}

func jsonEncoder() zapcore.Encoder {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	enc.EncodeDuration = zapcore.SecondsDurationEncoder
	return zapcore.NewJSONEncoder(enc)
}
