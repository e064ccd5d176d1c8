// Package logging builds the process logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devrev/workspace-panel/internal/config"
)

// New builds a zap logger from the logging config.
func New(cfg config.LoggingConfig) *zap.Logger {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level))
	zcfg.OutputPaths = []string{"stdout"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger.With(zap.String("service", "workspace-panel"))
}

// ParseLevel converts a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
