package cmd

import (
	"strings"

	"go.uber.org/zap"
)

func setupLogger() (*zap.Logger, error) {
	return buildLogger(logLevel, GetVerbose(), GetDebug())
}

func buildLogger(level string, verboseFlag, debugFlag bool) (*zap.Logger, error) {
	if debugFlag {
		level = "debug"
	} else if verboseFlag && level == "warn" {
		level = "info"
	}

	var zapLevel zap.AtomicLevel
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn", "warning":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config := zap.NewProductionConfig()
	config.Level = zapLevel
	config.Development = debugFlag

	return config.Build()
}
