package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type loggerCtxKeyType struct{}

var loggerCtxKey = loggerCtxKeyType{}

func createLogger(debug bool, logLevel string) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", logLevel, err)
	}

	var loggerCfg zap.Config
	if debug {
		loggerCfg = zap.NewDevelopmentConfig()
		level.SetLevel(zap.DebugLevel)
	} else {
		loggerCfg = zap.NewProductionConfig()
	}
	loggerCfg.Level = level

	logger, err := loggerCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger.Named("archivetool"), nil
}

func withLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

// getLogger returns the logger stored by the root command, or a no-op logger.
func getLogger(ctx context.Context) *zap.Logger {
	logger, ok := ctx.Value(loggerCtxKey).(*zap.Logger)
	if !ok {
		return zap.NewNop()
	}
	return logger
}
