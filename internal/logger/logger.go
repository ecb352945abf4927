// Package logger builds the zap logger used by the beacon command.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger for environment. "production" gets JSON output at
// info level; anything else gets colored console output at debug level.
// A non-empty level overrides the environment default.
func New(environment, level string) (*zap.Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		config.Level = lvl
	}

	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	// The relay writes records to stdout.
	config.OutputPaths = []string{"stderr"}

	return config.Build(zap.AddCaller())
}
