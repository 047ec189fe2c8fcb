// Package logger builds the process-wide zap configuration. Every
// component receives a child logger tagged with its name so log lines
// can be filtered per subsystem.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func New(component string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.MessageKey = "action"
	lg, err := cfg.Build()
	if err != nil {
		lg = zap.NewNop()
	}
	return lg.With(zap.String("component", component))
}
