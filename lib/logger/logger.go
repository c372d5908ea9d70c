package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a named sugared logger. Every service holds one of these at
// package or struct level.
func New(name string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return l.Sugar().Named(name), nil
}

// NewNop returns a logger that discards everything.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
