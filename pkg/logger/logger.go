// Package logger constructs the structured logger shared by all subsystems.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a SugaredLogger for the given service name. Output goes to
// stderr in production JSON encoding; the service name is attached to every
// entry so multiple index instances can share a sink.
func New(service string) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(zapcore.InfoLevel),
	)

	return zap.New(core).Sugar().With("service", service)
}

// NewNop returns a logger that discards everything. Used by tests and by
// callers that wire their own logging.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
