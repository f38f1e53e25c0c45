package logging

import (
	"context"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"strings"
)

// New builds the JSON production logger used by every binary.
func New(service, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	lg, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return lg.With(zap.String("service", service)), nil
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// FromContext tags lg with the chi request id, if the request carried one.
func FromContext(ctx context.Context, lg *zap.Logger) *zap.Logger {
	if id := middleware.GetReqID(ctx); id != "" {
		return lg.With(zap.String("request_id", id))
	}
	return lg
}
