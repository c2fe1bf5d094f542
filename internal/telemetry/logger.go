// Package telemetry builds the process-wide structured logger shared by
// cmd/tftpd and cmd/tftp, and the HTTP server that exposes a Prometheus
// registry's /metrics endpoint.
package telemetry

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap.SugaredLogger at the given level ("debug",
// "info", "warn", or "error", case-insensitive; unrecognized values
// fall back to "info"). Output is console-encoded to stderr, matching
// the teacher's development-friendly log format.
func NewLogger(level string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		// zap.NewProductionConfig().Build() only fails on a malformed
		// sink URL, none of which are configured above.
		panic(fmt.Errorf("telemetry: build logger: %w", err))
	}

	return l.Sugar()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
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
