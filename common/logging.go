// Package common provides shared utilities used across binaries:
// logger construction and build/version metadata.
package common

import (
	"log/slog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// LoggingOpts configures the process-wide logger.
type LoggingOpts struct {
	// Service is added as a "service" attribute to every record.
	Service string

	// JSON selects the JSON encoder instead of the console encoder.
	JSON bool

	// Debug lowers the level to debug.
	Debug bool

	// Version is added as a "version" attribute to every record.
	Version string
}

// SetupLogger builds a *slog.Logger backed by a zap core.
// All packages take *slog.Logger; zap stays an implementation detail here.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if opts.JSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(os.Stderr)), level)
	log := slog.New(zapslog.NewHandler(core))

	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
