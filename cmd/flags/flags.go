// Package flags holds cli flag definitions and setup helpers shared by the
// jacs binaries.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jacsproject/jacs-go/common"
	"github.com/jacsproject/jacs-go/httpserver"
	"github.com/urfave/cli/v2"
)

// SetupLogger builds the process logger from the common logging flags.
func SetupLogger(cCtx *cli.Context, service string) *slog.Logger {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJSONFlag.Name),
		Service: service,
		Version: common.Version,
	})

	if cCtx.Bool(LogUIDFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ConfigureServer builds the HTTP server config from the common server flags.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}
var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}

var KeyDirFlag = &cli.StringFlag{
	Name:  "key-dir",
	Value: "./jacs_keys",
	Usage: "directory holding encrypted agent key files",
}
var KeyPassphraseFlag = &cli.StringFlag{
	Name:    "key-passphrase",
	Usage:   "passphrase protecting private key files",
	EnvVars: []string{"JACS_KEY_PASSPHRASE"},
}
var AgentIDFlag = &cli.StringFlag{
	Name:  "agent-id",
	Usage: "uuid of the agent acting on behalf of this process",
}
var AgentAlgorithmFlag = &cli.StringFlag{
	Name:  "agent-algorithm",
	Value: "ring-Ed25519",
	Usage: "signing algorithm: RSA-PSS, ring-Ed25519, pq-dilithium or pq2025",
}

// CommonFlags are shared by every binary.
var CommonFlags = []cli.Flag{
	LogJSONFlag,
	LogDebugFlag,
	LogUIDFlag,
}
