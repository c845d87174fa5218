// jacsd serves the document API: create, update, verify and agreement
// operations over documents persisted in one or more storage backends.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jacsproject/jacs-go/api/handlers"
	"github.com/jacsproject/jacs-go/cmd/flags"
	"github.com/jacsproject/jacs-go/document"
	"github.com/jacsproject/jacs-go/httpserver"
	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/keys"
	"github.com/jacsproject/jacs-go/schema"
	"github.com/jacsproject/jacs-go/signing"
	"github.com/jacsproject/jacs-go/storage"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

var serverFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.MetricsAddrFlag,
	flags.PprofFlag,
	flags.DrainSecondsFlag,
	flags.AgentIDFlag,
	flags.AgentAlgorithmFlag,
	flags.KeyDirFlag,
	flags.KeyPassphraseFlag,
	&cli.StringSliceFlag{
		Name:  "storage",
		Value: cli.NewStringSlice("mem://"),
		Usage: "storage backend URIs (file://, mem://, s3://, ipfs://, postgres://); repeat for replication",
	},
	&cli.StringSliceFlag{
		Name:  "status-fields",
		Usage: "per-type agreement status fields as 'docType:field1,field2'; repeatable",
	},
	&cli.StringFlag{
		Name:    "vault-addr",
		Usage:   "Vault address; when set, keys come from Vault KV instead of key-dir",
		EnvVars: []string{"VAULT_ADDR"},
	},
	&cli.StringFlag{
		Name:    "vault-token",
		Usage:   "Vault token",
		EnvVars: []string{"VAULT_TOKEN"},
	},
	&cli.StringFlag{
		Name:  "vault-mount",
		Value: "secret",
		Usage: "Vault KV v2 mount path",
	},
	&cli.StringFlag{
		Name:  "vault-prefix",
		Value: "jacs/agents",
		Usage: "path prefix for agent keys inside the Vault mount",
	},
	&cli.StringFlag{
		Name:  "redis-addr",
		Usage: "redis address for the public key resolution cache; disabled when empty",
	},
	&cli.DurationFlag{
		Name:  "key-cache-ttl",
		Value: 5 * time.Minute,
		Usage: "time-to-live for cached public keys",
	},
	&cli.BoolFlag{
		Name:  "generate-key",
		Value: false,
		Usage: "generate a key pair for the agent if none exists",
	},
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "jacsd",
		Usage: "Serve the JACS document API",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx, "jacsd")
			ctx := context.Background()

			agentID := interfaces.AgentID(cCtx.String(flags.AgentIDFlag.Name))
			if agentID == "" {
				return errors.New("agent-id is required")
			}
			if err := agentID.Validate(); err != nil {
				return fmt.Errorf("invalid agent-id: %w", err)
			}
			algorithm := interfaces.SigningAlgorithm(cCtx.String(flags.AgentAlgorithmFlag.Name))

			// Key provider: Vault when configured, encrypted files otherwise.
			var provider interfaces.KeyProvider
			if vaultAddr := cCtx.String("vault-addr"); vaultAddr != "" {
				vp, err := keys.NewVaultProvider(vaultAddr, cCtx.String("vault-token"),
					cCtx.String("vault-mount"), cCtx.String("vault-prefix"), logger)
				if err != nil {
					logger.Error("Failed to create vault key provider", "err", err)
					return err
				}
				if cCtx.Bool("generate-key") {
					if _, _, err := vp.Resolve(ctx, agentID); errors.Is(err, interfaces.ErrKeyResolution) {
						if _, err := vp.Generate(ctx, agentID, algorithm); err != nil {
							return fmt.Errorf("key generation: %w", err)
						}
						logger.Info("Generated agent key pair", "agentID", agentID.String(), "algorithm", string(algorithm))
					}
				}
				provider = vp
			} else {
				passphrase := cCtx.String(flags.KeyPassphraseFlag.Name)
				if passphrase == "" {
					return errors.New("key-passphrase is required when using file-based keys")
				}
				fp, err := keys.NewFileProvider(cCtx.String(flags.KeyDirFlag.Name), []byte(passphrase), logger)
				if err != nil {
					logger.Error("Failed to create file key provider", "err", err)
					return err
				}
				if cCtx.Bool("generate-key") {
					if _, _, err := fp.Resolve(ctx, agentID); errors.Is(err, interfaces.ErrKeyResolution) {
						if _, err := fp.Generate(agentID, algorithm); err != nil {
							return fmt.Errorf("key generation: %w", err)
						}
						logger.Info("Generated agent key pair", "agentID", agentID.String(), "algorithm", string(algorithm))
					}
				}
				provider = fp
			}

			if redisAddr := cCtx.String("redis-addr"); redisAddr != "" {
				rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
				provider = keys.NewCachedProvider(provider, rdb, cCtx.Duration("key-cache-ttl"), logger)
				logger.Info("Public key cache enabled", "redisAddr", redisAddr)
			}

			// Storage: one backend per URI, replicated through MultiBackend.
			var locations []interfaces.StorageLocation
			for _, uri := range cCtx.StringSlice("storage") {
				loc, err := interfaces.NewStorageLocation(uri)
				if err != nil {
					return fmt.Errorf("storage URI %q: %w", uri, err)
				}
				locations = append(locations, loc)
			}
			store, err := storage.NewFactory(logger).CreateMultiStorage(locations)
			if err != nil {
				logger.Error("Failed to create storage", "err", err)
				return err
			}
			logger.Info("Storage configured", "location", store.LocationURI())

			statusFields, err := parseStatusFields(cCtx.StringSlice("status-fields"))
			if err != nil {
				return err
			}

			validator, err := schema.NewValidator()
			if err != nil {
				logger.Error("Failed to create schema validator", "err", err)
				return err
			}

			engine, err := document.NewEngine(document.Config{
				Validator:    validator,
				Storage:      store,
				Log:          logger,
				StatusFields: statusFields,
			})
			if err != nil {
				logger.Error("Failed to create document engine", "err", err)
				return err
			}

			agent := signing.AgentContext{
				AgentID:      agentID,
				AgentVersion: interfaces.NewVersionID(),
				Algorithm:    algorithm,
				Keys:         provider,
			}
			if err := agent.Validate(); err != nil {
				return err
			}

			handler := handlers.New(engine, agent, provider, logger)

			cfg := flags.ConfigureServer(cCtx, logger)
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// parseStatusFields parses "docType:field1,field2" entries.
func parseStatusFields(entries []string) (map[string][]string, error) {
	parsed := make(map[string][]string, len(entries))
	for _, entry := range entries {
		docType, fieldList, ok := strings.Cut(entry, ":")
		if !ok || docType == "" || fieldList == "" {
			return nil, fmt.Errorf("invalid status-fields entry %q, expected 'docType:field1,field2'", entry)
		}
		parsed[docType] = strings.Split(fieldList, ",")
	}
	return parsed, nil
}
