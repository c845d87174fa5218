// jacs is the operator CLI for local document work: key management,
// document creation and updates, verification, agreements and on-chain
// digest anchoring, all against files on disk.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/jacsproject/jacs-go/anchor"
	"github.com/jacsproject/jacs-go/cmd/flags"
	"github.com/jacsproject/jacs-go/document"
	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/keys"
	"github.com/jacsproject/jacs-go/schema"
	"github.com/jacsproject/jacs-go/signing"
	"github.com/urfave/cli/v2"
)

var flagIn = &cli.StringFlag{
	Name:     "in",
	Required: true,
	Usage:    "path of the input document",
}
var flagOut = &cli.StringFlag{
	Name:  "out",
	Usage: "path to write the resulting document; stdout when empty",
}
var flagRPCAddr = &cli.StringFlag{
	Name:  "rpc-addr",
	Value: "http://127.0.0.1:8545",
	Usage: "address to connect to RPC",
}

var keyFlags = []cli.Flag{
	flags.KeyDirFlag,
	flags.KeyPassphraseFlag,
	flags.AgentIDFlag,
	flags.AgentAlgorithmFlag,
}

func main() {
	app := &cli.App{
		Name:  "jacs",
		Usage: "Create, update, verify and co-sign documents",
		Flags: flags.CommonFlags,
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "Generate an encrypted key pair for an agent",
				Flags: keyFlags,
				Action: func(cCtx *cli.Context) error {
					provider, agentID, err := fileProvider(cCtx)
					if err != nil {
						return err
					}
					algorithm, err := interfaces.ParseSigningAlgorithm(cCtx.String(flags.AgentAlgorithmFlag.Name))
					if err != nil {
						return err
					}
					pub, err := provider.Generate(agentID, algorithm)
					if err != nil {
						return err
					}
					fmt.Printf("agentID: %s\nalgorithm: %s\npublicKeyHash: %s\n",
						agentID, algorithm, interfaces.HashPublicKey(pub))
					return nil
				},
			},
			{
				Name:  "key-split",
				Usage: "Split the key passphrase into Shamir shares for backup",
				Flags: []cli.Flag{
					flags.KeyPassphraseFlag,
					&cli.IntFlag{Name: "threshold", Value: 3, Usage: "shares required to recover"},
					&cli.IntFlag{Name: "shares", Value: 5, Usage: "total shares to produce"},
					&cli.StringFlag{Name: "out-prefix", Value: "jacs-share", Usage: "output file prefix"},
				},
				Action: func(cCtx *cli.Context) error {
					passphrase := cCtx.String(flags.KeyPassphraseFlag.Name)
					if passphrase == "" {
						return errors.New("key-passphrase is required")
					}
					shares, err := keys.SplitPassphrase([]byte(passphrase), cCtx.Int("threshold"), cCtx.Int("shares"))
					if err != nil {
						return err
					}
					for i, share := range shares {
						name := fmt.Sprintf("%s-%d.b64", cCtx.String("out-prefix"), i+1)
						encoded := base64.StdEncoding.EncodeToString(share)
						if err := os.WriteFile(name, []byte(encoded), 0o600); err != nil {
							return err
						}
						fmt.Println(name)
					}
					return nil
				},
			},
			{
				Name:      "key-recover",
				Usage:     "Recover the key passphrase from Shamir share files",
				ArgsUsage: "share-file [share-file ...]",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() == 0 {
						return errors.New("at least one share file is required")
					}
					var shares [][]byte
					for _, name := range cCtx.Args().Slice() {
						encoded, err := os.ReadFile(name)
						if err != nil {
							return err
						}
						share, err := base64.StdEncoding.DecodeString(string(encoded))
						if err != nil {
							return fmt.Errorf("share file %s: %w", name, err)
						}
						shares = append(shares, share)
					}
					passphrase, err := keys.RecoverPassphrase(shares)
					if err != nil {
						return err
					}
					fmt.Println(string(passphrase))
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Create a signed document from a content file",
				Flags: append([]cli.Flag{flagIn, flagOut}, keyFlags...),
				Action: func(cCtx *cli.Context) error {
					engine, agent, err := localEngine(cCtx)
					if err != nil {
						return err
					}
					content, err := loadDocument(cCtx.String(flagIn.Name))
					if err != nil {
						return err
					}
					doc, err := engine.Create(context.Background(), agent, content)
					if err != nil {
						return err
					}
					return writeDocument(cCtx.String(flagOut.Name), doc)
				},
			},
			{
				Name:  "update",
				Usage: "Produce the next version of a document",
				Flags: append([]cli.Flag{
					flagIn,
					flagOut,
					&cli.StringFlag{Name: "current", Required: true, Usage: "path of the current signed version"},
				}, keyFlags...),
				Action: func(cCtx *cli.Context) error {
					engine, agent, err := localEngine(cCtx)
					if err != nil {
						return err
					}
					current, err := loadDocument(cCtx.String("current"))
					if err != nil {
						return err
					}
					newContent, err := loadDocument(cCtx.String(flagIn.Name))
					if err != nil {
						return err
					}
					doc, err := engine.Update(context.Background(), agent, current, newContent)
					if err != nil {
						return err
					}
					return writeDocument(cCtx.String(flagOut.Name), doc)
				},
			},
			{
				Name:  "verify",
				Usage: "Verify a document's digest, signature and agreement",
				Flags: append([]cli.Flag{flagIn}, keyFlags...),
				Action: func(cCtx *cli.Context) error {
					engine, agent, err := localEngine(cCtx)
					if err != nil {
						return err
					}
					doc, err := loadDocument(cCtx.String(flagIn.Name))
					if err != nil {
						return err
					}
					result := engine.Verify(context.Background(), agent.Keys, doc)
					out := map[string]any{
						"verified":    result.Verified,
						"digestOk":    result.DigestOK,
						"signatureOk": result.SignatureOK,
					}
					if result.AgreementFound {
						out["agreementState"] = result.AgreementState.String()
					}
					if result.Err != nil {
						out["error"] = result.Err.Error()
					}
					encoded, err := json.MarshalIndent(out, "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(encoded))
					if !result.Verified {
						return cli.Exit("verification failed", 1)
					}
					return nil
				},
			},
			{
				Name:  "agreement",
				Usage: "Propose, sign or refuse a multi-party agreement",
				Subcommands: []*cli.Command{
					{
						Name:  "propose",
						Usage: "Attach an agreement binding the current terms",
						Flags: append([]cli.Flag{
							flagIn,
							flagOut,
							&cli.StringSliceFlag{Name: "signer", Required: true, Usage: "agent uuid expected to sign; repeatable"},
							&cli.StringFlag{Name: "question", Usage: "what the signers are agreeing to"},
							&cli.StringFlag{Name: "context", Usage: "free-form agreement context"},
						}, keyFlags...),
						Action: func(cCtx *cli.Context) error {
							return mutateDocument(cCtx, func(engine *document.Engine, agent signing.AgentContext, doc map[string]any) error {
								return engine.ProposeAgreement(context.Background(), doc,
									cCtx.StringSlice("signer"), cCtx.String("question"), cCtx.String("context"))
							})
						},
					},
					{
						Name:  "sign",
						Usage: "Record consent to the agreement's bound terms",
						Flags: append([]cli.Flag{flagIn, flagOut}, keyFlags...),
						Action: func(cCtx *cli.Context) error {
							return mutateDocument(cCtx, func(engine *document.Engine, agent signing.AgentContext, doc map[string]any) error {
								return engine.SignAgreement(context.Background(), agent, doc)
							})
						},
					},
					{
						Name:  "disagree",
						Usage: "Record a signed refusal with a reason",
						Flags: append([]cli.Flag{
							flagIn,
							flagOut,
							&cli.StringFlag{Name: "reason", Required: true, Usage: "why the terms are refused"},
						}, keyFlags...),
						Action: func(cCtx *cli.Context) error {
							return mutateDocument(cCtx, func(engine *document.Engine, agent signing.AgentContext, doc map[string]any) error {
								return engine.DisagreeAgreement(context.Background(), agent, doc, cCtx.String("reason"))
							})
						},
					},
				},
			},
			{
				Name:  "anchor",
				Usage: "Anchor a document's digest in an Ethereum transaction",
				Flags: []cli.Flag{
					flagIn,
					flagRPCAddr,
					&cli.StringFlag{
						Name:     "eth-key",
						Required: true,
						Usage:    "hex-encoded private key of the anchoring account",
						EnvVars:  []string{"JACS_ETH_KEY"},
					},
				},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx, "jacs")
					digest, err := documentDigest(cCtx.String(flagIn.Name))
					if err != nil {
						return err
					}
					anchorer, err := anchor.NewAnchorer(context.Background(),
						cCtx.String(flagRPCAddr.Name), cCtx.String("eth-key"), logger)
					if err != nil {
						return err
					}
					txHash, err := anchorer.Anchor(context.Background(), digest)
					if err != nil {
						return err
					}
					fmt.Println(txHash.Hex())
					return nil
				},
			},
			{
				Name:  "anchor-verify",
				Usage: "Check a document's digest against an anchoring transaction",
				Flags: []cli.Flag{
					flagIn,
					flagRPCAddr,
					&cli.StringFlag{Name: "tx", Required: true, Usage: "anchoring transaction hash"},
					&cli.StringFlag{
						Name:     "eth-key",
						Required: true,
						Usage:    "hex-encoded private key; any key works for verification",
						EnvVars:  []string{"JACS_ETH_KEY"},
					},
				},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx, "jacs")
					digest, err := documentDigest(cCtx.String(flagIn.Name))
					if err != nil {
						return err
					}
					anchorer, err := anchor.NewAnchorer(context.Background(),
						cCtx.String(flagRPCAddr.Name), cCtx.String("eth-key"), logger)
					if err != nil {
						return err
					}
					pending, err := anchorer.VerifyAnchor(context.Background(),
						ethcommon.HexToHash(cCtx.String("tx")), digest)
					if err != nil {
						return err
					}
					if pending {
						fmt.Println("anchored (pending)")
					} else {
						fmt.Println("anchored")
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func fileProvider(cCtx *cli.Context) (*keys.FileProvider, interfaces.AgentID, error) {
	agentID := interfaces.AgentID(cCtx.String(flags.AgentIDFlag.Name))
	if agentID == "" {
		return nil, "", errors.New("agent-id is required")
	}
	if err := agentID.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid agent-id: %w", err)
	}
	passphrase := cCtx.String(flags.KeyPassphraseFlag.Name)
	if passphrase == "" {
		return nil, "", errors.New("key-passphrase is required")
	}
	logger := flags.SetupLogger(cCtx, "jacs")
	provider, err := keys.NewFileProvider(cCtx.String(flags.KeyDirFlag.Name), []byte(passphrase), logger)
	if err != nil {
		return nil, "", err
	}
	return provider, agentID, nil
}

// localEngine builds a storage-less engine and the acting agent's context.
func localEngine(cCtx *cli.Context) (*document.Engine, signing.AgentContext, error) {
	provider, agentID, err := fileProvider(cCtx)
	if err != nil {
		return nil, signing.AgentContext{}, err
	}
	algorithm, err := interfaces.ParseSigningAlgorithm(cCtx.String(flags.AgentAlgorithmFlag.Name))
	if err != nil {
		return nil, signing.AgentContext{}, err
	}

	validator, err := schema.NewValidator()
	if err != nil {
		return nil, signing.AgentContext{}, err
	}
	engine, err := document.NewEngine(document.Config{
		Validator: validator,
		Log:       flags.SetupLogger(cCtx, "jacs"),
	})
	if err != nil {
		return nil, signing.AgentContext{}, err
	}

	agent := signing.AgentContext{
		AgentID:      agentID,
		AgentVersion: interfaces.NewVersionID(),
		Algorithm:    algorithm,
		Keys:         provider,
	}
	return engine, agent, nil
}

func mutateDocument(cCtx *cli.Context, mutate func(*document.Engine, signing.AgentContext, map[string]any) error) error {
	engine, agent, err := localEngine(cCtx)
	if err != nil {
		return err
	}
	doc, err := loadDocument(cCtx.String(flagIn.Name))
	if err != nil {
		return err
	}
	if err := mutate(engine, agent, doc); err != nil {
		return err
	}
	return writeDocument(cCtx.String(flagOut.Name), doc)
}

func loadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return document.Parse(data)
}

func writeDocument(path string, doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func documentDigest(path string) (interfaces.Digest, error) {
	doc, err := loadDocument(path)
	if err != nil {
		return interfaces.Digest{}, err
	}
	stored, ok := doc[interfaces.FieldSha256].(string)
	if !ok || stored == "" {
		return interfaces.Digest{}, errors.New("document has no jacsSha256")
	}
	return interfaces.NewDigestFromHex(stored)
}
