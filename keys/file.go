package keys

import (
	"context"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/signing"
)

const (
	publicKeyPEMType  = "JACS PUBLIC KEY"
	privateKeyPEMType = "JACS ENCRYPTED PRIVATE KEY"

	publicKeyFile  = "public.pem"
	privateKeyFile = "private.pem"
)

// FileProvider stores key material on disk, one directory per agent.
// Public keys are plain PEM; private keys are sealed with the provider's
// passphrase (see EncryptPrivateKey) before being written.
type FileProvider struct {
	baseDir    string
	passphrase []byte
	log        *slog.Logger
}

// NewFileProvider creates a file-backed provider rooted at baseDir.
func NewFileProvider(baseDir string, passphrase []byte, log *slog.Logger) (*FileProvider, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("file key provider requires a passphrase")
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	pass := make([]byte, len(passphrase))
	copy(pass, passphrase)

	return &FileProvider{baseDir: baseDir, passphrase: pass, log: log}, nil
}

// Generate creates a key pair for the agent and persists it.
func (p *FileProvider) Generate(agentID interfaces.AgentID, algorithm interfaces.SigningAlgorithm) (interfaces.PublicKey, error) {
	pair, err := signing.GenerateKeyPair(algorithm)
	if err != nil {
		return nil, err
	}
	defer zero(pair.Private)

	agentDir := filepath.Join(p.baseDir, agentID.String())
	if err := os.MkdirAll(agentDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create agent key directory: %w", err)
	}

	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:    publicKeyPEMType,
		Headers: map[string]string{"Algorithm": string(algorithm)},
		Bytes:   pair.Public,
	})
	if err := os.WriteFile(filepath.Join(agentDir, publicKeyFile), publicPEM, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}

	sealed, err := EncryptPrivateKey(p.passphrase, pair.Private)
	if err != nil {
		return nil, err
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:    privateKeyPEMType,
		Headers: map[string]string{"Algorithm": string(algorithm)},
		Bytes:   sealed,
	})
	if err := os.WriteFile(filepath.Join(agentDir, privateKeyFile), privatePEM, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}

	p.log.Info("Generated agent key pair",
		slog.String("agent_id", agentID.String()),
		slog.String("algorithm", string(algorithm)))

	return pair.Public, nil
}

// Resolve reads the agent's public key from disk.
func (p *FileProvider) Resolve(ctx context.Context, agentID interfaces.AgentID) (interfaces.PublicKey, interfaces.PublicKeyHash, error) {
	raw, err := os.ReadFile(filepath.Join(p.baseDir, agentID.String(), publicKeyFile))
	if err != nil {
		return nil, interfaces.PublicKeyHash{}, fmt.Errorf("%w: %v", interfaces.ErrKeyResolution, err)
	}

	block, _ := pem.Decode(raw)
	if block == nil || block.Type != publicKeyPEMType {
		return nil, interfaces.PublicKeyHash{}, fmt.Errorf("%w: malformed public key PEM for agent %s", interfaces.ErrKeyResolution, agentID)
	}

	pub := interfaces.PublicKey(block.Bytes)
	return pub, interfaces.HashPublicKey(pub), nil
}

// SigningKey unseals the agent's private key into a scoped handle.
func (p *FileProvider) SigningKey(ctx context.Context, agentID interfaces.AgentID) (*interfaces.SigningKeyHandle, error) {
	raw, err := os.ReadFile(filepath.Join(p.baseDir, agentID.String(), privateKeyFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrKeyResolution, err)
	}

	block, _ := pem.Decode(raw)
	if block == nil || block.Type != privateKeyPEMType {
		return nil, fmt.Errorf("%w: malformed private key PEM for agent %s", interfaces.ErrKeyResolution, agentID)
	}

	algorithm, err := interfaces.ParseSigningAlgorithm(block.Headers["Algorithm"])
	if err != nil {
		return nil, err
	}

	plaintext, err := DecryptPrivateKey(p.passphrase, block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrKeyResolution, err)
	}
	defer zero(plaintext)

	return interfaces.NewSigningKeyHandle(algorithm, plaintext), nil
}
