package keys

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	vault "github.com/hashicorp/vault/api"
	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/signing"
)

// VaultProvider stores agent key material in a Vault KV v2 mount, one secret
// per agent. Vault handles encryption at rest and access policy; this
// provider only encodes/decodes the material.
type VaultProvider struct {
	client *vault.Client
	mount  string
	prefix string
	log    *slog.Logger
}

// NewVaultProvider connects to Vault at addr using token auth.
func NewVaultProvider(addr, token, mount, prefix string, log *slog.Logger) (*VaultProvider, error) {
	cfg := vault.DefaultConfig()
	cfg.Address = addr

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultProvider{client: client, mount: mount, prefix: prefix, log: log}, nil
}

func (p *VaultProvider) secretPath(agentID interfaces.AgentID) string {
	if p.prefix == "" {
		return agentID.String()
	}
	return p.prefix + "/" + agentID.String()
}

// Generate creates a key pair for the agent and writes it to Vault.
func (p *VaultProvider) Generate(ctx context.Context, agentID interfaces.AgentID, algorithm interfaces.SigningAlgorithm) (interfaces.PublicKey, error) {
	pair, err := signing.GenerateKeyPair(algorithm)
	if err != nil {
		return nil, err
	}
	defer zero(pair.Private)

	_, err = p.client.KVv2(p.mount).Put(ctx, p.secretPath(agentID), map[string]any{
		"algorithm":   string(algorithm),
		"public_key":  base64.StdEncoding.EncodeToString(pair.Public),
		"private_key": base64.StdEncoding.EncodeToString(pair.Private),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write key material to vault: %w", err)
	}

	p.log.Info("Generated agent key pair in vault",
		slog.String("agent_id", agentID.String()),
		slog.String("algorithm", string(algorithm)))

	return pair.Public, nil
}

// Resolve reads the agent's public key from Vault.
func (p *VaultProvider) Resolve(ctx context.Context, agentID interfaces.AgentID) (interfaces.PublicKey, interfaces.PublicKeyHash, error) {
	secret, err := p.client.KVv2(p.mount).Get(ctx, p.secretPath(agentID))
	if err != nil {
		return nil, interfaces.PublicKeyHash{}, fmt.Errorf("%w: %v", interfaces.ErrKeyResolution, err)
	}

	encoded, ok := secret.Data["public_key"].(string)
	if !ok {
		return nil, interfaces.PublicKeyHash{}, fmt.Errorf("%w: vault secret for %s has no public_key", interfaces.ErrKeyResolution, agentID)
	}
	pub, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, interfaces.PublicKeyHash{}, fmt.Errorf("%w: malformed public_key for %s", interfaces.ErrKeyResolution, agentID)
	}

	return pub, interfaces.HashPublicKey(pub), nil
}

// SigningKey reads and decodes the agent's private key from Vault.
func (p *VaultProvider) SigningKey(ctx context.Context, agentID interfaces.AgentID) (*interfaces.SigningKeyHandle, error) {
	secret, err := p.client.KVv2(p.mount).Get(ctx, p.secretPath(agentID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrKeyResolution, err)
	}

	algorithmTag, _ := secret.Data["algorithm"].(string)
	algorithm, err := interfaces.ParseSigningAlgorithm(algorithmTag)
	if err != nil {
		return nil, err
	}

	encoded, ok := secret.Data["private_key"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: vault secret for %s has no private_key", interfaces.ErrKeyResolution, agentID)
	}
	private, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed private_key for %s", interfaces.ErrKeyResolution, agentID)
	}
	defer zero(private)

	return interfaces.NewSigningKeyHandle(algorithm, private), nil
}
