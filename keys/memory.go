package keys

import (
	"context"
	"fmt"
	"sync"

	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/signing"
)

type agentKeys struct {
	algorithm interfaces.SigningAlgorithm
	public    interfaces.PublicKey
	keyHash   interfaces.PublicKeyHash
	private   []byte
}

// MemoryProvider is an in-memory KeyProvider. Suitable for tests and
// short-lived agents; nothing is persisted.
type MemoryProvider struct {
	mu     sync.RWMutex
	agents map[interfaces.AgentID]agentKeys
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{agents: make(map[interfaces.AgentID]agentKeys)}
}

// Generate creates and stores a fresh key pair for the agent.
func (p *MemoryProvider) Generate(agentID interfaces.AgentID, algorithm interfaces.SigningAlgorithm) (interfaces.PublicKey, error) {
	pair, err := signing.GenerateKeyPair(algorithm)
	if err != nil {
		return nil, err
	}
	p.Register(agentID, pair)
	return pair.Public, nil
}

// Register stores an existing key pair for the agent, replacing any previous
// material. The private bytes are copied.
func (p *MemoryProvider) Register(agentID interfaces.AgentID, pair signing.KeyPair) {
	private := make([]byte, len(pair.Private))
	copy(private, pair.Private)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.agents[agentID] = agentKeys{
		algorithm: pair.Algorithm,
		public:    pair.Public,
		keyHash:   interfaces.HashPublicKey(pair.Public),
		private:   private,
	}
}

// Resolve returns the agent's public key and key hash.
func (p *MemoryProvider) Resolve(ctx context.Context, agentID interfaces.AgentID) (interfaces.PublicKey, interfaces.PublicKeyHash, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.agents[agentID]
	if !ok {
		return nil, interfaces.PublicKeyHash{}, fmt.Errorf("%w: unknown agent %s", interfaces.ErrKeyResolution, agentID)
	}
	return entry.public, entry.keyHash, nil
}

// SigningKey returns a scoped handle to the agent's private key.
func (p *MemoryProvider) SigningKey(ctx context.Context, agentID interfaces.AgentID) (*interfaces.SigningKeyHandle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown agent %s", interfaces.ErrKeyResolution, agentID)
	}
	return interfaces.NewSigningKeyHandle(entry.algorithm, entry.private), nil
}
