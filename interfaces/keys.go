package interfaces

import (
	"context"
	"errors"
	"sync"
)

// PublicKey is an encoded public key. The encoding is algorithm-specific:
// PKIX DER for RSA-PSS and Ed25519, the scheme's binary form for the
// post-quantum algorithms. PublicKeyHash is always computed over these bytes.
type PublicKey []byte

// KeyProvider resolves signing and verification key material for agents.
// Resolution may involve I/O (disk, Vault, DNS, network); the integrity core
// performs no I/O itself and consumes only resolved material.
type KeyProvider interface {
	// Resolve returns the public key and its hash for an agent.
	// Returns an error wrapping ErrKeyResolution when the agent is unknown
	// or the key source is unreachable.
	Resolve(ctx context.Context, agentID AgentID) (PublicKey, PublicKeyHash, error)

	// SigningKey returns a scoped handle to the agent's private key.
	// Callers must Destroy the handle as soon as the signing operation
	// completes; the raw bytes are never returned long-lived.
	SigningKey(ctx context.Context, agentID AgentID) (*SigningKeyHandle, error)
}

// ErrKeyDestroyed is returned when a signing key handle is used after Destroy.
var ErrKeyDestroyed = errors.New("signing key handle destroyed")

// SigningKeyHandle scopes private key material for the minimum lifetime
// necessary. Destroy zeroes the bytes; the handle is safe for concurrent use.
type SigningKeyHandle struct {
	algorithm SigningAlgorithm

	mu        sync.Mutex
	key       []byte
	destroyed bool
}

// NewSigningKeyHandle wraps raw private key bytes in a handle. The bytes are
// copied so the caller may clear its own buffer immediately.
func NewSigningKeyHandle(algorithm SigningAlgorithm, raw []byte) *SigningKeyHandle {
	key := make([]byte, len(raw))
	copy(key, raw)
	return &SigningKeyHandle{algorithm: algorithm, key: key}
}

// Algorithm returns the scheme the key belongs to.
func (h *SigningKeyHandle) Algorithm() SigningAlgorithm { return h.algorithm }

// Use invokes fn with the private key bytes under the handle's lock.
// The bytes must not escape fn.
func (h *SigningKeyHandle) Use(fn func(key []byte) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return ErrKeyDestroyed
	}
	return fn(h.key)
}

// Destroy zeroes the key material. Idempotent.
func (h *SigningKeyHandle) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.key {
		h.key[i] = 0
	}
	h.key = nil
	h.destroyed = true
}
