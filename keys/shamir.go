package keys

import (
	"errors"
	"fmt"

	"github.com/hashicorp/vault/shamir"
)

// SplitPassphrase splits a provider passphrase into total shares of which
// threshold are required to recover it. Shares are distributed to separate
// custodians so no single party can unseal the key store alone.
func SplitPassphrase(passphrase []byte, threshold, total int) ([][]byte, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("empty passphrase")
	}
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	if threshold > total {
		return nil, errors.New("threshold cannot exceed total shares")
	}

	shares, err := shamir.Split(passphrase, total, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split passphrase: %w", err)
	}
	return shares, nil
}

// RecoverPassphrase reconstructs a passphrase from at least threshold shares.
func RecoverPassphrase(shares [][]byte) ([]byte, error) {
	if len(shares) < 2 {
		return nil, errors.New("at least 2 shares required")
	}

	passphrase, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to combine shares: %w", err)
	}
	return passphrase, nil
}
