// Package anchor records document integrity digests on an EVM chain as
// proof of existence. Anchoring is strictly optional and sits outside the
// integrity core: a digest is anchored after the document is sealed, and
// verification by transaction hash establishes that the digest existed no
// later than the anchoring block.
package anchor

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jacsproject/jacs-go/interfaces"
)

// anchorMagic prefixes the transaction payload so anchoring transactions are
// recognizable on chain.
var anchorMagic = []byte("JACS1")

const anchorGasLimit = 100_000

// EthClient is the subset of ethclient.Client the anchorer uses.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Anchorer writes digests into self-addressed zero-value transactions.
type Anchorer struct {
	client  EthClient
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	log     *slog.Logger
}

// NewAnchorer connects to the chain at rpcURL and anchors with the account
// behind hexKey.
func NewAnchorer(ctx context.Context, rpcURL, hexKey string, log *slog.Logger) (*Anchorer, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain rpc: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid anchoring key: %w", err)
	}
	return NewAnchorerWithClient(client, key, chainID, log), nil
}

// NewAnchorerWithClient wires an anchorer onto an existing client.
func NewAnchorerWithClient(client EthClient, key *ecdsa.PrivateKey, chainID *big.Int, log *slog.Logger) *Anchorer {
	return &Anchorer{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		log:     log,
	}
}

// Anchor submits a transaction carrying the digest and returns its hash.
// The caller stores the hash alongside the document for later verification.
func (a *Anchorer) Anchor(ctx context.Context, digest interfaces.Digest) (common.Hash, error) {
	nonce, err := a.client.PendingNonceAt(ctx, a.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}
	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	payload := make([]byte, 0, len(anchorMagic)+len(digest.Bytes()))
	payload = append(payload, anchorMagic...)
	payload = append(payload, digest.Bytes()...)

	tx := types.NewTransaction(nonce, a.from, big.NewInt(0), anchorGasLimit, gasPrice, payload)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), a.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign anchoring transaction: %w", err)
	}
	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send anchoring transaction: %w", err)
	}

	a.log.Info("Anchored digest",
		slog.String("digest", digest.String()),
		slog.String("tx", signed.Hash().Hex()))
	return signed.Hash(), nil
}

// VerifyAnchor checks that the transaction carries exactly the given digest
// and, once mined, that it succeeded. A pending transaction verifies
// provisionally: the payload matches but inclusion is not yet final, which
// is reported via the returned pending flag.
func (a *Anchorer) VerifyAnchor(ctx context.Context, txHash common.Hash, digest interfaces.Digest) (pending bool, err error) {
	tx, pending, err := a.client.TransactionByHash(ctx, txHash)
	if err != nil {
		return false, fmt.Errorf("failed to fetch anchoring transaction: %w", err)
	}

	expected := make([]byte, 0, len(anchorMagic)+len(digest.Bytes()))
	expected = append(expected, anchorMagic...)
	expected = append(expected, digest.Bytes()...)
	if !bytes.Equal(tx.Data(), expected) {
		return false, fmt.Errorf("%w: transaction %s does not carry digest %s", interfaces.ErrDigestMismatch, txHash.Hex(), digest)
	}

	if pending {
		return true, nil
	}

	receipt, err := a.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return false, fmt.Errorf("failed to fetch anchoring receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return false, fmt.Errorf("anchoring transaction %s reverted", txHash.Hex())
	}
	return false, nil
}
