// Package ethereum provides the signing wallet and nonce management for the
// dex session.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/flash-defi/venus/internal/apperror"
)

// Wallet signs transactions for a single key and hands out nonces from a
// local counter. The process must be the only signer for the key during its
// lifetime; under that assumption a counter seeded once from the node is
// authoritative and never races the mempool.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  types.Signer

	mu     sync.Mutex
	nonce  uint64
	seeded bool
}

// LoadWallet reads a hex-encoded private key from path.
func LoadWallet(path string, chainID uint64) (*Wallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "read private key")
	}

	hexKey := strings.TrimSpace(string(raw))
	hexKey = strings.TrimPrefix(hexKey, "0x")

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "parse private key")
	}

	id := new(big.Int).SetUint64(chainID)
	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: id,
		signer:  types.LatestSignerForChainID(id),
	}, nil
}

// Address returns the wallet address.
func (w *Wallet) Address() common.Address { return w.address }

// ChainID returns the configured chain id.
func (w *Wallet) ChainID() *big.Int { return new(big.Int).Set(w.chainID) }

// NextNonce returns the next nonce, seeding the counter from the node's
// pending count on first use.
func (w *Wallet) NextNonce(ctx context.Context, client *ethclient.Client) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.seeded {
		pending, err := client.PendingNonceAt(ctx, w.address)
		if err != nil {
			return 0, apperror.Wrap(err, apperror.CodeNonceFetchFailed, "pending nonce")
		}
		w.nonce = pending
		w.seeded = true
	}

	n := w.nonce
	w.nonce++
	return n, nil
}

// ReleaseNonce returns an unused nonce after a failed broadcast so the
// sequence stays gapless.
func (w *Wallet) ReleaseNonce(n uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seeded && w.nonce == n+1 {
		w.nonce = n
	}
}

// SignTx signs a transaction with the wallet key.
func (w *Wallet) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, w.signer, w.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	return signed, nil
}
