// Package batch builds, hashes and signs settlement batches, and recovers the
// signer of a submitted batch.
package batch

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"stealth-backend/internal/types"
)

const batchIDEntropy = 16

// NewBatchID derives a fresh batch id from the batch timestamp and 16 random
// bytes. A nil reader uses crypto/rand.
func NewBatchID(timestamp uint64, r io.Reader) (common.Hash, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, 8+batchIDEntropy)
	binary.BigEndian.PutUint64(buf[:8], timestamp)
	if _, err := io.ReadFull(r, buf[8:]); err != nil {
		return common.Hash{}, fmt.Errorf("batch: read batch id entropy: %w", err)
	}
	return crypto.Keccak256Hash(buf), nil
}

// Contents are the signed fields of a batch before signing.
type Contents struct {
	InternalMatches []types.InternalMatch
	AMMSettlements  []types.AMMSettlement
	Releases        []types.ReleaseDescriptor
	BatchID         common.Hash
	Timestamp       uint64
}

// Assemble hashes the contents and signs them with signer.
func Assemble(ctx context.Context, signer Signer, c Contents) (*types.SettlementBatch, error) {
	b := &types.SettlementBatch{
		InternalMatches: nonNil(c.InternalMatches),
		AMMSettlements:  nonNil(c.AMMSettlements),
		Releases:        nonNil(c.Releases),
		BatchID:         c.BatchID,
		Timestamp:       c.Timestamp,
	}

	hash, err := Hash(b)
	if err != nil {
		return nil, err
	}
	sig, err := signer.SignHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("batch: %s signer: %w", signer.Name(), err)
	}

	b.Signature = sig
	b.Signer = signer.Address()
	return b, nil
}

// RecoverSigner recomputes the batch hash and recovers its signer.
func RecoverSigner(b *types.SettlementBatch) (common.Address, error) {
	hash, err := Hash(b)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverHashSigner(hash, b.Signature)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
