package batch

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureLength = 65

var (
	ErrInvalidSignatureLength = errors.New("batch: signature must be 65 bytes")
	ErrInvalidRecoveryID      = errors.New("batch: invalid signature recovery id")
	ErrMalleableSignature     = errors.New("batch: signature values out of range")
)

// Signer signs batch hashes inside the enclave trust boundary.
type Signer interface {
	// SignHash signs the prefixed digest of hash and returns r||s||v with v in {27,28}.
	SignHash(ctx context.Context, hash common.Hash) ([]byte, error)
	Address() common.Address
	Name() string
}

// Digest applies the "\x19Ethereum Signed Message:\n32" prefix to a batch hash.
func Digest(hash common.Hash) []byte {
	return accounts.TextHash(hash.Bytes())
}

// PrivateKeySigner signs with a key held in process memory.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewPrivateKeySigner wraps an ECDSA key.
func NewPrivateKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// NewPrivateKeySignerFromHex parses a hex key with or without 0x prefix.
func NewPrivateKeySignerFromHex(hexKey string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("batch: parse signing key: %w", err)
	}
	return NewPrivateKeySigner(key), nil
}

func (s *PrivateKeySigner) SignHash(_ context.Context, hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(Digest(hash), s.key)
	if err != nil {
		return nil, fmt.Errorf("batch: sign: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

func (s *PrivateKeySigner) Address() common.Address { return s.address }

func (s *PrivateKeySigner) Name() string { return "PrivateKey" }

// RecoverHashSigner recovers the address that signed the prefixed digest of
// hash. v may be 0/1 or 27/28; high-s signatures are rejected.
func RecoverHashSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != signatureLength {
		return common.Address{}, fmt.Errorf("%w: got %d", ErrInvalidSignatureLength, len(sig))
	}
	normalized := make([]byte, signatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	v := normalized[64]
	if v > 1 {
		return common.Address{}, ErrInvalidRecoveryID
	}

	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, ErrMalleableSignature
	}

	pub, err := crypto.SigToPub(Digest(hash), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("batch: recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
