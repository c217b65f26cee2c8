package batch

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"stealth-backend/internal/types"
)

var ErrMissingAmount = errors.New("batch: amount is nil")

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("invalid type: %s: %v", t, err))
	}
	return typ
}

// Canonical layout:
//
//	(tuple(bytes32 buyIntentId, bytes32 sellIntentId, uint256 matchedAmount)[],
//	 tuple(bytes32 intentId, address stealthAddress, uint256 amountOut, bool zeroForOne)[],
//	 tuple(address token, address stealthAddress, uint256 amount, uint256 releaseTime,
//	       bytes encryptedKey, bytes32 intentId)[],
//	 bytes32 batchId,
//	 uint256 timestamp)
var batchArguments = abi.Arguments{
	{Name: "internalMatches", Type: mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "buyIntentId", Type: "bytes32"},
		{Name: "sellIntentId", Type: "bytes32"},
		{Name: "matchedAmount", Type: "uint256"},
	})},
	{Name: "ammSettlements", Type: mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "intentId", Type: "bytes32"},
		{Name: "stealthAddress", Type: "address"},
		{Name: "amountOut", Type: "uint256"},
		{Name: "zeroForOne", Type: "bool"},
	})},
	{Name: "releases", Type: mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "token", Type: "address"},
		{Name: "stealthAddress", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "releaseTime", Type: "uint256"},
		{Name: "encryptedKey", Type: "bytes"},
		{Name: "intentId", Type: "bytes32"},
	})},
	{Name: "batchId", Type: mustType("bytes32", nil)},
	{Name: "timestamp", Type: mustType("uint256", nil)},
}

type abiMatch struct {
	BuyIntentId   [32]byte `abi:"buyIntentId"`
	SellIntentId  [32]byte `abi:"sellIntentId"`
	MatchedAmount *big.Int `abi:"matchedAmount"`
}

type abiSettlement struct {
	IntentId       [32]byte       `abi:"intentId"`
	StealthAddress common.Address `abi:"stealthAddress"`
	AmountOut      *big.Int       `abi:"amountOut"`
	ZeroForOne     bool           `abi:"zeroForOne"`
}

type abiRelease struct {
	Token          common.Address `abi:"token"`
	StealthAddress common.Address `abi:"stealthAddress"`
	Amount         *big.Int       `abi:"amount"`
	ReleaseTime    *big.Int       `abi:"releaseTime"`
	EncryptedKey   []byte         `abi:"encryptedKey"`
	IntentId       [32]byte       `abi:"intentId"`
}

// Encode returns the canonical ABI encoding of the batch's signed fields.
// The signature and the informational signer are not part of it.
func Encode(b *types.SettlementBatch) ([]byte, error) {
	matches := make([]abiMatch, len(b.InternalMatches))
	for i, m := range b.InternalMatches {
		if m.MatchedAmount == nil {
			return nil, fmt.Errorf("%w: internal match %d", ErrMissingAmount, i)
		}
		matches[i] = abiMatch{
			BuyIntentId:   m.BuyIntentID,
			SellIntentId:  m.SellIntentID,
			MatchedAmount: m.MatchedAmount,
		}
	}

	settlements := make([]abiSettlement, len(b.AMMSettlements))
	for i, s := range b.AMMSettlements {
		if s.AmountOut == nil {
			return nil, fmt.Errorf("%w: amm settlement %d", ErrMissingAmount, i)
		}
		settlements[i] = abiSettlement{
			IntentId:       s.IntentID,
			StealthAddress: s.StealthAddress,
			AmountOut:      s.AmountOut,
			ZeroForOne:     s.ZeroForOne,
		}
	}

	releases := make([]abiRelease, len(b.Releases))
	for i, r := range b.Releases {
		if r.Amount == nil {
			return nil, fmt.Errorf("%w: release %d", ErrMissingAmount, i)
		}
		releases[i] = abiRelease{
			Token:          r.Token,
			StealthAddress: r.StealthAddress,
			Amount:         r.Amount,
			ReleaseTime:    new(big.Int).SetUint64(r.ReleaseTime),
			EncryptedKey:   r.EncryptedKey,
			IntentId:       r.IntentID,
		}
	}

	packed, err := batchArguments.Pack(
		matches,
		settlements,
		releases,
		[32]byte(b.BatchID),
		new(big.Int).SetUint64(b.Timestamp),
	)
	if err != nil {
		return nil, fmt.Errorf("batch: abi encode: %w", err)
	}
	return packed, nil
}

// Hash is keccak256 of the canonical encoding.
func Hash(b *types.SettlementBatch) (common.Hash, error) {
	encoded, err := Encode(b)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}
