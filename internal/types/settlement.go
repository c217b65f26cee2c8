// Package types provides the settlement domain types shared by the ledger,
// the enclave pipeline and the relay.
package types

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ViewingPubKeyLength is the size of an uncompressed secp256k1 point.
const ViewingPubKeyLength = 65

// IntentStatus is the reader-facing lifecycle label of an intent.
type IntentStatus string

const (
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusSettled   IntentStatus = "settled"
	IntentStatusCancelled IntentStatus = "cancelled"
)

// Intent is a submitter's request to convert AmountIn of TokenIn into TokenOut.
// Deadline and SubmittedAt are unix seconds. Nonce is the ledger's submission
// counter and orders pending intents by arrival.
type Intent struct {
	ID            common.Hash    `json:"intentId"`
	Sender        common.Address `json:"sender"`
	TokenIn       common.Address `json:"tokenIn"`
	TokenOut      common.Address `json:"tokenOut"`
	AmountIn      *big.Int       `json:"amountIn"`
	ViewingPubKey hexutil.Bytes  `json:"viewingPubKey"`
	Deadline      uint64         `json:"deadline"`
	SubmittedAt   uint64         `json:"submittedAt"`
	Nonce         uint64         `json:"nonce"`
	Settled       bool           `json:"settled"`
	Status        IntentStatus   `json:"status"`
}

// IsBuy reports whether the intent sells the lower-ordered token of its pair.
func (i *Intent) IsBuy() bool {
	return AddressLess(i.TokenIn, i.TokenOut)
}

// Clone returns a deep copy.
func (i *Intent) Clone() *Intent {
	c := *i
	c.AmountIn = cloneBig(i.AmountIn)
	c.ViewingPubKey = append(hexutil.Bytes(nil), i.ViewingPubKey...)
	return &c
}

// InternalMatch pairs one buy-side and one sell-side intent peer to peer.
type InternalMatch struct {
	BuyIntentID   common.Hash `json:"buyIntentId"`
	SellIntentID  common.Hash `json:"sellIntentId"`
	MatchedAmount *big.Int    `json:"matchedAmount"`
}

// AMMSettlement routes an unmatched intent through the AMM. AmountOut is
// provisional; the ledger pays the realized swap output.
type AMMSettlement struct {
	IntentID       common.Hash    `json:"intentId"`
	StealthAddress common.Address `json:"stealthAddress"`
	AmountOut      *big.Int       `json:"amountOut"`
	ZeroForOne     bool           `json:"zeroForOne"`
}

// ReleaseDescriptor is a batch element scheduling one stealth payout.
type ReleaseDescriptor struct {
	Token          common.Address `json:"token"`
	StealthAddress common.Address `json:"stealthAddress"`
	Amount         *big.Int       `json:"amount"`
	ReleaseTime    uint64         `json:"releaseTime"`
	EncryptedKey   hexutil.Bytes  `json:"encryptedStealthKey"`
	IntentID       common.Hash    `json:"intentId"`
}

// PendingRelease is a queued payout held by the ledger.
type PendingRelease struct {
	ID             common.Hash    `json:"releaseId"`
	IntentID       common.Hash    `json:"intentId"`
	Token          common.Address `json:"token"`
	StealthAddress common.Address `json:"stealthAddress"`
	Amount         *big.Int       `json:"amount"`
	ReleaseTime    uint64         `json:"releaseTime"`
	EncryptedKey   hexutil.Bytes  `json:"encryptedStealthKey"`
	BatchID        common.Hash    `json:"batchId"`
	EnqueuedAt     uint64         `json:"enqueuedAt"`
	Executed       bool           `json:"executed"`
	ExecutedAt     uint64         `json:"executedAt,omitempty"`
}

// Clone returns a deep copy.
func (r *PendingRelease) Clone() *PendingRelease {
	c := *r
	c.Amount = cloneBig(r.Amount)
	c.EncryptedKey = append(hexutil.Bytes(nil), r.EncryptedKey...)
	return &c
}

// SettlementBatch is the atomic unit submitted to the ledger.
// Signer is informational and never trusted by the ledger.
type SettlementBatch struct {
	InternalMatches []InternalMatch     `json:"internalMatches"`
	AMMSettlements  []AMMSettlement     `json:"ammSettlements"`
	Releases        []ReleaseDescriptor `json:"releases"`
	BatchID         common.Hash         `json:"batchId"`
	Timestamp       uint64              `json:"timestamp"`
	Signature       hexutil.Bytes       `json:"teeSignature"`
	Signer          common.Address      `json:"teeSigner"`
}

// IntentIDs lists every intent the batch settles, matches first.
func (b *SettlementBatch) IntentIDs() []common.Hash {
	ids := make([]common.Hash, 0, 2*len(b.InternalMatches)+len(b.AMMSettlements))
	for _, m := range b.InternalMatches {
		ids = append(ids, m.BuyIntentID, m.SellIntentID)
	}
	for _, s := range b.AMMSettlements {
		ids = append(ids, s.IntentID)
	}
	return ids
}

// AddressLess orders addresses as unsigned 160-bit integers.
func AddressLess(a, b common.Address) bool {
	return bytes.Compare(a.Bytes(), b.Bytes()) < 0
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
