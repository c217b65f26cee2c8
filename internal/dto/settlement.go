package dto

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"stealth-backend/internal/models"
	"stealth-backend/internal/types"
)

// ==================== Intent DTOs ====================

// SubmitIntentRequest submit a swap intent. AmountIn is a decimal string.
type SubmitIntentRequest struct {
	TokenIn       string `json:"token_in" binding:"required"`
	TokenOut      string `json:"token_out" binding:"required"`
	AmountIn      string `json:"amount_in" binding:"required"`
	ViewingPubKey string `json:"viewing_pub_key" binding:"required"` // 0x-hex, 65-byte uncompressed secp256k1 point
	Deadline      uint64 `json:"deadline" binding:"required"`        // unix seconds
}

// IntentView public rendering of a ledger intent
type IntentView struct {
	IntentID      string `json:"intent_id"`
	Sender        string `json:"sender"`
	TokenIn       string `json:"token_in"`
	TokenOut      string `json:"token_out"`
	AmountIn      string `json:"amount_in"`
	ViewingPubKey string `json:"viewing_pub_key"`
	Deadline      uint64 `json:"deadline"`
	SubmittedAt   uint64 `json:"submitted_at"`
	Nonce         uint64 `json:"nonce"`
	Settled       bool   `json:"settled"`
	Status        string `json:"status"`
}

// NewIntentView renders in.
func NewIntentView(in *types.Intent) IntentView {
	return IntentView{
		IntentID:      in.ID.Hex(),
		Sender:        in.Sender.Hex(),
		TokenIn:       in.TokenIn.Hex(),
		TokenOut:      in.TokenOut.Hex(),
		AmountIn:      in.AmountIn.String(),
		ViewingPubKey: hexutil.Encode(in.ViewingPubKey),
		Deadline:      in.Deadline,
		SubmittedAt:   in.SubmittedAt,
		Nonce:         in.Nonce,
		Settled:       in.Settled,
		Status:        string(in.Status),
	}
}

// SubmitIntentResponse returns the new intent id
type SubmitIntentResponse struct {
	Success  bool   `json:"success"`
	IntentID string `json:"intent_id"`
}

// IntentListResponse paginated intent history
type IntentListResponse struct {
	Success  bool                   `json:"success"`
	Data     []*models.IntentRecord `json:"data"`
	Total    int64                  `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
}

// ==================== Release DTOs ====================

// ReleaseView public rendering of a queued release
type ReleaseView struct {
	ReleaseID           string `json:"release_id"`
	IntentID            string `json:"intent_id"`
	BatchID             string `json:"batch_id"`
	Token               string `json:"token"`
	StealthAddress      string `json:"stealth_address"`
	Amount              string `json:"amount"`
	ReleaseTime         uint64 `json:"release_time"`
	EncryptedStealthKey string `json:"encrypted_stealth_key"`
	EnqueuedAt          uint64 `json:"enqueued_at"`
	Executed            bool   `json:"executed"`
	ExecutedAt          uint64 `json:"executed_at,omitempty"`
}

// NewReleaseView renders r.
func NewReleaseView(r *types.PendingRelease) ReleaseView {
	return ReleaseView{
		ReleaseID:           r.ID.Hex(),
		IntentID:            r.IntentID.Hex(),
		BatchID:             r.BatchID.Hex(),
		Token:               r.Token.Hex(),
		StealthAddress:      r.StealthAddress.Hex(),
		Amount:              r.Amount.String(),
		ReleaseTime:         r.ReleaseTime,
		EncryptedStealthKey: hexutil.Encode(r.EncryptedKey),
		EnqueuedAt:          r.EnqueuedAt,
		Executed:            r.Executed,
		ExecutedAt:          r.ExecutedAt,
	}
}

// ==================== Batch / Admin DTOs ====================

// BatchListResponse paginated batch history
type BatchListResponse struct {
	Success  bool                  `json:"success"`
	Data     []*models.BatchRecord `json:"data"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// RotateSignerRequest replaces the trusted enclave signer
type RotateSignerRequest struct {
	Signer string `json:"signer" binding:"required"`
}
