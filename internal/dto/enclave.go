package dto

import (
	"github.com/ethereum/go-ethereum/common"

	"stealth-backend/internal/types"
)

// ==================== Enclave DTOs ====================

// ProcessBatchRequest carries pending intents to the enclave
type ProcessBatchRequest struct {
	Intents []types.Intent `json:"intents" binding:"required"`
}

// ProcessBatchResponse wraps a signed batch
type ProcessBatchResponse struct {
	Success bool                   `json:"success"`
	Batch   *types.SettlementBatch `json:"batch,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// SignerResponse reports the enclave signing address
type SignerResponse struct {
	Success bool           `json:"success"`
	Signer  common.Address `json:"signer"`
}
