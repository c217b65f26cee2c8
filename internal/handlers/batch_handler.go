package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/dto"
	"stealth-backend/internal/ledger"
	"stealth-backend/internal/repository"
	"stealth-backend/internal/services"
)

// BatchHandler serves batch history and relay status.
type BatchHandler struct {
	ledger  *ledger.Ledger
	batches repository.BatchRepository // nil without a database
	relay   *services.SettlementService
}

func NewBatchHandler(l *ledger.Ledger, batches repository.BatchRepository, relay *services.SettlementService) *BatchHandler {
	return &BatchHandler{ledger: l, batches: batches, relay: relay}
}

// ListBatchesHandler GET /api/batches
func (h *BatchHandler) ListBatchesHandler(c *gin.Context) {
	if h.batches == nil {
		respondWithError(c, http.StatusServiceUnavailable, "unavailable", "Batch history requires a database", nil)
		return
	}

	page, size := pagination(c)
	records, total, err := h.batches.List(c.Request.Context(), page, size)
	if err != nil {
		logrus.WithError(err).Error("❌ Failed to list batches")
		respondWithError(c, http.StatusInternalServerError, "internal", "Failed to query batches", nil)
		return
	}

	c.JSON(http.StatusOK, dto.BatchListResponse{
		Success:  true,
		Data:     records,
		Total:    total,
		Page:     page,
		PageSize: size,
	})
}

// RelayStatusHandler GET /api/relay/status
func (h *BatchHandler) RelayStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"relay":          h.relay.Status(),
		"ledger":         h.ledger.Stats(),
		"enclave_signer": h.ledger.EnclaveSigner().Hex(),
	})
}
