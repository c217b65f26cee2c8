package handlers

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/dto"
	"stealth-backend/internal/ledger"
	"stealth-backend/internal/repository"
)

// IntentHandler serves intent submission, cancellation and reads.
type IntentHandler struct {
	ledger  *ledger.Ledger
	intents repository.IntentRepository // nil without a database
}

// NewIntentHandler creates an intent handler. intents may be nil.
func NewIntentHandler(l *ledger.Ledger, intents repository.IntentRepository) *IntentHandler {
	return &IntentHandler{ledger: l, intents: intents}
}

// SubmitIntentHandler POST /api/intents
func (h *IntentHandler) SubmitIntentHandler(c *gin.Context) {
	sender, ok := userAddress(c)
	if !ok {
		return
	}

	var req dto.SubmitIntentRequest
	if !validateRequestBinding(c, &req) {
		return
	}
	if !common.IsHexAddress(req.TokenIn) || !common.IsHexAddress(req.TokenOut) {
		respondWithError(c, http.StatusBadRequest, "validation", "token_in and token_out must be addresses", nil)
		return
	}
	amount, ok := new(big.Int).SetString(req.AmountIn, 10)
	if !ok {
		respondWithError(c, http.StatusBadRequest, "validation", "amount_in must be a decimal integer", req.AmountIn)
		return
	}
	viewingKey, err := hexutil.Decode(req.ViewingPubKey)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "validation", "viewing_pub_key must be 0x-prefixed hex", err.Error())
		return
	}

	id, err := h.ledger.SubmitIntent(sender, ledger.SubmitIntentParams{
		TokenIn:       common.HexToAddress(req.TokenIn),
		TokenOut:      common.HexToAddress(req.TokenOut),
		AmountIn:      amount,
		ViewingPubKey: viewingKey,
		Deadline:      req.Deadline,
	})
	if err != nil {
		respondWithLedgerError(c, "submit_intent", err)
		return
	}

	c.JSON(http.StatusCreated, dto.SubmitIntentResponse{Success: true, IntentID: id.Hex()})
}

// CancelIntentHandler DELETE /api/intents/:id
func (h *IntentHandler) CancelIntentHandler(c *gin.Context) {
	caller, ok := userAddress(c)
	if !ok {
		return
	}
	id, ok := hashParam(c, "id")
	if !ok {
		return
	}

	if err := h.ledger.CancelIntent(caller, id); err != nil {
		respondWithLedgerError(c, "cancel_intent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "intent_id": id.Hex()})
}

// GetIntentHandler GET /api/intents/:id
func (h *IntentHandler) GetIntentHandler(c *gin.Context) {
	id, ok := hashParam(c, "id")
	if !ok {
		return
	}

	in, err := h.ledger.Intent(id)
	if err != nil {
		respondWithLedgerError(c, "get_intent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": dto.NewIntentView(in)})
}

// ListPendingIntentsHandler GET /api/intents/pending
func (h *IntentHandler) ListPendingIntentsHandler(c *gin.Context) {
	pending := h.ledger.PendingIntents()
	views := make([]dto.IntentView, 0, len(pending))
	for i := range pending {
		views = append(views, dto.NewIntentView(&pending[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": views, "total": len(views)})
}

// ListMyIntentsHandler GET /api/my/intents, served from the indexer.
func (h *IntentHandler) ListMyIntentsHandler(c *gin.Context) {
	sender, ok := userAddress(c)
	if !ok {
		return
	}
	if h.intents == nil {
		respondWithError(c, http.StatusServiceUnavailable, "unavailable", "Intent history requires a database", nil)
		return
	}

	page, size := pagination(c)
	records, total, err := h.intents.FindBySender(c.Request.Context(), sender.Hex(), page, size)
	if err != nil {
		logrus.WithError(err).WithField("sender", sender.Hex()).Error("❌ Failed to list intents")
		respondWithError(c, http.StatusInternalServerError, "internal", "Failed to query intents", nil)
		return
	}

	c.JSON(http.StatusOK, dto.IntentListResponse{
		Success:  true,
		Data:     records,
		Total:    total,
		Page:     page,
		PageSize: size,
	})
}
