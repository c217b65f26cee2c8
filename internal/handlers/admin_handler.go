package handlers

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/dto"
	"stealth-backend/internal/ledger"
	"stealth-backend/internal/services"
)

// AdminHandler operator endpoints. The relay acts as ledger owner.
type AdminHandler struct {
	ledger *ledger.Ledger
	relay  *services.SettlementService
	owner  common.Address
}

func NewAdminHandler(l *ledger.Ledger, relay *services.SettlementService, owner common.Address) *AdminHandler {
	return &AdminHandler{ledger: l, relay: relay, owner: owner}
}

// RotateEnclaveSignerHandler PUT /api/admin/enclave-signer
func (h *AdminHandler) RotateEnclaveSignerHandler(c *gin.Context) {
	var req dto.RotateSignerRequest
	if !validateRequestBinding(c, &req) {
		return
	}
	if !common.IsHexAddress(req.Signer) {
		respondWithError(c, http.StatusBadRequest, "validation", "signer must be an address", req.Signer)
		return
	}
	signer := common.HexToAddress(req.Signer)

	prev := h.ledger.EnclaveSigner()
	if err := h.ledger.SetEnclaveSigner(h.owner, signer); err != nil {
		respondWithLedgerError(c, "rotate_enclave_signer", err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"admin":  c.GetString("admin_username"),
		"signer": signer.Hex(),
	}).Info("Admin rotated enclave signer")
	c.JSON(http.StatusOK, gin.H{"success": true, "previous": prev.Hex(), "signer": signer.Hex()})
}

// TriggerBatchHandler POST /api/admin/batches/trigger
func (h *AdminHandler) TriggerBatchHandler(c *gin.Context) {
	receipt, err := h.relay.TriggerNow(c.Request.Context())
	switch {
	case errors.Is(err, services.ErrRelayBusy):
		respondWithError(c, http.StatusConflict, "busy", err.Error(), nil)
		return
	case err != nil && ledger.KindOf(err) != ledger.KindUnknown:
		respondWithLedgerError(c, "trigger_batch", err)
		return
	case err != nil:
		respondWithError(c, http.StatusBadGateway, "enclave", err.Error(), nil)
		return
	}

	if receipt == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "result": services.ResultEmpty})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": services.ResultSettled, "receipt": receipt})
}
