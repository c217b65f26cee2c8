package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stealth-backend/internal/dto"
	"stealth-backend/internal/ledger"
)

// ReleaseHandler serves the release queue. Execution is permissionless.
type ReleaseHandler struct {
	ledger *ledger.Ledger
}

func NewReleaseHandler(l *ledger.Ledger) *ReleaseHandler {
	return &ReleaseHandler{ledger: l}
}

// ListPendingReleasesHandler GET /api/releases/pending
func (h *ReleaseHandler) ListPendingReleasesHandler(c *gin.Context) {
	ids := h.ledger.PendingReleaseIDs()
	views := make([]dto.ReleaseView, 0, len(ids))
	for _, id := range ids {
		r, err := h.ledger.Release(id)
		if err != nil {
			// executed between the two reads
			continue
		}
		if !r.Executed {
			views = append(views, dto.NewReleaseView(r))
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": views, "total": len(views)})
}

// ListReadyReleasesHandler GET /api/releases/ready
func (h *ReleaseHandler) ListReadyReleasesHandler(c *gin.Context) {
	ready := h.ledger.ReadyReleases()
	views := make([]dto.ReleaseView, 0, len(ready))
	for i := range ready {
		views = append(views, dto.NewReleaseView(&ready[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": views, "total": len(views)})
}

// GetReleaseHandler GET /api/releases/:id
func (h *ReleaseHandler) GetReleaseHandler(c *gin.Context) {
	id, ok := hashParam(c, "id")
	if !ok {
		return
	}
	r, err := h.ledger.Release(id)
	if err != nil {
		respondWithLedgerError(c, "get_release", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": dto.NewReleaseView(r)})
}

// ExecuteReleaseHandler POST /api/releases/:id/execute
func (h *ReleaseHandler) ExecuteReleaseHandler(c *gin.Context) {
	id, ok := hashParam(c, "id")
	if !ok {
		return
	}
	r, err := h.ledger.ExecuteRelease(id)
	if err != nil {
		respondWithLedgerError(c, "execute_release", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": dto.NewReleaseView(r)})
}
