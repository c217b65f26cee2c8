package enclave

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"stealth-backend/internal/dto"
)

// ErrorNoIntents is the error code returned when nothing in a request can settle.
const ErrorNoIntents = "no_intents"

// Server exposes an Enclave over HTTP.
type Server struct {
	enclave   *Enclave
	authToken string
}

// NewServer creates a Server. An empty authToken disables bearer auth.
func NewServer(e *Enclave, authToken string) *Server {
	return &Server{enclave: e, authToken: authToken}
}

// Register mounts the enclave routes under /enclave/v1. Signatures are only
// produced over batches the enclave computed itself.
func (s *Server) Register(r gin.IRouter) {
	v1 := r.Group("/enclave/v1", s.requireToken)
	v1.POST("/batches", s.processBatch)
	v1.GET("/signer", s.signer)
}

func (s *Server) requireToken(c *gin.Context) {
	if s.authToken == "" {
		c.Next()
		return
	}
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}
	c.Next()
}

func (s *Server) processBatch(c *gin.Context) {
	var req dto.ProcessBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ProcessBatchResponse{Error: err.Error()})
		return
	}

	b, err := s.enclave.Process(c.Request.Context(), req.Intents)
	switch {
	case errors.Is(err, ErrNoIntents):
		c.JSON(http.StatusUnprocessableEntity, dto.ProcessBatchResponse{Error: ErrorNoIntents})
		return
	case err != nil:
		s.enclave.log.WithError(err).Error("❌ Batch computation failed")
		c.JSON(http.StatusInternalServerError, dto.ProcessBatchResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.ProcessBatchResponse{Success: true, Batch: b})
}

func (s *Server) signer(c *gin.Context) {
	c.JSON(http.StatusOK, dto.SignerResponse{Success: true, Signer: s.enclave.Signer()})
}
