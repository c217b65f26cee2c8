// Package handlers provides the relay's HTTP handlers
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/ledger"
)

// ContextUserAddress is the gin context key holding the authenticated address.
const ContextUserAddress = "user_address"

// respondWithError unified error response function
func respondWithError(c *gin.Context, statusCode int, errorType, message string, details interface{}) {
	response := gin.H{
		"error":   errorType,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	c.JSON(statusCode, response)
}

// ledgerStatus maps a ledger error class to an HTTP status.
func ledgerStatus(err error) int {
	if errors.Is(err, ledger.ErrIntentNotFound) || errors.Is(err, ledger.ErrReleaseNotFound) {
		return http.StatusNotFound
	}
	switch ledger.KindOf(err) {
	case ledger.KindAuthorization:
		return http.StatusForbidden
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindReplay:
		return http.StatusConflict
	case ledger.KindIntegrity:
		return http.StatusUnprocessableEntity
	case ledger.KindTiming:
		return http.StatusTooEarly
	default:
		return http.StatusInternalServerError
	}
}

// respondWithLedgerError renders a ledger error with its class as error type.
func respondWithLedgerError(c *gin.Context, operation string, err error) {
	status := ledgerStatus(err)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithField("operation", operation).Error("❌ Ledger operation failed")
	}
	respondWithError(c, status, ledger.KindOf(err).String(), err.Error(), nil)
}

// validateRequestBinding unified request binding validation function
func validateRequestBinding(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid_request", "Invalid request parameters", err.Error())
		return false
	}
	return true
}

// hashParam parses a 32-byte hex path parameter.
func hashParam(c *gin.Context, name string) (common.Hash, bool) {
	raw := c.Param(name)
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		respondWithError(c, http.StatusBadRequest, "invalid_request", "Invalid "+name, raw)
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

// userAddress returns the address set by the auth middleware.
func userAddress(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(ContextUserAddress)
	if !ok {
		respondWithError(c, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return common.Address{}, false
	}
	s, _ := v.(string)
	if !common.IsHexAddress(s) {
		respondWithError(c, http.StatusUnauthorized, "unauthorized", "Invalid user address in token", nil)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// pagination reads page and page_size query parameters.
func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
