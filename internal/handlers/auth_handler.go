package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/config"
	"stealth-backend/internal/dto"
)

const nonceTTL = 5 * time.Minute

// ErrInvalidToken is returned for any token that fails validation.
var ErrInvalidToken = errors.New("invalid token")

// JWTManager issues and validates user session tokens.
type JWTManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTManager creates a manager from config.
func NewJWTManager(cfg config.JWTConfig) *JWTManager {
	ttl := time.Duration(cfg.ExpireHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for address.
func (m *JWTManager) Issue(address common.Address) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := dto.JWTClaims{
		UserAddress: address.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   address.Hex(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Validate parses and verifies a token.
func (m *JWTManager) Validate(tokenString string) (*dto.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &dto.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*dto.JWTClaims)
	if !ok || !token.Valid || !common.IsHexAddress(claims.UserAddress) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type pendingNonce struct {
	address   common.Address
	message   string
	expiresAt time.Time
}

// AuthHandler wallet login: the client personal_signs a one-time message.
type AuthHandler struct {
	jwt *JWTManager
	now func() time.Time

	mu     sync.Mutex
	nonces map[string]pendingNonce
}

// NewAuthHandler creates an auth handler
func NewAuthHandler(m *JWTManager) *AuthHandler {
	return &AuthHandler{jwt: m, now: time.Now, nonces: make(map[string]pendingNonce)}
}

func loginMessage(address common.Address, nonce string, issuedAt int64) string {
	return fmt.Sprintf("Stealth Settlement Authentication\nAddress: %s\nNonce: %s\nIssued At: %d", address.Hex(), nonce, issuedAt)
}

// GenerateNonceHandler issues a login challenge for an address.
func (h *AuthHandler) GenerateNonceHandler(c *gin.Context) {
	var req dto.NonceRequest
	if !validateRequestBinding(c, &req) {
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondWithError(c, http.StatusBadRequest, "invalid_request", "Invalid address", req.Address)
		return
	}
	address := common.HexToAddress(req.Address)

	now := h.now()
	nonce := uuid.New().String()
	p := pendingNonce{
		address:   address,
		message:   loginMessage(address, nonce, now.Unix()),
		expiresAt: now.Add(nonceTTL),
	}

	h.mu.Lock()
	for k, v := range h.nonces {
		if now.After(v.expiresAt) {
			delete(h.nonces, k)
		}
	}
	h.nonces[nonce] = p
	h.mu.Unlock()

	c.JSON(http.StatusOK, dto.NonceResponse{
		Success:   true,
		Nonce:     nonce,
		Message:   p.message,
		ExpiresAt: p.expiresAt.Unix(),
	})
}

// AuthenticateHandler verifies the signed challenge and returns a JWT.
func (h *AuthHandler) AuthenticateHandler(c *gin.Context) {
	var req dto.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AuthResponse{Message: fmt.Sprintf("Invalid request: %v", err)})
		return
	}
	if !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, dto.AuthResponse{Message: "Invalid address"})
		return
	}
	address := common.HexToAddress(req.Address)

	// nonces are single use, consumed whether or not the signature checks out
	h.mu.Lock()
	p, ok := h.nonces[req.Nonce]
	delete(h.nonces, req.Nonce)
	h.mu.Unlock()

	if !ok || h.now().After(p.expiresAt) || p.address != address {
		c.JSON(http.StatusUnauthorized, dto.AuthResponse{Message: "Unknown or expired nonce"})
		return
	}

	signer, err := recoverPersonalSign(p.message, req.Signature)
	if err != nil || signer != address {
		logrus.WithFields(logrus.Fields{"address": address.Hex()}).Warn("⚠️ Login signature verification failed")
		c.JSON(http.StatusUnauthorized, dto.AuthResponse{Message: "Signature verification failed"})
		return
	}

	token, expiresAt, err := h.jwt.Issue(address)
	if err != nil {
		logrus.WithError(err).Error("❌ JWT generation failed")
		c.JSON(http.StatusInternalServerError, dto.AuthResponse{Message: "Token generation failed"})
		return
	}

	logrus.WithField("address", address.Hex()).Info("✅ User authenticated")
	c.JSON(http.StatusOK, dto.AuthResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
		Message:   "success",
	})
}

// recoverPersonalSign returns the address behind an eth personal_sign signature.
func recoverPersonalSign(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
