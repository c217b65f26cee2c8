package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"stealth-backend/internal/config"
	"stealth-backend/internal/dto"
)

const (
	adminRole     = "admin"
	adminTokenTTL = 12 * time.Hour
	adminIssuer   = "stealth-settlement-admin"
)

// AdminAuthHandler 管理员认证处理器
type AdminAuthHandler struct {
	cfg       config.AdminConfig
	jwtSecret []byte
	now       func() time.Time
}

// AdminLoginResponse 管理员登录响应
type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// NewAdminAuthHandler creates the admin login handler. Without a password
// hash or TOTP secret every login is refused.
func NewAdminAuthHandler(cfg config.AdminConfig) *AdminAuthHandler {
	if cfg.TOTPSecret == "" || cfg.PasswordHash == "" {
		logrus.Warn("⚠️ ADMIN_TOTP_SECRET or ADMIN_PASSWORD_HASH not set, admin login disabled")
	}
	if cfg.JWTSecret == "" {
		logrus.Warn("⚠️ ADMIN_JWT_SECRET not set, admin tokens cannot be issued")
	}
	return &AdminAuthHandler{cfg: cfg, jwtSecret: []byte(cfg.JWTSecret), now: time.Now}
}

// AdminLoginHandler 管理员登录处理
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	if h.cfg.TOTPSecret == "" || h.cfg.PasswordHash == "" || len(h.jwtSecret) == 0 {
		c.JSON(http.StatusServiceUnavailable, AdminLoginResponse{
			Message: "Admin login is not configured",
		})
		return
	}

	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AdminLoginResponse{
			Message: fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	// same message for username and password mismatch
	if req.Username != h.cfg.Username ||
		bcrypt.CompareHashAndPassword([]byte(h.cfg.PasswordHash), []byte(req.Password)) != nil {
		logrus.WithField("username", req.Username).Warn("⚠️ Admin login rejected: bad credentials")
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{Message: "Invalid credentials"})
		return
	}

	valid, err := totp.ValidateCustom(req.TOTPCode, h.cfg.TOTPSecret, h.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		logrus.WithField("username", req.Username).Warn("⚠️ Admin login rejected: bad TOTP code")
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{Message: "Invalid TOTP code"})
		return
	}

	token, err := h.IssueAdminToken(req.Username)
	if err != nil {
		logrus.WithError(err).Error("❌ Admin token generation failed")
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{Message: "Failed to generate token"})
		return
	}

	logrus.WithField("username", req.Username).Info("🔐 Admin logged in")
	c.JSON(http.StatusOK, AdminLoginResponse{
		Success: true,
		Token:   token,
		Message: "Login successful",
	})
}

// IssueAdminToken signs an admin-role token for username.
func (h *AdminAuthHandler) IssueAdminToken(username string) (string, error) {
	now := h.now()
	claims := dto.AdminJWTClaims{
		Username: username,
		Role:     adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    adminIssuer,
			Subject:   username,
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateAdminToken verifies an admin token and its role.
func (h *AdminAuthHandler) ValidateAdminToken(tokenString string) (*dto.AdminJWTClaims, error) {
	if len(h.jwtSecret) == 0 {
		return nil, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &dto.AdminJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.jwtSecret, nil
	}, jwt.WithIssuer(adminIssuer), jwt.WithTimeFunc(h.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*dto.AdminJWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
