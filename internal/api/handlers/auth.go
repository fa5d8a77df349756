package handlers

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/bedrockd/internal/auth"
	"github.com/yourusername/bedrockd/internal/models"
)

const (
	accessTokenCookieName  = "bdd_access"
	refreshTokenCookieName = "bdd_refresh"
)

func isSecureRequest(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	proto := c.GetHeader("X-Forwarded-Proto")
	return strings.EqualFold(proto, "https")
}

func setAuthCookies(c *gin.Context, jwtManager *auth.JWTManager, tokens *auth.TokenPair) {
	secure := isSecureRequest(c)
	accessMaxAge := int(time.Until(jwtManager.GetAccessTokenExpiry()).Seconds())
	if accessMaxAge < 0 {
		accessMaxAge = 0
	}
	refreshMaxAge := int(time.Until(jwtManager.GetRefreshTokenExpiry()).Seconds())
	if refreshMaxAge < 0 {
		refreshMaxAge = 0
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessTokenCookieName, tokens.AccessToken, accessMaxAge, "/api/v1", "", secure, true)
	c.SetCookie(refreshTokenCookieName, tokens.RefreshToken, refreshMaxAge, "/api/v1", "", secure, true)
}

func clearAuthCookies(c *gin.Context) {
	secure := isSecureRequest(c)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessTokenCookieName, "", -1, "/api/v1", "", secure, true)
	c.SetCookie(refreshTokenCookieName, "", -1, "/api/v1", "", secure, true)
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	db         *sql.DB
	jwtManager *auth.JWTManager
	bcryptCost int
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db *sql.DB, jwtManager *auth.JWTManager, bcryptCost int) *AuthHandler {
	return &AuthHandler{
		db:         db,
		jwtManager: jwtManager,
		bcryptCost: bcryptCost,
	}
}

// SetupStatus reports whether the daemon requires initial setup
func (h *AuthHandler) SetupStatus(c *gin.Context) {
	needsSetup, err := h.needsSetup()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requires_setup": needsSetup})
}

// SetupInitialAdmin creates the admin account when no users exist
func (h *AuthHandler) SetupInitialAdmin(c *gin.Context) {
	needsSetup, err := h.needsSetup()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !needsSetup {
		c.JSON(http.StatusConflict, gin.H{"error": "Setup already completed"})
		return
	}

	var req models.SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := models.NewUser(req.Username, req.Password, h.bcryptCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	result, err := h.db.Exec(`
		INSERT INTO users (username, password_hash, is_admin, is_active, created_at, updated_at)
		VALUES (?, ?, 1, 1, ?, ?)
	`, user.Username, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save user"})
		return
	}

	userID, err := result.LastInsertId()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user ID"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Admin user created",
		"user": gin.H{
			"id":       userID,
			"username": user.Username,
		},
	})
}

func (h *AuthHandler) needsSetup() (bool, error) {
	var count int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var user models.User
	query := `SELECT id, username, password_hash, is_admin, is_active FROM users WHERE username = ?`
	err := h.db.QueryRow(query, req.Username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.IsActive,
	)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		return
	}

	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokens, tokenHash, err := h.jwtManager.GenerateTokenPair(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate tokens"})
		return
	}

	expiresAt := h.jwtManager.GetRefreshTokenExpiry()
	_, err = h.db.Exec(
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)`,
		user.ID, tokenHash, expiresAt,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store refresh token"})
		return
	}

	setAuthCookies(c, h.jwtManager, tokens)

	c.JSON(http.StatusOK, models.LoginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		User:         &user,
	})
}

// RefreshToken handles token refresh with rotation
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req models.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if cookieToken, cookieErr := c.Cookie(refreshTokenCookieName); cookieErr == nil {
			req.RefreshToken = cookieToken
		}
	}
	if req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	tokenHash := h.jwtManager.HashRefreshToken(req.RefreshToken)

	var userID int64
	var username string
	var isAdmin bool
	var expiresAt time.Time
	var revoked bool

	query := `
		SELECT u.id, u.username, u.is_admin, rt.expires_at, rt.revoked
		FROM refresh_tokens rt
		INNER JOIN users u ON rt.user_id = u.id
		WHERE rt.token_hash = ?
	`
	err := h.db.QueryRow(query, tokenHash).Scan(&userID, &username, &isAdmin, &expiresAt, &revoked)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if revoked {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has been revoked"})
		return
	}
	if time.Now().After(expiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
		return
	}

	// Revoke old refresh token (rotation)
	_, err = h.db.Exec(`UPDATE refresh_tokens SET revoked = 1 WHERE token_hash = ?`, tokenHash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke old token"})
		return
	}

	tokens, newTokenHash, err := h.jwtManager.GenerateTokenPair(userID, username, isAdmin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate tokens"})
		return
	}

	newExpiresAt := h.jwtManager.GetRefreshTokenExpiry()
	_, err = h.db.Exec(
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)`,
		userID, newTokenHash, newExpiresAt,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store refresh token"})
		return
	}

	setAuthCookies(c, h.jwtManager, tokens)

	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}

// Logout revokes the refresh token and clears cookies
func (h *AuthHandler) Logout(c *gin.Context) {
	var req models.RefreshTokenRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		if cookieToken, cookieErr := c.Cookie(refreshTokenCookieName); cookieErr == nil {
			req.RefreshToken = cookieToken
		}
	}

	if req.RefreshToken != "" {
		tokenHash := h.jwtManager.HashRefreshToken(req.RefreshToken)
		_, _ = h.db.Exec(`UPDATE refresh_tokens SET revoked = 1 WHERE token_hash = ?`, tokenHash)
	}

	clearAuthCookies(c)

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// GetCurrentUser returns the current authenticated user
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var user models.User
	query := `SELECT id, username, is_admin, is_active, created_at, updated_at FROM users WHERE id = ?`
	err := h.db.QueryRow(query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.IsAdmin,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// ChangePassword updates the authenticated user's password and revokes
// all outstanding refresh tokens.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var passwordHash string
	if err := h.db.QueryRow(`SELECT password_hash FROM users WHERE id = ?`, userID).Scan(&passwordHash); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user"})
		return
	}

	if err := auth.VerifyPassword(req.CurrentPassword, passwordHash); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
		return
	}

	newHash, err := auth.HashPassword(req.NewPassword, h.bcryptCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	if _, err := h.db.Exec(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, newHash, time.Now(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		return
	}
	_, _ = h.db.Exec(`UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ?`, userID)

	clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}
