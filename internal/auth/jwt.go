package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidToken = errors.New("invalid token")

// Claims is the access-token payload. The daemon runs a single-admin
// model, so authorization is just the IsAdmin flag.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// TokenPair bundles the short-lived JWT with its opaque refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// JWTManager signs and validates access tokens and mints refresh tokens.
type JWTManager struct {
	secretKey            []byte
	accessTokenDuration  time.Duration
	refreshTokenDuration time.Duration
}

func NewJWTManager(secretKey string, accessTokenDuration, refreshTokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:            []byte(secretKey),
		accessTokenDuration:  accessTokenDuration,
		refreshTokenDuration: refreshTokenDuration,
	}
}

// GenerateTokenPair mints an access/refresh pair. The second return
// value is the sha256 hash of the refresh token, which is what gets
// persisted; the token itself only ever travels to the client.
func (m *JWTManager) GenerateTokenPair(userID int64, username string, isAdmin bool) (*TokenPair, string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign access token: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	refresh := base64.URLEncoding.EncodeToString(raw)

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, m.HashRefreshToken(refresh), nil
}

// ValidateAccessToken parses and verifies an access token.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// HashRefreshToken produces the persisted form of a refresh token.
func (m *JWTManager) HashRefreshToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.URLEncoding.EncodeToString(hash[:])
}

// GetAccessTokenExpiry returns when an access token minted now expires.
func (m *JWTManager) GetAccessTokenExpiry() time.Time {
	return time.Now().Add(m.accessTokenDuration)
}

// GetRefreshTokenExpiry returns when a refresh token minted now expires.
func (m *JWTManager) GetRefreshTokenExpiry() time.Time {
	return time.Now().Add(m.refreshTokenDuration)
}
