// Package opauth implements operator-only login for the control surface
// (spec §6): a single bcrypt-hashed operator password and short-lived JWT
// access tokens, no multi-tenant user model. Grounded on the teacher's
// internal/auth/jwt.go (JWTManager{secret, accessTokenDuration,
// refreshTokenDuration}, GenerateAccessToken/ValidateAccessToken),
// password.go (PasswordManager, bcrypt cost/length constants) and
// middleware.go (the Bearer-header gin.HandlerFunc shape), narrowed from
// UserClaims' subscription-tier/API-mode fields to a bare operator
// identity.
package opauth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("opauth: invalid operator credentials")
	ErrTokenExpired       = errors.New("opauth: token expired")
	ErrInvalidToken       = errors.New("opauth: invalid token")
)

const (
	DefaultBcryptCost    = 12
	DefaultAccessTTL     = 15 * time.Minute
	ContextKeyOperatorID = "operator_id"
)

// OperatorClaims is the JWT payload for the single operator identity.
type OperatorClaims struct {
	OperatorID string `json:"operator_id"`
	jwt.RegisteredClaims
}

// Manager issues and validates operator access tokens and verifies the
// operator password hash.
type Manager struct {
	secret      []byte
	accessTTL   time.Duration
	bcryptCost  int
	operatorID  string
	passwordSHA string // bcrypt hash of the operator password
}

func NewManager(secret string, accessTTL time.Duration, operatorID, passwordHash string) *Manager {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	return &Manager{
		secret:      []byte(secret),
		accessTTL:   accessTTL,
		bcryptCost:  DefaultBcryptCost,
		operatorID:  operatorID,
		passwordSHA: passwordHash,
	}
}

// HashPassword is exposed so an operator's password can be hashed once at
// provisioning time and stored in config/secrets, never in plaintext.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), DefaultBcryptCost)
	if err != nil {
		return "", fmt.Errorf("opauth: hash password: %w", err)
	}
	return string(bytes), nil
}

// Login verifies the supplied password against the configured operator
// hash and, on success, returns a signed access token.
func (m *Manager) Login(operatorID, password string) (string, error) {
	if operatorID != m.operatorID {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.passwordSHA), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return m.issueToken(operatorID)
}

func (m *Manager) issueToken(operatorID string) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		OperatorID: operatorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			Issuer:    "perpcore",
			Audience:  []string{"perpcore-control"},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("opauth: sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a bearer token, returning the
// operator claims on success.
func (m *Manager) ValidateToken(tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateRefreshToken produces a cryptographically random opaque token
// for the refresh flow (not a JWT — validated only against a store).
func GenerateRefreshToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("opauth: generate refresh token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// Middleware requires a valid Bearer access token and sets the operator
// ID in the gin context.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}
		claims, err := m.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(ContextKeyOperatorID, claims.OperatorID)
		c.Next()
	}
}
