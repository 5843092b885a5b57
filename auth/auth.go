// Package auth issues and verifies the bearer tokens that gate every
// write-capable HTTP endpoint (spec §6 "/token").
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Config carries the signing secret and the single operator credential
// this daemon accepts. A single shared credential matches spec's scope
// (one operator console, not a multi-tenant identity system).
type Config struct {
	SigningKey   []byte
	Username     string
	PasswordHash []byte // bcrypt hash, see HashPassword
	TokenTTL     time.Duration
}

// HashPassword bcrypt-hashes a plaintext password for Config.PasswordHash.
func HashPassword(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
}

type claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Issuer mints and verifies bearer tokens against Config.
type Issuer struct {
	cfg Config
}

// NewIssuer constructs an Issuer. TokenTTL defaults to one hour if zero.
func NewIssuer(cfg Config) *Issuer {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = time.Hour
	}
	return &Issuer{cfg: cfg}
}

var errBadCredentials = errors.New("auth: invalid username or password")

// Authenticate verifies a username/password pair and, on success, mints a
// signed token.
func (i *Issuer) Authenticate(username, password string) (string, error) {
	if username != i.cfg.Username {
		return "", errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(i.cfg.PasswordHash, []byte(password)); err != nil {
		return "", errBadCredentials
	}

	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TokenTTL)),
		},
		Username: username,
	})
	return tok.SignedString(i.cfg.SigningKey)
}

func (i *Issuer) verify(tokenString string) (*claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return i.cfg.SigningKey, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("auth: invalid token")
	}
	return c, nil
}

// Middleware returns a gin middleware that requires a valid "Bearer
// <token>" Authorization header, per spec §6's protected-endpoint note.
func (i *Issuer) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := i.verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set("username", claims.Username)
		c.Next()
	}
}
