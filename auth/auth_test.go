package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func testIssuer(t *testing.T) *Issuer {
	t.Helper()
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	return NewIssuer(Config{SigningKey: []byte("test-secret"), Username: "operator", PasswordHash: hash})
}

func TestAuthenticate_WrongPasswordFails(t *testing.T) {
	i := testIssuer(t)
	_, err := i.Authenticate("operator", "wrong")
	require.ErrorIs(t, err, errBadCredentials)
}

func TestAuthenticate_WrongUsernameFails(t *testing.T) {
	i := testIssuer(t)
	_, err := i.Authenticate("someone-else", "correct-horse")
	require.ErrorIs(t, err, errBadCredentials)
}

func TestAuthenticate_CorrectCredentialsMintAVerifiableToken(t *testing.T) {
	i := testIssuer(t)
	tok, err := i.Authenticate("operator", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := i.verify(tok)
	require.NoError(t, err)
	require.Equal(t, "operator", claims.Username)
}

func TestVerify_RejectsTokenSignedWithADifferentKey(t *testing.T) {
	i := testIssuer(t)
	other := NewIssuer(Config{SigningKey: []byte("other-secret"), Username: "operator", PasswordHash: i.cfg.PasswordHash})
	tok, err := other.Authenticate("operator", "correct-horse")
	require.NoError(t, err)

	_, err = i.verify(tok)
	require.Error(t, err)
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	i := NewIssuer(Config{SigningKey: []byte("test-secret"), Username: "operator", PasswordHash: hash, TokenTTL: -time.Minute})
	tok, err := i.Authenticate("operator", "correct-horse")
	require.NoError(t, err)

	_, err = i.verify(tok)
	require.Error(t, err)
}

func TestNewIssuer_DefaultsTokenTTLToOneHour(t *testing.T) {
	i := NewIssuer(Config{SigningKey: []byte("k"), Username: "u"})
	require.Equal(t, time.Hour, i.cfg.TokenTTL)
}

func setupMiddlewareRouter(i *Issuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", i.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString("username")})
	})
	return r
}

func TestMiddleware_RejectsMissingAuthorizationHeader(t *testing.T) {
	i := testIssuer(t)
	r := setupMiddlewareRouter(i)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_RejectsMalformedBearerHeader(t *testing.T) {
	i := testIssuer(t)
	r := setupMiddlewareRouter(i)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic abc123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_AcceptsValidBearerTokenAndSetsUsername(t *testing.T) {
	i := testIssuer(t)
	tok, err := i.Authenticate("operator", "correct-horse")
	require.NoError(t, err)
	r := setupMiddlewareRouter(i)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "operator")
}
