package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

func signToken(t *testing.T, key *rsa.PrivateKey, scopes map[string]bool, ttl time.Duration) string {
	t.Helper()
	claims := domain.CustomClaims{
		UserID: "u-1",
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func TestMiddlewareAndScopes(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewConsoleValidator(&key.PublicKey, ValidatorOptions{Issuer: "idp"})

	h := NewMiddleware(v, zap.NewNop())(RequireScope(domain.ScopeAgentsRun)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ClaimsFrom(r.Context())
			require.True(t, ok)
			_, _ = w.Write([]byte(c.UserID))
		})))

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage").Code)
	assert.Equal(t, http.StatusUnauthorized,
		do("Bearer "+signToken(t, key, map[string]bool{"agents.run": true}, -time.Minute)).Code)
	assert.Equal(t, http.StatusForbidden,
		do("Bearer "+signToken(t, key, map[string]bool{"agents.read": true}, time.Minute)).Code)

	rec := do("Bearer " + signToken(t, key, map[string]bool{"admin": true}, time.Minute))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", rec.Body.String())
}

func TestRequireScopeWithoutAuth(t *testing.T) {
	h := RequireScope(domain.ScopeAgentsWrite)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestConsoleValidatorRejects(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, err = NewConsoleValidatorPEM(nil, ValidatorOptions{})
	assert.ErrorIs(t, err, ErrNoPublicKey)

	strict := NewConsoleValidator(&key.PublicKey, ValidatorOptions{Issuer: "other"})
	_, err = strict.VerifyToken(signToken(t, key, map[string]bool{"admin": true}, time.Minute))
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	v := NewConsoleValidator(&key.PublicKey, ValidatorOptions{})
	_, err = v.VerifyToken(signToken(t, key, nil, time.Minute))
	assert.ErrorIs(t, err, ErrNoScopes)

	// HS256 с публичным ключом в роли секрета не принимается
	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.VerifyToken("Bearer " + hs)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	claims, err := v.VerifyToken("  Bearer " + signToken(t, key, map[string]bool{"agents.read": true}, time.Minute))
	require.NoError(t, err)
	assert.True(t, claims.Allows(domain.ScopeAgentsRead))
	assert.False(t, claims.Allows(domain.ScopeAgentsWrite))
}
