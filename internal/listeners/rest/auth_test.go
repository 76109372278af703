package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carles-abarca/NEO6/internal/abi"
)

func signToken(t *testing.T, secret string, expiry time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry))}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestBearerAuthRejectsMissingHeader(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{"balance":100.5}`}
	l := newTestListener(t, plugin, Deps{JWTSecret: "s3cret"})

	req := httptest.NewRequest(http.MethodPost, "/invoke", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	l.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerAuthRejectsWrongSecret(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{"balance":100.5}`}
	l := newTestListener(t, plugin, Deps{JWTSecret: "s3cret"})

	req := httptest.NewRequest(http.MethodPost, "/invoke", bytes.NewBufferString(`{}`))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret", time.Hour))
	rec := httptest.NewRecorder()
	l.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerAuthAcceptsValidToken(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{"balance":100.5}`}
	l := newTestListener(t, plugin, Deps{JWTSecret: "s3cret"})

	body := `{"transaction_id":"ACCTBAL","parameters":{"account_id":"123456"}}`
	req := httptest.NewRequest(http.MethodPost, "/invoke", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(t, "s3cret", time.Hour))
	rec := httptest.NewRecorder()
	l.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
}

func TestBearerAuthNotEnforcedOnHealthEndpoint(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK}
	l := newTestListener(t, plugin, Deps{JWTSecret: "s3cret"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	l.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNoAuthRequiredWhenSecretEmpty(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{"balance":100.5}`}
	l := newTestListener(t, plugin, Deps{})

	body := `{"transaction_id":"ACCTBAL","parameters":{"account_id":"123456"}}`
	req := httptest.NewRequest(http.MethodPost, "/invoke", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	l.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
