package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStatus_Categories(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, Unauthenticated},
		{http.StatusBadRequest, BadRequest},
		{http.StatusForbidden, BadRequest},
		{http.StatusNotFound, BadRequest},
		{http.StatusUnprocessableEntity, BadRequest},
		{http.StatusInternalServerError, ServerError},
		{http.StatusBadGateway, ServerError},
	}

	for _, c := range cases {
		e := FromStatus("op", c.status, nil)
		assert.Equal(t, c.want, e.Kind, "status %d", c.status)
		assert.Equal(t, c.status, e.StatusCode)
	}
}

func TestFromStatus_ExtractsDetail(t *testing.T) {
	e := FromStatus("wallet.buy", 400, []byte(`{"detail":"Insufficient cash to complete buy"}`))
	assert.Equal(t, "Insufficient cash to complete buy", e.Detail)
	assert.Contains(t, e.Error(), "Insufficient cash")
	assert.Contains(t, e.Error(), "HTTP 400")

	// FastAPI validation errors are lists; keep them raw.
	e = FromStatus("auth.signup", 422, []byte(`{"detail":[{"loc":["body","email"],"msg":"value is not a valid email address"}]}`))
	assert.Contains(t, e.Detail, "valid email")

	// Plain text bodies are kept as-is.
	e = FromStatus("x", 502, []byte("Bad Gateway"))
	assert.Equal(t, "Bad Gateway", e.Detail)
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	base := NotAuthenticated("wallet.value", "no session token")
	wrapped := fmt.Errorf("refresh wallet: %w", base)

	assert.Equal(t, Unauthenticated, KindOf(wrapped))
	assert.True(t, IsUnauthenticated(wrapped))
	assert.False(t, IsKind(wrapped, NetworkError))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, IsUnauthenticated(nil))
}

func TestErrorsIs_MatchesKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", Network("ticker.price", errors.New("connection refused")))

	require.True(t, errors.Is(err, &Error{Kind: NetworkError}))
	require.True(t, errors.Is(err, &Error{Kind: NetworkError, Op: "ticker.price"}))
	require.False(t, errors.Is(err, &Error{Kind: NetworkError, Op: "wallet.value"}))
	require.False(t, errors.Is(err, &Error{Kind: ServerError}))
}

func TestFromStatus_LongBodyCutOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("é", 300)
	e := FromStatus("op", http.StatusBadGateway, []byte(body))
	assert.True(t, utf8.ValidString(e.Detail))
	assert.Equal(t, strings.Repeat("é", 200)+"...", e.Detail)
}

func TestSentToken(t *testing.T) {
	_, ok := SentToken(NotAuthenticated("wallet.value", "not logged in"))
	assert.False(t, ok)

	err := fmt.Errorf("refresh: %w", FromStatus("wallet.value", http.StatusUnauthorized, nil).WithToken("jwt-1"))
	tok, ok := SentToken(err)
	require.True(t, ok)
	assert.Equal(t, "jwt-1", tok)
}
