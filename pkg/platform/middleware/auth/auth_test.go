package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medcred/pkg/requestcontext"
)

func TestRequireServiceToken(t *testing.T) {
	tokens := NewServiceTokens("test-secret", "medcred", "medcred-api")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seenCaller string
	handler := RequireServiceToken(tokens, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCaller = requestcontext.Caller(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header is rejected", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token passes caller through", func(t *testing.T) {
		token, err := tokens.Issue("registration-portal", time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "registration-portal", seenCaller)
	})

	t.Run("token for another audience is rejected", func(t *testing.T) {
		other := NewServiceTokens("test-secret", "medcred", "someone-else")
		token, err := other.Issue("registration-portal", time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token, err := tokens.Issue("registration-portal", -time.Minute)
		require.NoError(t, err)

		_, err = tokens.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
