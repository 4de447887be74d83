package graph

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenServer returns an OAuth2 token endpoint issuing tokens valid for expiresIn seconds.
func tokenServer(t *testing.T, calls *atomic.Int32, expiresIn int) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		assert.Equal(t, "test-client-id", r.FormValue("client_id"))
		assert.Equal(t, "test-client-secret", r.FormValue("client_secret"))
		assert.Equal(t, "https://graph.microsoft.com/.default", r.FormValue("scope"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-" + string(rune('0'+n)),
			"expires_in":   expiresIn,
			"token_type":   "Bearer",
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTokenCache_AcquiresToken(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := tokenServer(t, &calls, 3600)

	tc := newTokenCache(server.URL, "test-client-id", "test-client-secret", server.Client())

	token, err := tc.Token()
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
}

func TestTokenCache_CachesToken(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := tokenServer(t, &calls, 3600)

	tc := newTokenCache(server.URL, "test-client-id", "test-client-secret", server.Client())

	for range 3 {
		token, err := tc.Token()
		require.NoError(t, err)
		assert.Equal(t, "token-1", token)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestTokenCache_RefreshesWithinExpiryBuffer(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	// Expires inside the five minute buffer, so it is never reused.
	server := tokenServer(t, &calls, 60)

	tc := newTokenCache(server.URL, "test-client-id", "test-client-secret", server.Client())

	_, err := tc.Token()
	require.NoError(t, err)
	token, err := tc.Token()
	require.NoError(t, err)

	assert.Equal(t, "token-2", token)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTokenCache_Invalidate(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := tokenServer(t, &calls, 3600)

	tc := newTokenCache(server.URL, "test-client-id", "test-client-secret", server.Client())

	_, err := tc.Token()
	require.NoError(t, err)

	tc.Invalidate()

	token, err := tc.Token()
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
}

func TestTokenCache_ErrorResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"bad secret"}`))
	}))
	defer server.Close()

	tc := newTokenCache(server.URL, "test-client-id", "wrong", server.Client())

	_, err := tc.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_client")
}

func TestTokenCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := tokenServer(t, &calls, 3600)

	tc := newTokenCache(server.URL, "test-client-id", "test-client-secret", server.Client())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := tc.Token()
			assert.NoError(t, err)
			assert.Equal(t, "token-1", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}
