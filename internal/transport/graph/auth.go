package graph

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenExpiryBuffer is the time before actual expiry when we consider a token expired.
// This prevents using a token that is about to expire during a request.
const tokenExpiryBuffer = 5 * time.Minute

const graphScope = "https://graph.microsoft.com/.default"

// tokenCache hands out OAuth2 client-credentials tokens, fetching a new one
// only when the cached token is within tokenExpiryBuffer of expiring.
type tokenCache struct {
	mu     sync.Mutex
	fetch  oauth2.TokenSource
	source oauth2.TokenSource
}

// fetchSource requests a fresh token on every call; tokenCache wraps it.
type fetchSource struct {
	ctx context.Context
	cfg *clientcredentials.Config
}

func (f fetchSource) Token() (*oauth2.Token, error) {
	return f.cfg.Token(f.ctx)
}

// newTokenCache creates a new token cache for the given OAuth2 client credentials.
// httpClient is used for token requests.
func newTokenCache(tokenURL, clientID, clientSecret string, httpClient *http.Client) *tokenCache {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx := context.Background()
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	fetch := fetchSource{ctx: ctx, cfg: cfg}
	return &tokenCache{
		fetch:  fetch,
		source: oauth2.ReuseTokenSourceWithExpiry(nil, fetch, tokenExpiryBuffer),
	}
}

// Token returns a valid access token, refreshing it if necessary.
// This method is safe for concurrent use.
func (tc *tokenCache) Token() (string, error) {
	tc.mu.Lock()
	src := tc.source
	tc.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next call to Token fetches a new
// one. It is used after the API answers 401.
func (tc *tokenCache) Invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.source = oauth2.ReuseTokenSourceWithExpiry(nil, tc.fetch, tokenExpiryBuffer)
}
