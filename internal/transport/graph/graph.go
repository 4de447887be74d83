package graph

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shineum/courier/internal/email"
	"github.com/shineum/courier/internal/transport"
)

// Config holds the configuration for creating a Graph Transport.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// Sender is the mailbox the message is sent as. When empty, the
	// message's own From address is used.
	Sender string

	Timeout time.Duration
}

// Transport sends emails via the Microsoft Graph API using OAuth2
// client credentials authentication.
type Transport struct {
	sender     string
	graphBase  string
	httpClient *http.Client
	token      *tokenCache
	logger     *slog.Logger
}

// New creates a new Graph Transport with the given configuration.
func New(cfg Config) (*Transport, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("graph: tenant_id, client_id and client_secret are required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		url.PathEscape(cfg.TenantID),
	)

	client := &http.Client{Timeout: cfg.Timeout}

	return newWithOverrides(cfg, "https://graph.microsoft.com/v1.0", tokenURL, client), nil
}

// newWithOverrides creates a Graph Transport with custom URLs and HTTP client,
// used for testing.
func newWithOverrides(cfg Config, graphBase, tokenURL string, client *http.Client) *Transport {
	return &Transport{
		sender:     cfg.Sender,
		graphBase:  graphBase,
		httpClient: client,
		token:      newTokenCache(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
		logger:     slog.Default(),
	}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "msgraph"
}

// Send delivers the message via the sendMail endpoint in MIME format. Graph
// reads recipients from the MIME headers, so Bcc is kept in the document.
func (t *Transport) Send(ctx context.Context, msg *email.Email) error {
	var raw bytes.Buffer
	if err := msg.EncodeWithBcc(&raw); err != nil {
		return err
	}
	body := base64.StdEncoding.EncodeToString(raw.Bytes())

	token, err := t.token.Token()
	if err != nil {
		return fmt.Errorf("graph: failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.sendMailURL(msg), bytes.NewBufferString(body))
	if err != nil {
		return fmt.Errorf("graph: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode == http.StatusUnauthorized {
		t.logger.Info("discarding Graph API token after 401")
		t.token.Invalidate()
	}

	return sendError(resp.StatusCode, respBody)
}

func (t *Transport) sendMailURL(msg *email.Email) string {
	sender := t.sender
	if sender == "" {
		sender = msg.From
	}
	return t.graphBase + "/users/" + url.PathEscape(sender) + "/sendMail"
}

// sendError classifies a non-success sendMail response. Recipient errors on
// a 400 become transport.ErrAddressRejected; every other status is a
// protocol failure.
func sendError(status int, body []byte) error {
	var resp graphErrorResponse
	detail := string(body)
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error.Message != "" {
		detail = resp.Error.Code + ": " + resp.Error.Message

		if status == http.StatusBadRequest && resp.Error.isRecipientError() {
			return fmt.Errorf("%w: graph: HTTP %d: %s", transport.ErrAddressRejected, status, detail)
		}
	}

	return fmt.Errorf("%w: graph: HTTP %d: %s", transport.ErrProtocol, status, detail)
}
