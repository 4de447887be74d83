// Package resend implements a Transport that sends emails through the Resend API.
package resend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/resend/resend-go/v3"

	"github.com/shineum/courier/internal/email"
	"github.com/shineum/courier/internal/transport"
)

// Config holds Resend configuration.
type Config struct {
	APIKey string
}

// Transport sends messages with the Resend emails endpoint.
type Transport struct {
	client *resend.Client
}

// New creates a new Resend Transport.
func New(cfg Config) (*Transport, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("resend: api key is required")
	}
	return &Transport{client: resend.NewClient(cfg.APIKey)}, nil
}

// newWithBaseURL points the client at a different API host, used for testing.
func newWithBaseURL(apiKey, baseURL string, httpClient *http.Client) (*Transport, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	client := resend.NewCustomClient(httpClient, apiKey)
	client.BaseURL = u
	return &Transport{client: client}, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "resend"
}

// Send implements transport.Transport.
func (t *Transport) Send(ctx context.Context, msg *email.Email) error {
	if msg.From == "" {
		return fmt.Errorf("%w: missing sender", email.ErrEncoding)
	}

	req := &resend.SendEmailRequest{
		From:    msg.FromHeader(),
		To:      msg.To,
		Cc:      msg.Cc,
		Bcc:     msg.Bcc,
		ReplyTo: msg.ReplyTo,
		Subject: msg.Subject,
		Html:    msg.HtmlBody,
		Text:    msg.TextBody,
		Headers: headers(msg),
	}

	if len(msg.Attachments) > 0 {
		req.Attachments = convertAttachments(msg.Attachments)
	}

	if _, err := t.client.Emails.SendWithContext(ctx, req); err != nil {
		return sendError(err)
	}
	return nil
}

func headers(msg *email.Email) map[string]string {
	h := make(map[string]string, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		h[k] = v
	}
	if msg.MessageID != "" {
		h["Message-ID"] = "<" + msg.MessageID + ">"
	}
	if msg.Priority > 0 {
		h["X-Priority"] = strconv.Itoa(msg.Priority)
	}
	if len(h) == 0 {
		return nil
	}
	return h
}

func convertAttachments(attachments []email.Attachment) []*resend.Attachment {
	result := make([]*resend.Attachment, len(attachments))
	for i, a := range attachments {
		result[i] = &resend.Attachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.ContentType,
		}
	}
	return result
}

// sendError classifies a client error. Errors that never reached the API are
// returned as plain send failures; API errors mentioning an email address
// are address rejections and the rest protocol failures.
func sendError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "email address") || strings.Contains(msg, "invalid `to`") {
		return fmt.Errorf("%w: resend: %v", transport.ErrAddressRejected, err)
	}
	return fmt.Errorf("%w: resend: %v", transport.ErrProtocol, err)
}
