// Package sendgrid implements a Transport that sends emails through the SendGrid v3 API.
package sendgrid

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/shineum/courier/internal/email"
	"github.com/shineum/courier/internal/transport"
)

// Config holds SendGrid configuration.
type Config struct {
	APIKey string
}

// Transport sends messages with the SendGrid mail send endpoint.
type Transport struct {
	client *sendgrid.Client
}

// New creates a new SendGrid Transport.
func New(cfg Config) (*Transport, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("sendgrid: api key is required")
	}
	return &Transport{client: sendgrid.NewSendClient(cfg.APIKey)}, nil
}

// newWithHost sends to a different API host, used for testing.
func newWithHost(apiKey, host string) *Transport {
	req := sendgrid.GetRequest(apiKey, "/v3/mail/send", host)
	req.Method = http.MethodPost
	return &Transport{client: &sendgrid.Client{Request: req}}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "sendgrid"
}

// Send implements transport.Transport.
func (t *Transport) Send(ctx context.Context, msg *email.Email) error {
	message, err := buildMessage(msg)
	if err != nil {
		return err
	}

	response, err := t.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: failed to send email: %w", err)
	}

	// 2xx is success
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return sendError(response.StatusCode, response.Body)
	}
	return nil
}

func buildMessage(msg *email.Email) (*mail.SGMailV3, error) {
	if msg.From == "" {
		return nil, fmt.Errorf("%w: missing sender", email.ErrEncoding)
	}

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(msg.FromName, msg.From))
	message.Subject = msg.Subject

	personalization := mail.NewPersonalization()
	for _, addr := range msg.To {
		personalization.AddTos(mail.NewEmail("", addr))
	}
	for _, addr := range msg.Cc {
		personalization.AddCCs(mail.NewEmail("", addr))
	}
	for _, addr := range msg.Bcc {
		personalization.AddBCCs(mail.NewEmail("", addr))
	}
	message.AddPersonalizations(personalization)

	if msg.ReplyTo != "" {
		message.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}

	// text/plain must precede text/html
	if msg.TextBody != "" {
		message.AddContent(mail.NewContent("text/plain", msg.TextBody))
	}
	if msg.HtmlBody != "" {
		message.AddContent(mail.NewContent("text/html", msg.HtmlBody))
	}

	for k, v := range msg.Headers {
		message.SetHeader(k, v)
	}
	if msg.Priority > 0 {
		message.SetHeader("X-Priority", strconv.Itoa(msg.Priority))
	}
	if msg.MessageID != "" {
		message.SetHeader("Message-ID", "<"+msg.MessageID+">")
	}

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		attachment := mail.NewAttachment()
		attachment.SetContent(base64.StdEncoding.EncodeToString(att.Content))
		attachment.SetType(contentType)
		attachment.SetFilename(att.Filename)
		attachment.SetDisposition("attachment")
		message.AddAttachment(attachment)
	}

	return message, nil
}

// apiErrors is the SendGrid error response body.
type apiErrors struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// sendError classifies a non-2xx response. A 400 that points at an email
// field or reports an invalid address is an address rejection.
func sendError(status int, body string) error {
	if status == http.StatusBadRequest {
		var resp apiErrors
		if err := json.Unmarshal([]byte(body), &resp); err == nil {
			for _, e := range resp.Errors {
				msg := strings.ToLower(e.Message)
				if strings.HasSuffix(e.Field, ".email") || strings.Contains(msg, "valid address") || strings.Contains(msg, "email address") {
					return fmt.Errorf("%w: sendgrid: HTTP %d: %s", transport.ErrAddressRejected, status, e.Message)
				}
			}
		}
	}
	return fmt.Errorf("%w: sendgrid: HTTP %d: %s", transport.ErrProtocol, status, body)
}
