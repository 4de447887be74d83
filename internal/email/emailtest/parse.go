// Package emailtest provides helpers for tests that inspect encoded mail.
package emailtest

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/shineum/courier/internal/email"
)

// Parse reads a raw RFC 5322 message back into an email.Email. It understands
// the layouts produced by email.Encode: a single text part, multipart/alternative
// bodies, and attachments. Parts of unknown charset are kept undecoded.
func Parse(raw []byte) (*email.Email, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		if !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to parse message: %w", err)
		}
		slog.Warn("unknown message charset, keeping raw content", "error", err)
	}
	defer mr.Close()

	h := mr.Header
	result := &email.Email{}

	from, err := h.AddressList("From")
	if err != nil {
		return nil, fmt.Errorf("failed to parse From header: %w", err)
	}
	if len(from) > 0 {
		result.From = from[0].Address
		result.FromName = from[0].Name
	}

	result.To = addressesOf(h, "To")
	result.Cc = addressesOf(h, "Cc")
	result.Bcc = addressesOf(h, "Bcc")
	if replyTo := addressesOf(h, "Reply-To"); len(replyTo) > 0 {
		result.ReplyTo = replyTo[0]
	}

	result.Subject, _ = h.Subject()
	result.Date, _ = h.Date()
	result.MessageID, _ = h.MessageID()

	if p := strings.Fields(h.Get("X-Priority")); len(p) > 0 {
		if n, err := strconv.Atoi(p[0]); err == nil {
			result.Priority = n
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read next part: %w", err)
		}

		content, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read part content: %w", err)
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := ph.ContentType()
			switch mediaType {
			case "text/html":
				if result.HtmlBody == "" {
					result.HtmlBody = string(content)
				}
			case "text/plain", "":
				if result.TextBody == "" {
					result.TextBody = string(content)
				}
			default:
				slog.Warn("unrecognized inline part, skipping", "content_type", mediaType)
			}
		case *mail.AttachmentHeader:
			filename, _ := ph.Filename()
			mediaType, _, _ := ph.ContentType()
			result.Attachments = append(result.Attachments, email.Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Content:     content,
			})
		}
	}

	return result, nil
}

// addressesOf returns the bare addresses of an address-list header. Headers
// that fail RFC 5322 parsing fall back to a comma split.
func addressesOf(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		raw := h.Get(key)
		parts := strings.Split(raw, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	if len(list) == 0 {
		return nil
	}

	result := make([]string, 0, len(list))
	for _, addr := range list {
		result = append(result, addr.Address)
	}
	return result
}
