// Package stdout implements a Transport that prints emails instead of
// delivering them, for dry runs and local development.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/shineum/courier/internal/email"
)

const separator = "========================================\n"

// Transport prints email messages in a human-readable summary or, in raw
// mode, as the full MIME document.
type Transport struct {
	mu sync.Mutex
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
	raw    bool
}

// New creates a new stdout Transport that writes to os.Stdout.
func New(raw bool) *Transport {
	return &Transport{writer: os.Stdout, raw: raw}
}

// NewWithWriter creates a new stdout Transport that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer, raw bool) *Transport {
	return &Transport{writer: w, raw: raw}
}

// Send prints the email. Messages are written whole, so concurrent sends
// never interleave.
func (t *Transport) Send(_ context.Context, msg *email.Email) error {
	var out string
	if t.raw {
		data, err := msg.Bytes()
		if err != nil {
			return err
		}
		out = separator + strings.ReplaceAll(string(data), "\r\n", "\n") + "\n" + separator
	} else {
		out = summary(msg)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := io.WriteString(t.writer, out); err != nil {
		return fmt.Errorf("stdout: write: %w", err)
	}
	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "stdout"
}

func summary(msg *email.Email) string {
	var b strings.Builder

	b.WriteString(separator)
	fmt.Fprintf(&b, "From: %s\n", msg.FromHeader())
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))

	if len(msg.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(msg.Cc, ", "))
	}
	if len(msg.Bcc) > 0 {
		fmt.Fprintf(&b, "Bcc: %s\n", strings.Join(msg.Bcc, ", "))
	}
	if msg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\n", msg.ReplyTo)
	}

	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	if msg.Priority != 0 {
		fmt.Fprintf(&b, "Priority: %d\n", msg.Priority)
	}
	b.WriteString("Body:\n")

	body := msg.TextBody
	if body == "" {
		body = msg.HtmlBody
	}
	b.WriteString(body + "\n")

	if len(msg.Attachments) > 0 {
		attachments := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			attachments = append(attachments, fmt.Sprintf("%s (%s)", att.Filename, formatSize(len(att.Content))))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}

	b.WriteString(separator)
	return b.String()
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
