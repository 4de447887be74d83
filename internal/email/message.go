// Package email defines the wire-ready email artifact handed to mail transports.
package email

import (
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Email represents a fully constructed message, ready to be serialised and
// delivered by a transport.
type Email struct {
	FromName    string
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	ReplyTo     string
	Subject     string
	Date        time.Time
	TextBody    string
	HtmlBody    string
	Priority    int
	Headers     map[string]string
	Attachments []Attachment
	MessageID   string
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// FromHeader returns the From value in RFC 5322 form, with the display name
// when one is set.
func (e *Email) FromHeader() string {
	if e.FromName == "" {
		return e.From
	}
	addr := mail.Address{Name: e.FromName, Address: e.From}
	return addr.String()
}

// Recipients returns the envelope recipients: To, then Cc, then Bcc.
func (e *Email) Recipients() []string {
	rcpts := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	rcpts = append(rcpts, e.To...)
	rcpts = append(rcpts, e.Cc...)
	rcpts = append(rcpts, e.Bcc...)
	return rcpts
}

// NewMessageID returns a globally unique Message-ID (without angle brackets)
// scoped to the domain of the sender address.
func NewMessageID(sender string) string {
	domain := "localhost"
	if i := strings.LastIndexByte(sender, '@'); i >= 0 && i < len(sender)-1 {
		domain = sender[i+1:]
	}
	return uuid.NewString() + "@" + domain
}
