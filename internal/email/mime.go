package email

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
)

// ErrEncoding is returned when an Email cannot be serialised to MIME.
var ErrEncoding = errors.New("email: encoding failed")

// Encode writes the message as RFC 5322 MIME to w. Bcc recipients are not
// written; they only travel in the transport envelope.
func (e *Email) Encode(w io.Writer) error {
	return e.encode(w, false)
}

// EncodeWithBcc is like Encode but keeps a Bcc header, for transports that
// read recipients from the MIME headers instead of an envelope.
func (e *Email) EncodeWithBcc(w io.Writer) error {
	return e.encode(w, true)
}

// Bytes returns the MIME encoding of the message.
func (e *Email) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Email) encode(w io.Writer, withBcc bool) error {
	if e.From == "" {
		return fmt.Errorf("%w: missing sender", ErrEncoding)
	}

	h := e.header(withBcc)

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("%w: create writer: %v", ErrEncoding, err)
	}

	if err := e.writeBody(mw); err != nil {
		return err
	}

	for _, att := range e.Attachments {
		if err := writeAttachment(mw, att); err != nil {
			return err
		}
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("%w: close writer: %v", ErrEncoding, err)
	}
	return nil
}

func (e *Email) header(withBcc bool) mail.Header {
	var h mail.Header

	date := e.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Name: e.FromName, Address: e.From}})
	if len(e.To) > 0 {
		h.SetAddressList("To", addressList(e.To))
	}
	if len(e.Cc) > 0 {
		h.SetAddressList("Cc", addressList(e.Cc))
	}
	if withBcc && len(e.Bcc) > 0 {
		h.SetAddressList("Bcc", addressList(e.Bcc))
	}
	if e.ReplyTo != "" {
		h.SetAddressList("Reply-To", []*mail.Address{{Address: e.ReplyTo}})
	}
	h.SetSubject(e.Subject)

	id := e.MessageID
	if id == "" {
		id = NewMessageID(e.From)
	}
	h.SetMessageID(id)

	if e.Priority > 0 {
		h.Set("X-Priority", strconv.Itoa(e.Priority))
	}

	// Deterministic header order keeps encoded output stable.
	keys := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Set(k, e.Headers[k])
	}

	return h
}

// writeBody writes the text and/or HTML parts. When both are present they
// form a multipart/alternative section with the plain text first.
func (e *Email) writeBody(mw *mail.Writer) error {
	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("%w: create inline section: %v", ErrEncoding, err)
	}

	if e.TextBody != "" || e.HtmlBody == "" {
		if err := writeInlinePart(iw, "text/plain", e.TextBody); err != nil {
			return err
		}
	}
	if e.HtmlBody != "" {
		if err := writeInlinePart(iw, "text/html", e.HtmlBody); err != nil {
			return err
		}
	}

	if err := iw.Close(); err != nil {
		return fmt.Errorf("%w: close inline section: %v", ErrEncoding, err)
	}
	return nil
}

func writeInlinePart(iw *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})

	pw, err := iw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("%w: create %s part: %v", ErrEncoding, contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("%w: write %s part: %v", ErrEncoding, contentType, err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("%w: close %s part: %v", ErrEncoding, contentType, err)
	}
	return nil
}

func writeAttachment(mw *mail.Writer, att Attachment) error {
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var h mail.AttachmentHeader
	h.SetContentType(contentType, nil)
	h.SetFilename(att.Filename)

	aw, err := mw.CreateAttachment(h)
	if err != nil {
		return fmt.Errorf("%w: create attachment %s: %v", ErrEncoding, att.Filename, err)
	}
	if _, err := aw.Write(att.Content); err != nil {
		return fmt.Errorf("%w: write attachment %s: %v", ErrEncoding, att.Filename, err)
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("%w: close attachment %s: %v", ErrEncoding, att.Filename, err)
	}
	return nil
}

func addressList(addrs []string) []*mail.Address {
	list := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, &mail.Address{Address: a})
	}
	return list
}
