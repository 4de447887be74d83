package courier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/shineum/courier/internal/email"
	"github.com/shineum/courier/internal/transport"
)

// Renderer turns a template name and variables into HTML.
type Renderer interface {
	Render(ctx context.Context, name string, vars map[string]any) (string, error)
}

// Dispatcher sends Messages through a Transport, one attempt per message.
type Dispatcher struct {
	transport   transport.Transport
	renderer    Renderer
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for send results. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock sets the clock used for the Date header.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithConcurrency lets SendBatch send up to n messages at once. The
// transport must then be safe for concurrent use.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// New creates a Dispatcher. r may be nil when no message uses a template.
func New(t transport.Transport, r Renderer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport:   t,
		renderer:    r,
		logger:      slog.Default(),
		now:         time.Now,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result is the outcome of one message of a batch.
type Result struct {
	Index   int
	Message *Message
	// MessageID is set when the message reached the transport.
	MessageID string
	Err       error
}

// Send validates, composes and delivers msg. Any failure is returned as an
// *Error; address and template failures happen before the transport is called.
func (d *Dispatcher) Send(ctx context.Context, msg *Message) error {
	id, err := d.send(ctx, msg)
	d.logResult(msg, id, err)
	return err
}

// SendBatch sends every message independently and returns one Result per
// message in input order. A failure never stops the remaining sends.
func (d *Dispatcher) SendBatch(ctx context.Context, msgs []*Message) []Result {
	results := make([]Result, len(msgs))

	if d.concurrency <= 1 {
		for i, msg := range msgs {
			id, err := d.send(ctx, msg)
			d.logResult(msg, id, err)
			results[i] = Result{Index: i, Message: msg, MessageID: id, Err: err}
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, msg := range msgs {
		g.Go(func() error {
			id, err := d.send(ctx, msg)
			results[i] = Result{Index: i, Message: msg, MessageID: id, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	// Logged after the fact to keep input order.
	for _, r := range results {
		d.logResult(r.Message, r.MessageID, r.Err)
	}
	return results
}

func (d *Dispatcher) send(ctx context.Context, msg *Message) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{
				Kind:    KindTransport,
				Cause:   CauseRuntime,
				Message: fmt.Sprintf("mail not sent: %v", r),
			}
		}
	}()

	if msg == nil {
		return "", invalidArgument("message", "message must not be nil")
	}
	if d.transport == nil {
		return "", &Error{Kind: KindTransport, Cause: CauseRuntime, Message: "mail not sent: no transport configured"}
	}

	out, err := d.compose(ctx, msg)
	if err != nil {
		return "", err
	}

	if err := d.transport.Send(ctx, out); err != nil {
		return out.MessageID, classify(err)
	}
	return out.MessageID, nil
}

// compose maps msg onto the transport artifact, validating addresses in
// field order: sender, recipients, cc, bcc, then reply-to after the content.
func (d *Dispatcher) compose(ctx context.Context, msg *Message) (*email.Email, error) {
	if !ValidAddress(msg.sender) {
		return nil, invalidAddress("sender")
	}

	out := &email.Email{
		From:     msg.sender,
		FromName: msg.organizationName,
		Subject:  msg.subject,
		Date:     d.now(),
	}

	var err error
	if out.To, err = checkedAddrs("recipient", msg.recipients); err != nil {
		return nil, err
	}
	if out.Cc, err = checkedAddrs("cc", msg.cc); err != nil {
		return nil, err
	}
	if out.Bcc, err = checkedAddrs("bcc", msg.bcc); err != nil {
		return nil, err
	}

	if msg.templateName != "" {
		html, err := d.render(ctx, msg)
		if err != nil {
			return nil, err
		}
		out.HtmlBody = html
	} else if isHTML(msg.body) {
		out.HtmlBody = msg.body
	} else {
		out.TextBody = msg.body
	}

	if msg.hasPriority {
		out.Priority = int(msg.priority)
	}
	out.Headers = maps.Clone(msg.headers)

	if msg.replyTo != "" {
		if !ValidAddress(msg.replyTo) {
			return nil, invalidAddress("replyTo")
		}
		out.ReplyTo = msg.replyTo
	}

	for _, name := range msg.AttachmentNames() {
		att, err := readAttachment(name, msg.attachments[name])
		if err != nil {
			return nil, err
		}
		out.Attachments = append(out.Attachments, att)
	}

	out.MessageID = email.NewMessageID(msg.sender)
	return out, nil
}

func checkedAddrs(field string, addrs []string) ([]string, error) {
	for _, a := range addrs {
		if !ValidAddress(a) {
			return nil, invalidAddress(field)
		}
	}
	return slices.Clone(addrs), nil
}

func (d *Dispatcher) render(ctx context.Context, msg *Message) (html string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: KindTemplate, Message: fmt.Sprint(r)}
		}
	}()

	if d.renderer == nil {
		return "", &Error{Kind: KindTemplate, Message: "no template renderer configured"}
	}
	html, err = d.renderer.Render(ctx, msg.templateName, msg.Variables())
	if err != nil {
		return "", &Error{Kind: KindTemplate, Message: err.Error(), Err: err}
	}
	return html, nil
}

func isHTML(body string) bool {
	return mimetype.Detect([]byte(body)).Is("text/html")
}

func readAttachment(name string, src DataSource) (email.Attachment, error) {
	rc, err := src.Open()
	if err != nil {
		return email.Attachment{}, encodingError(fmt.Errorf("open attachment %s: %w", name, err))
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return email.Attachment{}, encodingError(fmt.Errorf("read attachment %s: %w", name, err))
	}

	return email.Attachment{
		Filename:    name,
		ContentType: src.ContentType(),
		Content:     data,
	}, nil
}

func encodingError(err error) *Error {
	return &Error{
		Kind:    KindTransport,
		Cause:   CauseEncoding,
		Message: "mail not sent: " + err.Error(),
		Err:     err,
	}
}

func (d *Dispatcher) logResult(msg *Message, id string, err error) {
	if err == nil {
		d.logger.Info("message sent",
			"transport", d.transport.Name(),
			"message_id", id,
			"subject", msg.subject,
			"recipients", len(msg.recipients)+len(msg.cc)+len(msg.bcc),
		)
		return
	}

	attrs := []any{"error", err}
	if e, ok := err.(*Error); ok {
		attrs = append(attrs, "kind", e.Kind.String(), "status", e.Status())
		if e.Field != "" {
			attrs = append(attrs, "field", e.Field)
		}
	}
	if msg != nil {
		attrs = append(attrs, "subject", msg.subject)
	}
	d.logger.Warn("message not sent", attrs...)
}
