// Package manifest reads batches of messages from YAML documents.
//
// A manifest looks like:
//
//	messages:
//	  - to: [jane@example.com]
//	    subject: Your order has shipped
//	    template: order-shipped
//	    variables:
//	      orderId: 12345
//	    headers:
//	      List-Unsubscribe: <mailto:unsubscribe@example.com>
//	    attachments:
//	      - path: invoices/12345.pdf
//
// Each entry is turned into a courier.Message independently, so one bad entry
// does not prevent the others from being sent.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/shineum/courier/internal/courier"
)

// ErrEmpty is returned when a manifest contains no messages.
var ErrEmpty = errors.New("manifest contains no messages")

// Defaults fill in fields an entry leaves out.
type Defaults struct {
	From         string
	Organization string
	ReplyTo      string
}

// Entry is the outcome of building one manifest entry: either Message or
// Err is set.
type Entry struct {
	Message *courier.Message
	Err     error
}

type document struct {
	Messages []entry `yaml:"messages"`
}

type entry struct {
	From         string            `yaml:"from"`
	Organization string            `yaml:"organization"`
	To           addressList       `yaml:"to"`
	Cc           addressList       `yaml:"cc"`
	Bcc          addressList       `yaml:"bcc"`
	Subject      string            `yaml:"subject"`
	Body         string            `yaml:"body"`
	Template     string            `yaml:"template"`
	Variables    map[string]any    `yaml:"variables"`
	Priority     *int              `yaml:"priority"`
	ReplyTo      string            `yaml:"reply_to"`
	Headers      map[string]string `yaml:"headers"`
	Attachments  []attachment      `yaml:"attachments"`
}

type attachment struct {
	Path        string `yaml:"path"`
	Name        string `yaml:"name"`
	ContentType string `yaml:"content_type"`
}

// addressList accepts either a single address or a sequence of addresses.
type addressList []string

func (a *addressList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*a = addressList{s}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*a = list
	return nil
}

// Load decodes a manifest from r and builds its messages. Relative
// attachment paths are resolved against baseDir. The returned error covers
// unreadable or malformed documents only; per-message problems are reported
// in Entry.Err.
func Load(r io.Reader, baseDir string, defaults Defaults) ([]Entry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(doc.Messages) == 0 {
		return nil, ErrEmpty
	}

	entries := make([]Entry, len(doc.Messages))
	for i, e := range doc.Messages {
		msg, err := e.build(baseDir, defaults)
		if err != nil {
			entries[i] = Entry{Err: fmt.Errorf("message %d: %w", i+1, err)}
			continue
		}
		entries[i] = Entry{Message: msg}
	}
	return entries, nil
}

func (e entry) build(baseDir string, defaults Defaults) (*courier.Message, error) {
	b := courier.NewBuilder()

	if from := firstNonEmpty(e.From, defaults.From); from != "" {
		b.From(from)
	}
	if org := firstNonEmpty(e.Organization, defaults.Organization); org != "" {
		b.WithOrganizationName(org)
	}
	if len(e.To) > 0 {
		b.To(e.To...)
	}
	if len(e.Cc) > 0 {
		b.Cc(e.Cc...)
	}
	if len(e.Bcc) > 0 {
		b.Bcc(e.Bcc...)
	}
	if e.Subject != "" {
		b.WithSubject(e.Subject)
	}
	if e.Body != "" {
		b.WithBody(e.Body)
	}
	if e.Template != "" {
		b.WithTemplate(e.Template)
	}
	if e.Variables != nil {
		b.WithVariables(e.Variables)
	}
	if e.Priority != nil {
		b.WithPriority(courier.Priority(*e.Priority))
	}
	if replyTo := firstNonEmpty(e.ReplyTo, defaults.ReplyTo); replyTo != "" {
		b.WithReplyTo(replyTo)
	}

	for _, name := range slices.Sorted(maps.Keys(e.Headers)) {
		b.WithHeader(name, e.Headers[name])
	}

	for _, a := range e.Attachments {
		if a.Path == "" {
			return nil, &courier.Error{
				Kind:    courier.KindInvalidArgument,
				Field:   "attachments",
				Message: "attachment path must not be empty",
			}
		}
		path := a.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}

		var src courier.DataSource
		if a.ContentType != "" {
			src = courier.FileSourceWithType(path, a.ContentType)
		} else {
			src = courier.FileSource(path)
		}

		name := a.Name
		if name == "" {
			name = filepath.Base(a.Path)
		}
		b.Attach(name, src)
	}

	return b.Build()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
