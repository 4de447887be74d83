package courier

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Builder accumulates the parts of a Message. Setters reject missing values
// immediately: the first rejection is kept, reported by Err, turns every
// later call into a no-op and is returned by Build.
//
// A Builder is single-use and not safe for concurrent use.
type Builder struct {
	m   Message
	err error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Err returns the first argument error recorded by a setter, if any.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) fail(field, message string) *Builder {
	b.err = invalidArgument(field, message)
	return b
}

// From sets the sender address.
func (b *Builder) From(sender string) *Builder {
	if b.err != nil {
		return b
	}
	if sender == "" {
		return b.fail("sender", "sender must not be empty")
	}
	b.m.sender = sender
	return b
}

// WithOrganizationName sets the display name shown with the sender address.
func (b *Builder) WithOrganizationName(name string) *Builder {
	if b.err != nil {
		return b
	}
	if name == "" {
		return b.fail("organizationName", "organization name must not be empty")
	}
	b.m.organizationName = name
	return b
}

// To appends recipients.
func (b *Builder) To(addrs ...string) *Builder {
	b.m.recipients = b.appendAddrs("recipient", b.m.recipients, addrs)
	return b
}

// Cc appends carbon-copy recipients.
func (b *Builder) Cc(addrs ...string) *Builder {
	b.m.cc = b.appendAddrs("cc", b.m.cc, addrs)
	return b
}

// Bcc appends blind carbon-copy recipients.
func (b *Builder) Bcc(addrs ...string) *Builder {
	b.m.bcc = b.appendAddrs("bcc", b.m.bcc, addrs)
	return b
}

func (b *Builder) appendAddrs(field string, list, addrs []string) []string {
	if b.err != nil {
		return list
	}
	if len(addrs) == 0 || slices.Contains(addrs, "") {
		b.fail(field, field+" address must not be empty")
		return list
	}
	return append(list, addrs...)
}

// WithSubject sets the subject line.
func (b *Builder) WithSubject(subject string) *Builder {
	if b.err != nil {
		return b
	}
	if subject == "" {
		return b.fail("subject", "subject must not be empty")
	}
	b.m.subject = subject
	return b
}

// WithBody sets a literal body. Bodies that look like HTML are sent as
// text/html, everything else as text/plain.
func (b *Builder) WithBody(body string) *Builder {
	if b.err != nil {
		return b
	}
	if body == "" {
		return b.fail("body", "body must not be empty")
	}
	b.m.body = body
	return b
}

// WithTemplate selects a template to render instead of a literal body.
func (b *Builder) WithTemplate(name string) *Builder {
	if b.err != nil {
		return b
	}
	if name == "" {
		return b.fail("templateName", "template name must not be empty")
	}
	b.m.templateName = name
	return b
}

// WithVariable adds one template variable.
func (b *Builder) WithVariable(key string, value any) *Builder {
	if b.err != nil {
		return b
	}
	if key == "" {
		return b.fail("variables", "variable name must not be empty")
	}
	if value == nil {
		return b.fail("variables", "variable "+key+" must not be nil")
	}
	if b.m.variables == nil {
		b.m.variables = make(map[string]any)
	}
	b.m.variables[key] = value
	return b
}

// WithVariables adds every entry of vars as a template variable.
func (b *Builder) WithVariables(vars map[string]any) *Builder {
	if b.err != nil {
		return b
	}
	if vars == nil {
		return b.fail("variables", "variables must not be nil")
	}
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		b.WithVariable(k, vars[k])
	}
	return b
}

// WithPriority sets the priority. Only PriorityHigh, PriorityNormal and
// PriorityLow pass Build.
func (b *Builder) WithPriority(p Priority) *Builder {
	if b.err != nil {
		return b
	}
	b.m.priority = p
	b.m.hasPriority = true
	return b
}

// WithReplyTo sets the Reply-To address.
func (b *Builder) WithReplyTo(addr string) *Builder {
	if b.err != nil {
		return b
	}
	if addr == "" {
		return b.fail("replyTo", "reply-to address must not be empty")
	}
	b.m.replyTo = addr
	return b
}

// reservedHeaders are set from message fields and cannot be overridden.
var reservedHeaders = []string{
	"bcc", "cc", "content-transfer-encoding", "content-type", "date", "from",
	"message-id", "mime-version", "reply-to", "subject", "to", "x-priority",
}

// WithHeader adds a custom header such as List-Unsubscribe. Setting the same
// name twice keeps the last value.
func (b *Builder) WithHeader(name, value string) *Builder {
	if b.err != nil {
		return b
	}
	if name == "" || strings.ContainsAny(name, ": \t\r\n") {
		return b.fail("headers", "invalid header name "+strconv.Quote(name))
	}
	if slices.Contains(reservedHeaders, strings.ToLower(name)) {
		return b.fail("headers", "header "+name+" is set from message fields")
	}
	if strings.ContainsAny(value, "\r\n") {
		return b.fail("headers", "header "+name+" value must be a single line")
	}
	if b.m.headers == nil {
		b.m.headers = make(map[string]string)
	}
	b.m.headers[name] = value
	return b
}

// Attach adds an attachment under name. Names must be unique.
func (b *Builder) Attach(name string, src DataSource) *Builder {
	if b.err != nil {
		return b
	}
	if name == "" {
		return b.fail("attachments", "attachment name must not be empty")
	}
	if src == nil {
		return b.fail("attachments", "attachment "+name+" must not be nil")
	}
	if _, dup := b.m.attachments[name]; dup {
		return b.fail("attachments", "duplicate attachment "+name)
	}
	if b.m.attachments == nil {
		b.m.attachments = make(map[string]DataSource)
	}
	b.m.attachments[name] = src
	return b
}

// AttachAll adds every entry of srcs as an attachment.
func (b *Builder) AttachAll(srcs map[string]DataSource) *Builder {
	if b.err != nil {
		return b
	}
	if srcs == nil {
		return b.fail("attachments", "attachments must not be nil")
	}
	for _, name := range slices.Sorted(maps.Keys(srcs)) {
		b.Attach(name, srcs[name])
	}
	return b
}

// Build validates the accumulated fields and returns the Message. Checks run
// in a fixed order and the first violation is returned:
// recipients, sender, subject, body/template, template variables, priority.
func (b *Builder) Build() (*Message, error) {
	if b.err != nil {
		return nil, b.err
	}

	m := &b.m
	switch {
	case len(m.recipients) == 0:
		return nil, validationFailed("at least one recipient is required")
	case strings.TrimSpace(m.sender) == "":
		return nil, validationFailed("sender is required")
	case strings.TrimSpace(m.subject) == "":
		return nil, validationFailed("subject is required")
	case m.body != "" && m.templateName != "":
		return nil, validationFailed("cannot specify both body and template")
	case m.body == "" && m.templateName == "":
		return nil, validationFailed("either body or template is required")
	case m.templateName != "" && len(m.variables) == 0:
		return nil, validationFailed("variables are required when using a template")
	case m.hasPriority && !m.priority.valid():
		return nil, validationFailed("priority must be one of 1, 3 or 5")
	}

	return &Message{
		sender:           m.sender,
		organizationName: m.organizationName,
		recipients:       slices.Clone(m.recipients),
		cc:               slices.Clone(m.cc),
		bcc:              slices.Clone(m.bcc),
		subject:          m.subject,
		body:             m.body,
		templateName:     m.templateName,
		variables:        maps.Clone(m.variables),
		priority:         m.priority,
		hasPriority:      m.hasPriority,
		replyTo:          m.replyTo,
		headers:          maps.Clone(m.headers),
		attachments:      maps.Clone(m.attachments),
	}, nil
}
