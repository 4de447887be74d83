package courier

import (
	"maps"
	"slices"
)

// Priority is the X-Priority value of a message.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 3
	PriorityLow    Priority = 5
)

func (p Priority) valid() bool {
	return p == PriorityHigh || p == PriorityNormal || p == PriorityLow
}

// Message is a validated email ready for dispatch. It is created only by
// Builder.Build and never changes afterwards; accessors return copies.
type Message struct {
	sender           string
	organizationName string
	recipients       []string
	cc               []string
	bcc              []string
	subject          string
	body             string
	templateName     string
	variables        map[string]any
	priority         Priority
	hasPriority      bool
	replyTo          string
	headers          map[string]string
	attachments      map[string]DataSource
}

func (m *Message) Sender() string { return m.sender }

// OrganizationName is the display name paired with the sender, or "".
func (m *Message) OrganizationName() string { return m.organizationName }

func (m *Message) Recipients() []string { return slices.Clone(m.recipients) }

func (m *Message) Cc() []string { return slices.Clone(m.cc) }

func (m *Message) Bcc() []string { return slices.Clone(m.bcc) }

func (m *Message) Subject() string { return m.subject }

// Body is the literal message body, or "" when a template is used.
func (m *Message) Body() string { return m.body }

// TemplateName is the template to render, or "" when a body is used.
func (m *Message) TemplateName() string { return m.templateName }

func (m *Message) Variables() map[string]any { return maps.Clone(m.variables) }

// Priority returns the priority and whether one was set.
func (m *Message) Priority() (Priority, bool) { return m.priority, m.hasPriority }

func (m *Message) ReplyTo() string { return m.replyTo }

// Headers returns the custom headers added with Builder.WithHeader.
func (m *Message) Headers() map[string]string { return maps.Clone(m.headers) }

// Attachments returns the attachments keyed by name.
func (m *Message) Attachments() map[string]DataSource { return maps.Clone(m.attachments) }

// AttachmentNames returns the attachment names in sorted order.
func (m *Message) AttachmentNames() []string {
	return slices.Sorted(maps.Keys(m.attachments))
}
