package postal

import (
	"fmt"
	"time"
)

// Priority is the message importance recorded in the X-Priority header.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Header is a single free-form header field. Order of user headers is
// preserved as supplied.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attachment describes one attachment part. Exactly one of Content and Path
// must be set; Path is loaded synchronously at composition time.
type Attachment struct {
	// Filename is the name presented to the recipient. When empty and Path
	// is set, the path basename is used.
	Filename string

	// Content is the raw attachment body.
	Content []byte

	// Path is a filesystem path to load the body from.
	Path string

	// ContentType defaults to application/octet-stream.
	ContentType string

	// ContentDisposition defaults to "attachment".
	ContentDisposition string

	// Encoding selects the content-transfer-encoding: "base64" (default),
	// "quoted-printable", or "7bit".
	Encoding string

	// CID sets a Content-ID for inline referencing from HTML bodies.
	CID string

	// Headers are additional per-part header fields.
	Headers []Header
}

// Message is the user-level description of one outbound mail. It is treated
// as immutable by the client.
type Message struct {
	From        Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	ReplyTo     Address
	Subject     string
	Text        string
	HTML        string
	Attachments []*Attachment
	Headers     []Header
	Priority    Priority
	References  string
	InReplyTo   string
	MessageID   string
	Date        time.Time
}

// Envelope is the SMTP envelope derived from a message: the bare sender for
// MAIL FROM and the deduplicated union of To, Cc and Bcc for RCPT TO,
// preserving first-occurrence order. Bcc recipients appear here but never in
// the message headers.
type Envelope struct {
	From string   `json:"from"`
	To   []string `json:"to"`
}

// Envelope derives the SMTP envelope for the message.
func (m *Message) Envelope() *Envelope {
	seen := make(map[string]struct{})
	var to []string

	for _, group := range [][]Address{m.To, m.Cc, m.Bcc} {
		for _, a := range group {
			bare := a.Bare()
			if _, ok := seen[bare]; ok {
				continue
			}
			seen[bare] = struct{}{}
			to = append(to, bare)
		}
	}

	return &Envelope{From: m.From.Bare(), To: to}
}

// Validate checks the message against the submission requirements: a valid
// sender, at least one recipient, a subject, at least one of Text and HTML,
// and well-formed attachments.
func (m *Message) Validate() error {
	if m.From.IsZero() {
		return newError(KindInvalidConfig, "message is missing a sender address")
	}
	if !validAddress(m.From.Address) {
		return newError(KindInvalidSender, fmt.Sprintf("invalid sender address %q", m.From.Address))
	}

	env := m.Envelope()
	if len(env.To) == 0 {
		return newError(KindInvalidRecipient, "message has no recipients")
	}
	for _, group := range [][]Address{m.To, m.Cc, m.Bcc} {
		for _, a := range group {
			if !validAddress(a.Address) {
				return newError(KindInvalidRecipient, fmt.Sprintf("invalid recipient address %q", a.Address))
			}
		}
	}

	if m.Subject == "" {
		return newError(KindInvalidConfig, "message is missing a subject")
	}
	if m.Text == "" && m.HTML == "" {
		return newError(KindInvalidConfig, "message needs a text or html body")
	}

	for i, att := range m.Attachments {
		if att == nil {
			return newError(KindInvalidConfig, fmt.Sprintf("attachment %d is nil", i))
		}
		hasContent := len(att.Content) > 0
		hasPath := att.Path != ""
		if hasContent == hasPath {
			return newError(KindInvalidConfig,
				fmt.Sprintf("attachment %d must set exactly one of content and path", i))
		}
	}

	return nil
}
