package postal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/veltalabs/postal/mime"
)

// boundaryAttempts bounds regeneration when a generated boundary collides
// with body content.
const boundaryAttempts = 10

// mimePart is one rendered body part: its headers and its already-encoded
// body bytes.
type mimePart struct {
	headers []Header
	body    []byte
}

// composeMessage renders the complete RFC 5322 payload for m with CRLF line
// terminators and returns it together with the Message-ID written into the
// headers.
func composeMessage(m *Message, hostname string) ([]byte, string, error) {
	messageID := m.MessageID
	if messageID == "" {
		messageID = fmt.Sprintf("%d.%s@%s", time.Now().UnixMilli(), ulid.Make(), hostname)
	}
	messageID = angleWrap(messageID)

	root, err := buildBody(m)
	if err != nil {
		return nil, "", err
	}

	headers := topHeaders(m, messageID)
	headers = append(headers, Header{Name: "MIME-Version", Value: "1.0"})
	headers = append(headers, root.headers...)

	var buf bytes.Buffer
	writeHeaders(&buf, headers)
	buf.WriteString("\r\n")
	buf.Write(root.body)

	return buf.Bytes(), messageID, nil
}

// topHeaders builds the fixed-order header block preceding the MIME headers.
func topHeaders(m *Message, messageID string) []Header {
	headers := []Header{
		{Name: "From", Value: m.From.Display()},
		{Name: "To", Value: formatAddressList(m.To)},
	}

	if len(m.Cc) > 0 {
		headers = append(headers, Header{Name: "Cc", Value: formatAddressList(m.Cc)})
	}
	if !m.ReplyTo.IsZero() {
		headers = append(headers, Header{Name: "Reply-To", Value: m.ReplyTo.Display()})
	}

	headers = append(headers, Header{
		Name:  "Subject",
		Value: mime.EncodeHeader(m.Subject, mime.SchemeB, "utf-8"),
	})

	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	headers = append(headers,
		Header{Name: "Date", Value: date.Format(time.RFC1123Z)},
		Header{Name: "Message-ID", Value: messageID},
	)

	if v := priorityHeader(m.Priority); v != "" {
		headers = append(headers, Header{Name: "X-Priority", Value: v})
	}
	if m.References != "" {
		headers = append(headers, Header{Name: "References", Value: angleWrap(m.References)})
	}
	if m.InReplyTo != "" {
		headers = append(headers, Header{Name: "In-Reply-To", Value: angleWrap(m.InReplyTo)})
	}

	headers = append(headers, m.Headers...)
	return headers
}

// buildBody chooses the MIME structure for the message content: a single
// text part, multipart/alternative for text plus html, and multipart/mixed
// when attachments are present.
func buildBody(m *Message) (mimePart, error) {
	var content mimePart
	switch {
	case m.Text != "" && m.HTML != "":
		alt, err := buildMultipart("multipart/alternative", []mimePart{
			textPart("text/plain", m.Text),
			textPart("text/html", m.HTML),
		})
		if err != nil {
			return mimePart{}, err
		}
		content = alt
	case m.HTML != "":
		content = textPart("text/html", m.HTML)
	default:
		content = textPart("text/plain", m.Text)
	}

	if len(m.Attachments) == 0 {
		return content, nil
	}

	parts := []mimePart{content}
	for _, att := range m.Attachments {
		part, err := buildAttachment(att)
		if err != nil {
			return mimePart{}, err
		}
		parts = append(parts, part)
	}

	return buildMultipart("multipart/mixed", parts)
}

// textPart renders a quoted-printable text part with utf-8 charset.
func textPart(contentType, text string) mimePart {
	return mimePart{
		headers: []Header{
			{Name: "Content-Type", Value: contentType + "; charset=utf-8"},
			{Name: "Content-Transfer-Encoding", Value: string(mime.EncodingQuotedPrintable)},
		},
		body: []byte(mime.EncodeQuotedPrintable(text, mime.MaxLineLength)),
	}
}

// buildAttachment renders one attachment part, loading path-based content.
func buildAttachment(att *Attachment) (mimePart, error) {
	content := att.Content
	filename := att.Filename

	if att.Path != "" {
		data, err := os.ReadFile(att.Path)
		if err != nil {
			e := wrapError(KindInvalidConfig,
				fmt.Sprintf("cannot read attachment %q", att.Path), err)
			e.Solution = "Check that the attachment path exists and is readable"
			return mimePart{}, e
		}
		content = data
		if filename == "" {
			filename = filepath.Base(att.Path)
		}
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := att.ContentDisposition
	if disposition == "" {
		disposition = "attachment"
	}
	if filename != "" {
		encoded := mime.EncodeHeader(filename, mime.SchemeB, "utf-8")
		contentType += fmt.Sprintf("; name=%q", encoded)
		disposition += fmt.Sprintf("; filename=%q", encoded)
	}

	encoding := att.Encoding
	if encoding == "" {
		encoding = string(mime.EncodingBase64)
	}

	var body []byte
	switch mime.ContentTransferEncoding(encoding) {
	case mime.EncodingBase64:
		body = []byte(mime.EncodeBase64Wrapped(content, mime.MaxLineLength))
	case mime.EncodingQuotedPrintable:
		body = []byte(mime.EncodeQuotedPrintable(string(content), mime.MaxLineLength))
	case mime.Encoding7Bit:
		body = content
	default:
		return mimePart{}, newError(KindEncodingError,
			fmt.Sprintf("unsupported attachment encoding %q", encoding))
	}

	headers := []Header{
		{Name: "Content-Type", Value: contentType},
		{Name: "Content-Transfer-Encoding", Value: encoding},
		{Name: "Content-Disposition", Value: disposition},
	}
	if att.CID != "" {
		headers = append(headers, Header{Name: "Content-ID", Value: angleWrap(att.CID)})
	}
	headers = append(headers, att.Headers...)

	return mimePart{headers: headers, body: body}, nil
}

// buildMultipart joins parts under a fresh boundary. The boundary is
// regenerated until it collides with nothing inside the enclosed parts, so
// it is unique per nesting level and distinct from every body line.
func buildMultipart(contentType string, parts []mimePart) (mimePart, error) {
	var boundary string
	for attempt := 0; ; attempt++ {
		if attempt == boundaryAttempts {
			return mimePart{}, newError(KindEncodingError, "cannot generate a unique MIME boundary")
		}
		boundary = mime.Boundary()
		if !boundaryConflicts(boundary, parts) {
			break
		}
	}

	var buf bytes.Buffer
	for _, part := range parts {
		buf.WriteString("--" + boundary + "\r\n")
		writeHeaders(&buf, part.headers)
		buf.WriteString("\r\n")
		buf.Write(part.body)
		buf.WriteString("\r\n")
	}
	buf.WriteString("--" + boundary + "--\r\n")

	return mimePart{
		headers: []Header{{
			Name:  "Content-Type",
			Value: fmt.Sprintf("%s; boundary=%q", contentType, boundary),
		}},
		body: buf.Bytes(),
	}, nil
}

// boundaryConflicts reports whether the boundary occurs anywhere inside the
// parts it would delimit.
func boundaryConflicts(boundary string, parts []mimePart) bool {
	needle := []byte(boundary)
	for _, part := range parts {
		if bytes.Contains(part.body, needle) {
			return true
		}
		for _, h := range part.headers {
			if strings.Contains(h.Value, boundary) {
				return true
			}
		}
	}
	return false
}

// writeHeaders renders and folds a header block.
func writeHeaders(buf *bytes.Buffer, headers []Header) {
	for _, h := range headers {
		buf.WriteString(mime.FoldHeader(h.Name+": "+h.Value, mime.MaxHeaderLength))
		buf.WriteString("\r\n")
	}
}

// priorityHeader maps a Priority to its X-Priority value.
func priorityHeader(p Priority) string {
	switch p {
	case PriorityHigh:
		return "1 (Highest)"
	case PriorityNormal:
		return "3 (Normal)"
	case PriorityLow:
		return "5 (Lowest)"
	}
	return ""
}

// angleWrap ensures an identifier is enclosed in angle brackets.
func angleWrap(id string) string {
	if strings.HasPrefix(id, "<") {
		return id
	}
	return "<" + id + ">"
}
