package postal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// composedHeaders splits a payload into its top-level header lines (unfolded)
// and body.
func composedHeaders(t *testing.T, payload []byte) ([]string, string) {
	t.Helper()

	raw := string(payload)
	sep := strings.Index(raw, "\r\n\r\n")
	require.NotEqual(t, -1, sep, "payload has no header/body separator")

	headerBlock := strings.ReplaceAll(raw[:sep], "\r\n ", " ")
	return strings.Split(headerBlock, "\r\n"), raw[sep+4:]
}

func headerNames(lines []string) []string {
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		if idx := strings.Index(line, ":"); idx != -1 {
			names = append(names, line[:idx])
		}
	}
	return names
}

func TestCompose_HeaderOrder(t *testing.T) {
	t.Parallel()

	msg := &Message{
		From:       Address{Name: "Alice", Address: "alice@x.example"},
		To:         []Address{Addr("bob@y.example")},
		Cc:         []Address{Addr("carol@y.example")},
		Subject:    "ordering",
		Text:       "body",
		Priority:   PriorityHigh,
		References: "ref-1@x.example",
		InReplyTo:  "parent@x.example",
		Headers:    []Header{{Name: "X-Campaign", Value: "launch"}},
		Date:       time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
	}

	payload, messageID, err := composeMessage(msg, "mailer.test")
	require.NoError(t, err)

	lines, _ := composedHeaders(t, payload)
	assert.Equal(t, []string{
		"From", "To", "Cc", "Subject", "Date", "Message-ID", "X-Priority",
		"References", "In-Reply-To", "X-Campaign", "MIME-Version",
		"Content-Type", "Content-Transfer-Encoding",
	}, headerNames(lines))

	assert.Contains(t, lines, "From: Alice <alice@x.example>")
	assert.Contains(t, lines, "X-Priority: 1 (Highest)")
	assert.Contains(t, lines, "References: <ref-1@x.example>")
	assert.Contains(t, lines, "In-Reply-To: <parent@x.example>")
	assert.Contains(t, lines, "Date: Sat, 14 Mar 2026 15:09:26 +0000")
	assert.Contains(t, lines, "Message-ID: "+messageID)
	assert.True(t, strings.HasPrefix(messageID, "<"))
	assert.True(t, strings.HasSuffix(messageID, "@mailer.test>"))
}

func TestCompose_TextOnly(t *testing.T) {
	t.Parallel()

	payload, _, err := composeMessage(&Message{
		From:    Addr("a@x.example"),
		To:      []Address{Addr("b@y.example")},
		Subject: "text",
		Text:    "héllo wörld",
	}, "mailer.test")
	require.NoError(t, err)

	lines, body := composedHeaders(t, payload)
	assert.Contains(t, lines, "Content-Type: text/plain; charset=utf-8")
	assert.Contains(t, lines, "Content-Transfer-Encoding: quoted-printable")
	assert.Contains(t, body, "h=C3=A9llo w=C3=B6rld")
}

func TestCompose_HTMLOnly(t *testing.T) {
	t.Parallel()

	payload, _, err := composeMessage(&Message{
		From:    Addr("a@x.example"),
		To:      []Address{Addr("b@y.example")},
		Subject: "html",
		HTML:    "<p>hello</p>",
	}, "mailer.test")
	require.NoError(t, err)

	lines, body := composedHeaders(t, payload)
	assert.Contains(t, lines, "Content-Type: text/html; charset=utf-8")
	assert.Contains(t, body, "<p>hello</p>")
}

func TestCompose_Alternative(t *testing.T) {
	t.Parallel()

	payload, _, err := composeMessage(&Message{
		From:    Addr("a@x.example"),
		To:      []Address{Addr("b@y.example")},
		Subject: "alt",
		Text:    "plain version",
		HTML:    "<p>html version</p>",
	}, "mailer.test")
	require.NoError(t, err)

	lines, body := composedHeaders(t, payload)

	var boundary string
	for _, line := range lines {
		if strings.HasPrefix(line, "Content-Type: multipart/alternative; boundary=") {
			boundary = strings.Trim(line[len("Content-Type: multipart/alternative; boundary="):], `"`)
		}
	}
	require.NotEmpty(t, boundary, "missing multipart/alternative content type")

	// Plain part precedes the html part; the structure closes with --boundary--.
	plainIdx := strings.Index(body, "text/plain")
	htmlIdx := strings.Index(body, "text/html")
	require.NotEqual(t, -1, plainIdx)
	require.NotEqual(t, -1, htmlIdx)
	assert.Less(t, plainIdx, htmlIdx)
	assert.Equal(t, 2, strings.Count(body, "--"+boundary+"\r\n"))
	assert.True(t, strings.HasSuffix(body, "--"+boundary+"--\r\n"))
}

func TestCompose_MixedWithAttachments(t *testing.T) {
	t.Parallel()

	payload, _, err := composeMessage(&Message{
		From:    Addr("a@x.example"),
		To:      []Address{Addr("b@y.example")},
		Subject: "mixed",
		Text:    "see attachment",
		HTML:    "<p>see attachment</p>",
		Attachments: []*Attachment{
			{
				Filename:    "report.pdf",
				Content:     []byte("%PDF-1.4 fake content"),
				ContentType: "application/pdf",
			},
			{
				Filename: "logo.png",
				Content:  []byte{0x89, 0x50, 0x4E, 0x47},
				CID:      "logo@mailer",
			},
		},
	}, "mailer.test")
	require.NoError(t, err)

	// Unfold headers so boundary parameters are searchable on one line.
	raw := strings.ReplaceAll(string(payload), "\r\n ", " ")
	assert.Contains(t, raw, "multipart/mixed")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, `Content-Type: application/pdf; name="report.pdf"`)
	assert.Contains(t, raw, `Content-Disposition: attachment; filename="report.pdf"`)
	assert.Contains(t, raw, "Content-Transfer-Encoding: base64")
	assert.Contains(t, raw, "Content-ID: <logo@mailer>")
	// Unnamed content type defaults.
	assert.Contains(t, raw, `Content-Type: application/octet-stream; name="logo.png"`)

	// The two multipart levels use distinct boundaries.
	mixedB := boundaryOf(t, raw, "multipart/mixed")
	altB := boundaryOf(t, raw, "multipart/alternative")
	assert.NotEqual(t, mixedB, altB)
}

func boundaryOf(t *testing.T, raw, contentType string) string {
	t.Helper()
	idx := strings.Index(raw, contentType+"; boundary=")
	require.NotEqual(t, -1, idx, "missing %s boundary", contentType)
	rest := raw[idx+len(contentType)+len("; boundary="):]
	end := strings.Index(rest, "\r\n")
	require.NotEqual(t, -1, end)
	return strings.Trim(rest[:end], `"`)
}

func TestCompose_AttachmentFromPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("file content"), 0o644))

	payload, _, err := composeMessage(&Message{
		From:        Addr("a@x.example"),
		To:          []Address{Addr("b@y.example")},
		Subject:     "path",
		Text:        "body",
		Attachments: []*Attachment{{Path: path}},
	}, "mailer.test")
	require.NoError(t, err)

	raw := string(payload)
	// Filename derives from the path basename and lands in both headers.
	assert.Contains(t, raw, `name="notes.txt"`)
	assert.Contains(t, raw, `filename="notes.txt"`)
}

func TestCompose_AttachmentPathMissing(t *testing.T) {
	t.Parallel()

	_, _, err := composeMessage(&Message{
		From:        Addr("a@x.example"),
		To:          []Address{Addr("b@y.example")},
		Subject:     "missing",
		Text:        "body",
		Attachments: []*Attachment{{Path: "/nonexistent/file.bin"}},
	}, "mailer.test")
	require.Error(t, err)

	typed, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidConfig, typed.Kind)
	assert.Contains(t, typed.Message, "/nonexistent/file.bin")
}

func TestCompose_AttachmentEncodings(t *testing.T) {
	t.Parallel()

	payload, _, err := composeMessage(&Message{
		From:    Addr("a@x.example"),
		To:      []Address{Addr("b@y.example")},
		Subject: "encodings",
		Text:    "body",
		Attachments: []*Attachment{
			{Filename: "a.txt", Content: []byte("seven bit safe"), Encoding: "7bit"},
			{Filename: "b.txt", Content: []byte("qp côntent"), Encoding: "quoted-printable"},
		},
	}, "mailer.test")
	require.NoError(t, err)

	raw := string(payload)
	assert.Contains(t, raw, "seven bit safe")
	assert.Contains(t, raw, "qp c=C3=B4ntent")

	_, _, err = composeMessage(&Message{
		From:        Addr("a@x.example"),
		To:          []Address{Addr("b@y.example")},
		Subject:     "bad",
		Text:        "body",
		Attachments: []*Attachment{{Filename: "x", Content: []byte("y"), Encoding: "uuencode"}},
	}, "mailer.test")
	typed, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindEncodingError, typed.Kind)
}

func TestCompose_SubjectEncoding(t *testing.T) {
	t.Parallel()

	payload, _, err := composeMessage(&Message{
		From:    Addr("a@x.example"),
		To:      []Address{Addr("b@y.example")},
		Subject: "Grüße aus Köln",
		Text:    "body",
	}, "mailer.test")
	require.NoError(t, err)

	lines, _ := composedHeaders(t, payload)
	var subject string
	for _, line := range lines {
		if strings.HasPrefix(line, "Subject: ") {
			subject = strings.TrimPrefix(line, "Subject: ")
		}
	}
	assert.True(t, strings.HasPrefix(subject, "=?utf-8?B?"), "subject not RFC 2047 encoded: %q", subject)
}

func TestCompose_CRLFOnly(t *testing.T) {
	t.Parallel()

	payload, _, err := composeMessage(&Message{
		From:    Addr("a@x.example"),
		To:      []Address{Addr("b@y.example")},
		Subject: "endings",
		Text:    "line one\nline two\nline three",
	}, "mailer.test")
	require.NoError(t, err)

	raw := string(payload)
	assert.NotContains(t, strings.ReplaceAll(raw, "\r\n", ""), "\n",
		"payload contains bare LF")
	assert.NotContains(t, strings.ReplaceAll(raw, "\r\n", ""), "\r",
		"payload contains bare CR")
}

func TestCompose_SuppliedMessageID(t *testing.T) {
	t.Parallel()

	payload, messageID, err := composeMessage(&Message{
		From:      Addr("a@x.example"),
		To:        []Address{Addr("b@y.example")},
		Subject:   "id",
		Text:      "body",
		MessageID: "custom-id@x.example",
	}, "mailer.test")
	require.NoError(t, err)

	assert.Equal(t, "<custom-id@x.example>", messageID)
	assert.Contains(t, string(payload), "Message-ID: <custom-id@x.example>")
}
