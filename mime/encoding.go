// Package mime implements the content encodings used when composing MIME
// messages (RFC 2045): base64 with line wrapping, quoted-printable, RFC 2047
// encoded words for headers, and header folding.
package mime

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// ContentTransferEncoding represents the encoding used for a MIME part's body.
type ContentTransferEncoding string

const (
	// Encoding7Bit is for 7-bit ASCII data (RFC 2045 default).
	Encoding7Bit ContentTransferEncoding = "7bit"
	// EncodingQuotedPrintable is for quoted-printable encoding.
	EncodingQuotedPrintable ContentTransferEncoding = "quoted-printable"
	// EncodingBase64 is for base64 encoding.
	EncodingBase64 ContentTransferEncoding = "base64"
)

// MaxLineLength is the maximum encoded line length per RFC 2045.
const MaxLineLength = 76

// MaxHeaderLength is the recommended header line length per RFC 5322.
const MaxHeaderLength = 78

// EncodeBase64 encodes data to standard base64 with padding (RFC 4648).
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// EncodeBase64Wrapped encodes data to base64 and inserts CRLF every lineLen
// output characters. The terminator is not counted against the line length,
// and no trailing CRLF is appended.
func EncodeBase64Wrapped(data []byte, lineLen int) string {
	if lineLen <= 0 {
		lineLen = MaxLineLength
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	if len(encoded) <= lineLen {
		return encoded
	}

	var b strings.Builder
	b.Grow(len(encoded) + 2*(len(encoded)/lineLen))
	for len(encoded) > lineLen {
		b.WriteString(encoded[:lineLen])
		b.WriteString("\r\n")
		encoded = encoded[lineLen:]
	}
	b.WriteString(encoded)
	return b.String()
}

// EncodeQuotedPrintable encodes UTF-8 text as quoted-printable (RFC 2045).
//
// Bytes below 0x20, above 0x7E, and '=' become =HH with uppercase hex digits.
// Tab and space stay literal except as the last byte of a line, where they
// are encoded so trailing whitespace survives transport. A lone LF becomes
// CRLF, a CRLF pair passes through, and a lone CR is encoded as =0D. When
// appending the next token would overflow lineLen, a soft break "=\r\n" is
// emitted first; soft breaks never split an =HH triplet.
func EncodeQuotedPrintable(text string, lineLen int) string {
	if lineLen <= 0 {
		lineLen = MaxLineLength
	}

	data := []byte(text)
	var b strings.Builder
	b.Grow(len(data) + len(data)/8)

	col := 0
	for i := 0; i < len(data); i++ {
		c := data[i]

		if c == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			b.WriteString("\r\n")
			col = 0
			i++
			continue
		}
		if c == '\n' {
			b.WriteString("\r\n")
			col = 0
			continue
		}

		var token string
		switch {
		case c == '\t' || c == ' ':
			if lastByteOfLine(data, i) {
				token = fmt.Sprintf("=%02X", c)
			} else {
				token = string(c)
			}
		case c < 0x20 || c > 0x7E || c == '=':
			token = fmt.Sprintf("=%02X", c)
		default:
			token = string(c)
		}

		if col+len(token) >= lineLen {
			b.WriteString("=\r\n")
			col = 0
		}
		b.WriteString(token)
		col += len(token)
	}

	return b.String()
}

// lastByteOfLine reports whether data[i] is immediately followed by a line
// break or the end of input.
func lastByteOfLine(data []byte, i int) bool {
	if i == len(data)-1 {
		return true
	}
	next := data[i+1]
	return next == '\n' || next == '\r'
}

// DecodeQuotedPrintable decodes quoted-printable text.
//
// "=HH" decodes to the corresponding byte, "=" immediately before CRLF is a
// soft break and decodes to nothing, and "=" followed by anything else passes
// through literally.
func DecodeQuotedPrintable(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '=' {
			b.WriteByte(c)
			continue
		}

		if i+2 < len(text) && text[i+1] == '\r' && text[i+2] == '\n' {
			i += 2
			continue
		}

		if i+2 < len(text) {
			hi, okHi := hexValue(text[i+1])
			lo, okLo := hexValue(text[i+2])
			if okHi && okLo {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}

		b.WriteByte(c)
	}

	return b.String()
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
