package mime

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// WordScheme selects the RFC 2047 encoded-word scheme.
type WordScheme byte

const (
	// SchemeB uses base64 payloads (RFC 2047 "B" encoding).
	SchemeB WordScheme = 'B'
	// SchemeQ uses quoted-printable-like payloads (RFC 2047 "Q" encoding).
	SchemeQ WordScheme = 'Q'
)

// EncodeHeader encodes text as an RFC 2047 encoded word when it contains
// non-ASCII characters. ASCII-only input is returned unchanged.
//
// The Q scheme maps SPACE to '_' and passes only alphanumerics literally;
// everything else becomes =HH.
func EncodeHeader(text string, scheme WordScheme, charset string) string {
	if isASCII(text) {
		return text
	}
	if charset == "" {
		charset = "utf-8"
	}

	var payload string
	switch scheme {
	case SchemeQ:
		payload = encodeQWord(text)
	default:
		scheme = SchemeB
		payload = base64.StdEncoding.EncodeToString([]byte(text))
	}

	return fmt.Sprintf("=?%s?%c?%s?=", charset, scheme, payload)
}

// DecodeHeader reverses RFC 2047 encoded words within s, leaving non-encoded
// segments unchanged. A malformed encoded word is returned as-is.
func DecodeHeader(s string) string {
	var b strings.Builder
	rest := s

	for {
		start := strings.Index(rest, "=?")
		if start == -1 {
			b.WriteString(rest)
			return b.String()
		}

		// The closing "?=" is searched for after the charset and scheme
		// fields, since a Q payload may itself begin with "=".
		end := -1
		if fields := strings.SplitN(rest[start+2:], "?", 3); len(fields) == 3 {
			payloadStart := start + 2 + len(fields[0]) + 1 + len(fields[1]) + 1
			if idx := strings.Index(rest[payloadStart:], "?="); idx != -1 {
				end = payloadStart + idx + 2
			}
		}
		if end == -1 {
			b.WriteString(rest)
			return b.String()
		}

		word := rest[start:end]
		b.WriteString(rest[:start])

		if decoded, ok := decodeWord(word); ok {
			b.WriteString(decoded)
		} else {
			b.WriteString(word)
		}
		rest = rest[end:]
	}
}

// decodeWord decodes a single "=?charset?scheme?payload?=" token.
func decodeWord(word string) (string, bool) {
	inner := strings.TrimSuffix(strings.TrimPrefix(word, "=?"), "?=")
	parts := strings.SplitN(inner, "?", 3)
	if len(parts) != 3 {
		return "", false
	}

	payload := parts[2]
	switch strings.ToUpper(parts[1]) {
	case "B":
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", false
		}
		return string(decoded), true
	case "Q":
		return DecodeQuotedPrintable(strings.ReplaceAll(payload, "_", " ")), true
	}
	return "", false
}

// FoldHeader folds a header line that exceeds max characters. Continuation
// lines start with CRLF followed by a single space, splits happen only at
// whitespace, so encoded words are never broken apart.
func FoldHeader(line string, max int) string {
	if max <= 0 {
		max = MaxHeaderLength
	}
	if len(line) <= max {
		return line
	}

	words := strings.Split(line, " ")
	var b strings.Builder
	lineLen := 0

	for i, word := range words {
		if i == 0 {
			b.WriteString(word)
			lineLen = len(word)
			continue
		}
		if lineLen+1+len(word) > max {
			b.WriteString("\r\n ")
			b.WriteString(word)
			lineLen = 1 + len(word)
			continue
		}
		b.WriteString(" ")
		b.WriteString(word)
		lineLen += 1 + len(word)
	}

	return b.String()
}

// encodeQWord encodes text for the Q scheme: space becomes '_', alphanumerics
// pass through, and every other byte becomes =HH.
func encodeQWord(text string) string {
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == ' ':
			b.WriteByte('_')
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	return b.String()
}

// isASCII reports whether s contains only 7-bit characters.
func isASCII(s string) bool {
	for _, r := range s {
		if r >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
