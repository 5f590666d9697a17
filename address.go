package postal

import (
	"regexp"
	"strings"

	"github.com/veltalabs/postal/mime"
)

// addressPattern is deliberately permissive; submission servers apply the
// authoritative validation.
var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Address represents a mail address, optionally with a display name. The
// Address field accepts both bare "user@host" and display-form
// `"Name" <user@host>` strings.
type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// Addr wraps a raw address string (bare or display form) in an Address.
func Addr(s string) Address {
	return Address{Address: s}
}

// Bare returns the plain "user@host" form used on the SMTP envelope: the
// angle-bracketed part when present, otherwise the whole address string.
func (a Address) Bare() string {
	return extractAddress(a.Address)
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.Name == "" && a.Address == ""
}

// Display returns the header form of the address. A display name is quoted
// when it contains specials and RFC 2047-encoded when it is not ASCII.
func (a Address) Display() string {
	if a.Name == "" {
		return a.Address
	}

	name := a.Name
	if encoded := mime.EncodeHeader(name, mime.SchemeB, "utf-8"); encoded != name {
		name = encoded
	} else if strings.ContainsAny(name, `"(),.:;<>@[\]`) {
		name = `"` + strings.ReplaceAll(name, `"`, `\"`) + `"`
	}

	return name + " <" + a.Bare() + ">"
}

// extractAddress returns the content inside the first angle-bracket pair when
// present, otherwise the input unchanged.
func extractAddress(s string) string {
	start := strings.Index(s, "<")
	if start == -1 {
		return s
	}
	end := strings.Index(s[start:], ">")
	if end == -1 {
		return s
	}
	return s[start+1 : start+end]
}

// validAddress reports whether the bare form of s looks like a deliverable
// address.
func validAddress(s string) bool {
	return addressPattern.MatchString(extractAddress(s))
}

// formatAddressList renders a comma-separated header value for a list of
// addresses.
func formatAddressList(addrs []Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.Display()
	}
	return strings.Join(parts, ", ")
}
