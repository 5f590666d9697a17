package sasl

import (
	"encoding/base64"
	"fmt"
)

// Plain implements the PLAIN SASL mechanism (RFC 4616).
// Use only over TLS - passwords are transmitted in clear text.
type Plain struct {
	username string
	password string
}

// NewPlain creates a new PLAIN mechanism handler.
func NewPlain(username, password string) (*Plain, error) {
	if password == "" {
		return nil, ErrMissingPassword
	}
	return &Plain{username: username, password: password}, nil
}

// Name returns "PLAIN".
func (p *Plain) Name() string {
	return "PLAIN"
}

// Start returns the base64 of "\x00username\x00password" as the initial response.
func (p *Plain) Start() (string, error) {
	creds := fmt.Sprintf("\x00%s\x00%s", p.username, p.password)
	return base64.StdEncoding.EncodeToString([]byte(creds)), nil
}

// Next rejects any further challenge; PLAIN is a single-shot exchange.
func (p *Plain) Next(challenge string) (string, error) {
	return "", ErrUnexpectedChallenge
}
