package sasl

import (
	"encoding/base64"
	"fmt"
)

// XOAuth2 implements the XOAUTH2 mechanism used by Gmail and Outlook. On
// failure the server sends a 334 with a base64 JSON error blob; the client
// must answer with an empty line to surface the final status reply.
type XOAuth2 struct {
	username    string
	accessToken string
	flushed     bool
}

// NewXOAuth2 creates a new XOAUTH2 mechanism handler.
func NewXOAuth2(username, accessToken string) (*XOAuth2, error) {
	if accessToken == "" {
		return nil, ErrMissingToken
	}
	return &XOAuth2{username: username, accessToken: accessToken}, nil
}

// Name returns "XOAUTH2".
func (x *XOAuth2) Name() string {
	return "XOAUTH2"
}

// Start returns the base64 of "user=<u>\x01auth=Bearer <token>\x01\x01".
func (x *XOAuth2) Start() (string, error) {
	payload := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", x.username, x.accessToken)
	return base64.StdEncoding.EncodeToString([]byte(payload)), nil
}

// Next answers an error challenge with an empty line so the server reveals
// the terminal status code.
func (x *XOAuth2) Next(challenge string) (string, error) {
	if x.flushed {
		return "", ErrUnexpectedChallenge
	}
	x.flushed = true
	return "", nil
}
