package sasl

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
)

// CramMD5 implements the CRAM-MD5 SASL mechanism (RFC 2195). The password
// never crosses the wire; the client proves possession by answering the
// server's timestamp challenge with an HMAC-MD5 digest.
type CramMD5 struct {
	username string
	password string
	answered bool
}

// NewCramMD5 creates a new CRAM-MD5 mechanism handler.
func NewCramMD5(username, password string) (*CramMD5, error) {
	if password == "" {
		return nil, ErrMissingPassword
	}
	return &CramMD5{username: username, password: password}, nil
}

// Name returns "CRAM-MD5".
func (c *CramMD5) Name() string {
	return "CRAM-MD5"
}

// Start begins the exchange; the server sends the challenge first.
func (c *CramMD5) Start() (string, error) {
	return "", nil
}

// Next answers the base64 challenge with base64("username hex-digest").
func (c *CramMD5) Next(challenge string) (string, error) {
	if c.answered {
		return "", ErrUnexpectedChallenge
	}
	c.answered = true

	decoded, err := base64.StdEncoding.DecodeString(challenge)
	if err != nil {
		return "", ErrInvalidChallenge
	}

	mac := hmac.New(md5.New, []byte(c.password))
	mac.Write(decoded)
	digest := hex.EncodeToString(mac.Sum(nil))

	return base64.StdEncoding.EncodeToString([]byte(c.username + " " + digest)), nil
}
