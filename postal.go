// Package postal provides an RFC-compliant SMTP submission client library for Go.
//
// Postal is designed for submitting outbound mail to a submission server with
// a focus on correctness and security: full RFC 5321 client protocol, RFC
// 5322/2045 message composition with MIME multipart bodies, STARTTLS upgrade
// (RFC 3207), and SASL authentication (RFC 4954) with the PLAIN, LOGIN,
// CRAM-MD5 and XOAUTH2 mechanisms.
//
// # Quick Start
//
// Send a message through a submission server:
//
//	opts := &postal.Options{
//	    Host: "smtp.example.com",
//	    Auth: &postal.Auth{Username: "user@example.com", Password: "secret"},
//	}
//
//	mailer := postal.NewMailer(opts)
//	result, err := mailer.Send(context.Background(), &postal.Message{
//	    From:    postal.Addr("sender@example.com"),
//	    To:      []postal.Address{postal.Addr("recipient@example.com")},
//	    Subject: "Hello",
//	    Text:    "Hello from postal.",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Printf("accepted: %v", result.Accepted)
//
// # Connection Lifecycle
//
// A Client owns one connection. Connect dials the server (implicit TLS on
// port 465 when Secure is set, plaintext otherwise), reads the greeting,
// negotiates capabilities via EHLO, upgrades with STARTTLS when the server
// offers it, and authenticates when credentials are configured. After Connect
// returns, the client is ready for any number of Send calls; Quit ends the
// session.
//
// # Events
//
// Wire-level activity is observable through an explicit notification channel
// registered at construction:
//
//	opts.Events = &postal.Events{
//	    OnCommand: func(line string) { log.Println("C:", line) },
//	    OnClose:   func() { log.Println("connection closed") },
//	}
//
// Command notifications never include credentials; AUTH exchanges surface as
// "AUTH ***".
//
// # Errors
//
// Every failure is reported as a typed *Error carrying a stable kind code
// (CONNECTION_FAILED, AUTH_FAILED, SMTP_ERROR, ...), the server status code
// and raw response when one was received, and a remediation hint. The JSON
// form of *Error is stable across releases.
//
// # RFC Compliance
//
// Postal implements the client side of:
//
//   - RFC 5321: Simple Mail Transfer Protocol
//   - RFC 5322: Internet Message Format
//   - RFC 2045/2046: MIME part syntax and multipart media types
//   - RFC 2047: encoded words in message headers
//   - RFC 3207: SMTP Service Extension for Secure SMTP over TLS
//   - RFC 4954: SMTP Service Extension for Authentication
//   - RFC 4616: the PLAIN SASL mechanism
//   - RFC 2195: the CRAM-MD5 challenge-response mechanism
package postal

import "errors"

// Common SMTP client errors.
var (
	ErrClientClosed       = errors.New("smtp: client closed")
	ErrNoConnection       = errors.New("smtp: no connection established")
	ErrNotReady           = errors.New("smtp: connection not ready for commands")
	ErrTLSAlreadyActive   = errors.New("smtp: TLS already active")
	ErrTLSNotSupported    = errors.New("smtp: STARTTLS not supported by server")
	ErrUnexpectedResponse = errors.New("smtp: unexpected server response")
)
