package postal

import (
	"fmt"
	"slices"
	"strings"

	"github.com/veltalabs/postal/sasl"
)

// Remediation hints attached to authentication failures.
const (
	solutionPassword = "Check username and password"
	solutionToken    = "Check access token validity and scopes"
)

// authenticate selects a SASL mechanism from the advertised set and drives
// the challenge/response exchange. Called with the client lock held, after
// capabilities have been negotiated. The mechanism holds the credentials
// only for the duration of the exchange.
func (c *Client) authenticate() error {
	auth := c.opts.Auth

	if len(c.caps.Auth) == 0 {
		return authError("Server does not support authentication", nil, auth)
	}

	mech, err := selectMechanism(auth, c.caps.Auth)
	if err != nil {
		return err
	}

	initial, err := mech.Start()
	if err != nil {
		return authError("cannot start authentication", err, auth)
	}

	line := "AUTH " + mech.Name()
	if initial != "" {
		line += " " + initial
	}

	resp, err := c.exchangeRedacted(line, "AUTH ***")
	for err == nil && resp.Code == int(CodeAuthContinue) {
		var reply string
		reply, err = mech.Next(strings.TrimSpace(resp.Message))
		if err != nil {
			return authError("authentication exchange failed", err, auth)
		}
		resp, err = c.exchangeRedacted(reply, "AUTH ***")
	}
	if err != nil {
		return authError("authentication failed", err, auth)
	}

	c.authenticated = true
	c.logger.Debug("smtp authenticated", "mechanism", mech.Name())
	return nil
}

// selectMechanism picks the SASL mechanism per the negotiation rules: an
// explicitly requested mechanism must be advertised; a configured access
// token selects XOAUTH2 when offered; otherwise the strongest of CRAM-MD5,
// LOGIN, PLAIN wins.
func selectMechanism(auth *Auth, advertised []string) (sasl.Mechanism, error) {
	has := func(name string) bool {
		return slices.ContainsFunc(advertised, func(a string) bool {
			return strings.EqualFold(a, name)
		})
	}

	if auth.Type != "" {
		name := strings.ToUpper(auth.Type)
		if !has(name) {
			return nil, authError(
				fmt.Sprintf("Server does not support the %s mechanism", name), nil, auth)
		}
		return newMechanism(name, auth)
	}

	if auth.AccessToken != "" && has("XOAUTH2") {
		return newMechanism("XOAUTH2", auth)
	}

	for _, name := range []string{"CRAM-MD5", "LOGIN", "PLAIN"} {
		if has(name) {
			return newMechanism(name, auth)
		}
	}

	return nil, authError("No supported authentication mechanism available", nil, auth)
}

// newMechanism constructs the named mechanism from the credentials.
func newMechanism(name string, auth *Auth) (sasl.Mechanism, error) {
	var mech sasl.Mechanism
	var err error

	switch name {
	case "PLAIN":
		mech, err = sasl.NewPlain(auth.Username, auth.Password)
	case "LOGIN":
		mech, err = sasl.NewLogin(auth.Username, auth.Password)
	case "CRAM-MD5":
		mech, err = sasl.NewCramMD5(auth.Username, auth.Password)
	case "XOAUTH2":
		mech, err = sasl.NewXOAuth2(auth.Username, auth.AccessToken)
	default:
		return nil, authError(fmt.Sprintf("unsupported mechanism %q", name), nil, auth)
	}

	if err != nil {
		return nil, authError("incomplete credentials", err, auth)
	}
	return mech, nil
}

// authError wraps a failure into AUTH_FAILED with the matching remediation
// hint, preserving the server status and response from the cause.
func authError(message string, cause error, auth *Auth) *Error {
	e := wrapError(KindAuthFailed, message, cause)
	if auth != nil && (auth.AccessToken != "" || strings.EqualFold(auth.Type, "XOAUTH2")) {
		e.Solution = solutionToken
	} else {
		e.Solution = solutionPassword
	}
	return e
}
