package postal

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// State tracks the connection lifecycle.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateConnected
	StateReady
	StateSending
	StateClosing
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReady:
		return "READY"
	case StateSending:
		return "SENDING"
	case StateClosing:
		return "CLOSING"
	case StateError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Capabilities holds the server feature set parsed from the EHLO reply. The
// table is reset and repopulated on every EHLO, including the one that
// follows a STARTTLS upgrade.
type Capabilities struct {
	Auth                []string
	Size                int64
	StartTLS            bool
	EightBitMIME        bool
	Pipelining          bool
	EnhancedStatusCodes bool
	SMTPUTF8            bool
}

// Client is an SMTP submission client owning a single connection. A Client
// serializes all protocol exchanges internally: concurrent calls queue on the
// connection and run one at a time, each holding the socket for its complete
// command/response round trip.
type Client struct {
	opts   *Options
	logger *slog.Logger
	events *Events

	mu            sync.Mutex
	state         State
	conn          net.Conn
	parser        responseParser
	queued        []*Response
	caps          Capabilities
	secure        bool
	authenticated bool
	greeting      string
	closed        bool
}

// NewClient creates a client for the given options. The connection is opened
// lazily by Connect or by the first Send.
func NewClient(opts *Options) *Client {
	o := opts.withDefaults()
	return &Client{
		opts:   o,
		logger: o.Logger,
		events: o.Events,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Capabilities returns the capability table from the most recent EHLO.
func (c *Client) Capabilities() Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// Connect dials the server, reads the greeting, negotiates capabilities,
// upgrades to TLS when offered, and authenticates when credentials are
// configured. After Connect returns the client is ready to send.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect(ctx)
}

// connect is the lock-held body of Connect.
func (c *Client) connect(ctx context.Context) error {
	if c.closed {
		return wrapError(KindConnectionFailed, "client is closed", ErrClientClosed)
	}
	if c.conn != nil {
		return nil
	}

	c.state = StateConnecting
	if err := c.dial(ctx); err != nil {
		c.fail(err)
		return err
	}
	c.state = StateConnected

	if err := c.greet(); err != nil {
		c.fail(err)
		return err
	}

	if err := c.ehlo(); err != nil {
		c.fail(err)
		return err
	}

	if !c.secure && c.caps.StartTLS && !c.opts.DisableSTARTTLS {
		if err := c.startTLS(ctx); err != nil {
			c.fail(err)
			return err
		}
		if err := c.ehlo(); err != nil {
			c.fail(err)
			return err
		}
	}

	if c.opts.Auth != nil {
		if err := c.authenticate(); err != nil {
			c.fail(err)
			return err
		}
	}

	c.state = StateReady
	c.logger.Debug("smtp connection ready",
		slog.String("host", c.opts.Host),
		slog.Bool("secure", c.secure),
		slog.Bool("authenticated", c.authenticated))
	return nil
}

// dial opens the TCP or implicit-TLS socket with the connection timeout
// covering the whole handshake.
func (c *Client) dial(ctx context.Context) error {
	addr := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
	netDialer := &net.Dialer{Timeout: c.opts.ConnectionTimeout}

	var conn net.Conn
	var err error
	if c.opts.Secure {
		dialer := &tls.Dialer{NetDialer: netDialer, Config: c.opts.tlsConfig()}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		if isTimeout(err) {
			e := wrapError(KindConnectionTimeout,
				fmt.Sprintf("connection to %s timed out", addr), err)
			e.Solution = "Check the host and port, and that the server is reachable"
			return e
		}
		e := wrapError(KindConnectionFailed, fmt.Sprintf("cannot connect to %s", addr), err)
		e.Solution = "Check the host and port, and that the server is reachable"
		return e
	}

	c.conn = conn
	c.secure = c.opts.Secure
	return nil
}

// greet consumes the unsolicited 220 banner within the greeting timeout.
func (c *Client) greet() error {
	resp, err := c.readResponse(c.opts.GreetingTimeout)
	if err != nil {
		return err
	}
	if resp.Code != int(CodeServiceReady) {
		e := smtpError(resp.Code, resp.String())
		return wrapError(KindConnectionFailed, "server rejected the connection", e)
	}
	c.greeting = resp.Message
	return nil
}

// ehlo negotiates the session and populates the capability table, falling
// back to HELO once when the server rejects EHLO.
func (c *Client) ehlo() error {
	c.caps = Capabilities{}

	resp, err := c.exchange("EHLO " + c.opts.Name)
	if err != nil {
		var smtpErr *Error
		if !errors.As(err, &smtpErr) || smtpErr.Kind != KindSMTPError {
			return err
		}
		// Non-ESMTP server: plain HELO, no capabilities.
		if _, err := c.exchange("HELO " + c.opts.Name); err != nil {
			return err
		}
		return nil
	}

	c.parseCapabilities(resp.Lines)
	return nil
}

// parseCapabilities fills the capability table from EHLO reply lines. The
// first line echoes the server hostname and is skipped.
func (c *Client) parseCapabilities(lines []string) {
	if len(lines) < 2 {
		return
	}
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "AUTH":
			for _, mech := range fields[1:] {
				c.caps.Auth = append(c.caps.Auth, strings.ToUpper(mech))
			}
		case "SIZE":
			if len(fields) > 1 {
				if size, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
					c.caps.Size = size
				}
			}
		case "STARTTLS":
			c.caps.StartTLS = true
		case "8BITMIME":
			c.caps.EightBitMIME = true
		case "PIPELINING":
			c.caps.Pipelining = true
		case "ENHANCEDSTATUSCODES":
			c.caps.EnhancedStatusCodes = true
		case "SMTPUTF8":
			c.caps.SMTPUTF8 = true
		}
	}
}

// startTLS upgrades the plaintext socket in place. On success the transport
// is replaced and the capability table cleared; the caller re-issues EHLO.
func (c *Client) startTLS(ctx context.Context) error {
	if c.secure {
		return wrapError(KindTLSFailed, "TLS already active", ErrTLSAlreadyActive)
	}

	resp, err := c.exchange("STARTTLS")
	if err != nil {
		return wrapError(KindTLSFailed, "server rejected STARTTLS", err)
	}
	if resp.Code != int(CodeServiceReady) {
		return wrapError(KindTLSFailed, "server rejected STARTTLS", smtpError(resp.Code, resp.String()))
	}

	tlsConn := tls.Client(c.conn, c.opts.tlsConfig())
	handshakeCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectionTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
		return wrapError(KindTLSFailed, "TLS handshake failed", err)
	}

	// No plaintext bytes may cross after the 220; the parser buffer must be
	// empty here or the server spoke out of turn.
	c.conn = tlsConn
	c.secure = true
	c.caps = Capabilities{}
	c.parser.discard()
	c.queued = nil

	return nil
}

// exchange writes one command line and blocks for its response. Responses
// with codes in [200,399] succeed; 4xx/5xx reject with an SMTP_ERROR that
// carries the status code and the raw reply.
func (c *Client) exchange(line string) (*Response, error) {
	return c.exchangeRedacted(line, redactCommand(line))
}

// exchangeRedacted is exchange with an explicit notification label, used for
// AUTH continuation lines that must never surface credential bytes.
func (c *Client) exchangeRedacted(line, label string) (*Response, error) {
	if c.conn == nil {
		return nil, wrapError(KindConnectionFailed, "no connection", ErrNoConnection)
	}

	c.events.emitCommand(label)
	c.logger.Debug("smtp command", slog.String("command", label))

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.SocketTimeout)); err != nil {
		return nil, wrapError(KindConnectionFailed, "cannot arm write deadline", err)
	}
	if _, err := c.conn.Write([]byte(line + "\r\n")); err != nil {
		return nil, c.ioError(err)
	}

	resp, err := c.readResponse(c.opts.SocketTimeout)
	if err != nil {
		return nil, err
	}
	return resp, resp.Err()
}

// readResponse blocks until the parser completes one response, applying
// deadline as an idle watchdog on the socket.
func (c *Client) readResponse(deadline time.Duration) (*Response, error) {
	for {
		if len(c.queued) > 0 {
			resp := c.queued[0]
			c.queued = c.queued[1:]
			return resp, nil
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return nil, wrapError(KindConnectionFailed, "cannot arm read deadline", err)
		}

		buf := make([]byte, 4096)
		n, err := c.conn.Read(buf)
		if n > 0 {
			responses, perr := c.parser.feed(buf[:n])
			c.queued = append(c.queued, responses...)
			if perr != nil {
				return nil, wrapError(KindConnectionFailed, "protocol violation", perr)
			}
		}
		if err != nil && len(c.queued) == 0 {
			return nil, c.ioError(err)
		}
	}
}

// ioError maps socket failures to the error taxonomy.
func (c *Client) ioError(err error) *Error {
	if isTimeout(err) {
		e := wrapError(KindConnectionTimeout, "connection timed out", err)
		e.Solution = "The server stopped responding; check network stability and server health"
		return e
	}
	return wrapError(KindConnectionFailed, "connection failed", err)
}

// Noop sends the NOOP command.
func (c *Client) Noop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady && c.state != StateSending {
		return wrapError(KindConnectionFailed, "connection not ready", ErrNotReady)
	}
	_, err := c.exchange("NOOP")
	return err
}

// Rset aborts the current mail transaction.
func (c *Client) Rset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady && c.state != StateSending {
		return wrapError(KindConnectionFailed, "connection not ready", ErrNotReady)
	}
	_, err := c.exchange("RSET")
	return err
}

// Quit ends the session gracefully. Errors from the QUIT exchange are
// ignored; the socket is destroyed either way.
func (c *Client) Quit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	c.state = StateClosing
	_, _ = c.exchange("QUIT")
	c.destroy()
	return nil
}

// Close destroys the connection immediately without QUIT.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		c.closed = true
		return nil
	}
	c.state = StateClosing
	c.destroy()
	c.closed = true
	return nil
}

// fail records a terminal error, destroys the socket, and notifies.
func (c *Client) fail(err error) {
	c.events.emitError(err)
	c.logger.Debug("smtp connection failed", slog.String("error", err.Error()))
	c.destroy()
	c.state = StateError
}

// destroy closes the socket, resets per-connection state, and emits close.
func (c *Client) destroy() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.parser.discard()
	c.queued = nil
	c.caps = Capabilities{}
	c.secure = false
	c.authenticated = false
	c.state = StateClosed
	c.events.emitClose()
}

// redactCommand hides credentials in command notifications.
func redactCommand(line string) string {
	if strings.HasPrefix(strings.ToUpper(line), "AUTH") {
		return "AUTH ***"
	}
	return line
}

// isTimeout reports whether err is a network timeout.
func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
