package postal

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Result reports the outcome of one send: the message id, the per-recipient
// envelope outcome, and the server's final response.
type Result struct {
	MessageID string    `json:"messageId"`
	Accepted  []string  `json:"accepted"`
	Rejected  []string  `json:"rejected"`
	Response  string    `json:"response"`
	Envelope  *Envelope `json:"envelope"`
}

var queuedAsPattern = regexp.MustCompile(`(?i)queued as (\S+)`)

// Send transmits the message over the connection, opening it first when
// closed. Recipient-level rejections are collected in Result.Rejected without
// aborting the transaction; the send fails only when every recipient is
// rejected or the server refuses the sender or the message data.
func (c *Client) Send(ctx context.Context, m *Message) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return nil, err
		}
	}
	if c.state != StateReady {
		return nil, wrapError(KindConnectionFailed,
			fmt.Sprintf("connection is %s, not READY", c.state), ErrNotReady)
	}

	c.state = StateSending
	defer func() {
		if c.state == StateSending {
			c.state = StateReady
		}
	}()

	result, err := c.transact(m)
	if err != nil {
		typed, ok := AsError(err)
		if !ok {
			typed = wrapError(KindMessageRejected,
				fmt.Sprintf("message rejected: %s", err.Error()), err)
		}
		// Transport-level failures leave the socket unusable.
		if typed.Kind == KindConnectionFailed || typed.Kind == KindConnectionTimeout {
			c.fail(typed)
		}
		return nil, typed
	}
	return result, nil
}

// transact runs the MAIL FROM / RCPT TO / DATA sequence for one message.
func (c *Client) transact(m *Message) (*Result, error) {
	envelope := m.Envelope()
	if len(envelope.To) == 0 {
		return nil, newError(KindInvalidRecipient, "message has no recipients")
	}

	if _, err := c.exchange("MAIL FROM:<" + envelope.From + ">"); err != nil {
		if smtpErr, ok := AsError(err); ok && smtpErr.Kind == KindSMTPError {
			e := wrapError(KindInvalidSender,
				fmt.Sprintf("sender %q rejected", envelope.From), err)
			e.Solution = "Check that the sender address is allowed for this account"
			return nil, e
		}
		return nil, err
	}

	accepted := make([]string, 0, len(envelope.To))
	var rejected []string
	for _, rcpt := range envelope.To {
		_, err := c.exchange("RCPT TO:<" + rcpt + ">")
		if err == nil {
			accepted = append(accepted, rcpt)
			continue
		}
		if smtpErr, ok := AsError(err); ok && smtpErr.Kind == KindSMTPError {
			rejected = append(rejected, rcpt)
			continue
		}
		return nil, err
	}

	if len(accepted) == 0 {
		// Leave the session reusable for the next transaction.
		_, _ = c.exchange("RSET")
		e := newError(KindInvalidRecipient, "All recipients were rejected")
		e.Solution = "Check the recipient addresses"
		return nil, e
	}

	payload, messageID, err := composeMessage(m, c.opts.Name)
	if err != nil {
		return nil, err
	}

	resp, err := c.exchange("DATA")
	if err != nil {
		return nil, err
	}
	if resp.Code != int(CodeStartMailInput) {
		return nil, fmt.Errorf("%w: expected 354, got %d", ErrUnexpectedResponse, resp.Code)
	}

	final, err := c.writeData(payload)
	if err != nil {
		return nil, err
	}

	return &Result{
		MessageID: responseMessageID(final.Message, messageID),
		Accepted:  accepted,
		Rejected:  rejected,
		Response:  final.String(),
		Envelope:  envelope,
	}, nil
}

// writeData transmits the dot-stuffed payload followed by the terminating
// dot, and returns the server's final response.
func (c *Client) writeData(payload []byte) (*Response, error) {
	var buf bytes.Buffer
	buf.Grow(len(payload) + len(payload)/64 + 8)

	lines := strings.Split(string(payload), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, ".") {
			buf.WriteString(".")
		}
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}
	buf.WriteString(".\r\n")

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.SocketTimeout)); err != nil {
		return nil, wrapError(KindConnectionFailed, "cannot arm write deadline", err)
	}
	if _, err := c.conn.Write(buf.Bytes()); err != nil {
		return nil, c.ioError(err)
	}

	resp, err := c.readResponse(c.opts.SocketTimeout)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// responseMessageID extracts the server-assigned queue id from a "queued as
// XXXX" fragment, falling back to the id written into the Message-ID header.
func responseMessageID(response, headerID string) string {
	if match := queuedAsPattern.FindStringSubmatch(response); match != nil {
		return match[1]
	}
	return headerID
}

// Verify opens the connection if needed and checks that the server answers
// NOOP with a success code. Any failure yields false.
func (c *Client) Verify(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return false
		}
	}
	if c.state != StateReady {
		return false
	}

	resp, err := c.exchange("NOOP")
	return err == nil && resp.IsSuccess()
}
