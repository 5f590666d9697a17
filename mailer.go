package postal

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Mailer is the user-level facade: it validates messages and runs each send
// on its own connection. Mailers are safe for concurrent use; concurrent
// sends do not share a connection.
type Mailer struct {
	opts   *Options
	logger *slog.Logger
}

// NewMailer creates a mailer for the given options.
func NewMailer(opts *Options) *Mailer {
	o := opts.withDefaults()
	return &Mailer{opts: o, logger: o.Logger}
}

// Send validates the message and submits it over a fresh connection, closing
// the session when the transaction completes.
func (m *Mailer) Send(ctx context.Context, msg *Message) (*Result, error) {
	sendID := uuid.NewString()
	logger := m.logger.With(slog.String("send_id", sendID), slog.String("host", m.opts.Host))

	if err := msg.Validate(); err != nil {
		logger.Debug("message validation failed", slog.String("error", err.Error()))
		return nil, err
	}

	client := NewClient(m.opts)
	defer client.Close()

	result, err := client.Send(ctx, msg)
	if err != nil {
		logger.Debug("send failed", slog.String("error", err.Error()))
		return nil, err
	}
	_ = client.Quit()

	logger.Debug("send complete",
		slog.String("message_id", result.MessageID),
		slog.Int("accepted", len(result.Accepted)),
		slog.Int("rejected", len(result.Rejected)))
	return result, nil
}

// Verify checks connectivity and authentication against the configured
// server without sending mail.
func (m *Mailer) Verify(ctx context.Context) bool {
	client := NewClient(m.opts)
	defer client.Close()

	ok := client.Verify(ctx)
	if ok {
		_ = client.Quit()
	}
	return ok
}
