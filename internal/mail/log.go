package mail

import (
	"context"
	"log/slog"

	"github.com/sakif/contacts-api/internal/metrics"
)

// LogMailer renders the message and logs that it would have been sent.
// Template variables are left out of the log since they carry tokens.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	subject, _, err := Render(msg)
	if err != nil {
		return err
	}

	metrics.MailSent.WithLabelValues("log", "ok").Inc()
	m.logger.InfoContext(ctx, "mail not delivered (log transport)",
		slog.String("template", msg.Template),
		slog.String("to", msg.To),
		slog.String("subject", subject),
	)
	return nil
}
