package mail

import (
	"context"
	"log/slog"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

// LogMailer renders jobs and logs them instead of sending. It is used when no
// broker is configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer returns a mailer writing to logger.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Enqueue implements application.Mailer.
func (m *LogMailer) Enqueue(ctx context.Context, job application.OutboundEmail) error {
	msg, err := Render(job)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "email not sent, no broker configured",
		"component", "mail",
		"to", msg.To,
		"subject", msg.Subject,
		"template", job.Template,
		"body", msg.Body,
	)
	return nil
}
