package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNotConfigured is returned by transports that are missing credentials.
var ErrNotConfigured = errors.New("email transport not configured")

// sendTimeout bounds a single provider call.
const sendTimeout = 15 * time.Second

// Message is one outgoing HTML email. DispatchID is forwarded to the
// provider as message metadata so a delivery can be traced back to the
// dispatch ledger.
type Message struct {
	To         string
	Subject    string
	HTMLBody   string
	DispatchID string
}

// Mailer delivers a message or reports why it could not.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Provider names accepted by New.
const (
	ProviderPostmark = "postmark"
	ProviderSendGrid = "sendgrid"
	ProviderLog      = "log"
)

// Settings selects and configures a transport.
type Settings struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

// New builds the transport named by s.Provider.
func New(s Settings, logger *slog.Logger) (Mailer, error) {
	switch s.Provider {
	case ProviderPostmark:
		return NewPostmark(s.APIKey, s.From), nil
	case ProviderSendGrid:
		return NewSendGrid(s.APIKey, s.From, s.FromName), nil
	case ProviderLog, "":
		return NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", s.Provider)
	}
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email not sent (log transport)",
		"to", msg.To,
		"subject", msg.Subject,
		"dispatch_id", msg.DispatchID,
		"bytes", len(msg.HTMLBody),
	)
	return nil
}
