package email

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

type SendGrid struct {
	apiKey string
	from   *mail.Email
	host   string
	client *rest.Client
}

type SendGridOption func(*SendGrid)

// WithSendGridHost points the transport at another API host.
func WithSendGridHost(host string) SendGridOption {
	return func(s *SendGrid) {
		s.host = host
	}
}

func WithSendGridHTTPClient(c *http.Client) SendGridOption {
	return func(s *SendGrid) {
		s.client = &rest.Client{HTTPClient: c}
	}
}

func NewSendGrid(apiKey, fromEmail, fromName string, opts ...SendGridOption) *SendGrid {
	s := &SendGrid{
		apiKey: apiKey,
		from:   mail.NewEmail(fromName, fromEmail),
		host:   sendGridHost,
		client: &rest.Client{HTTPClient: &http.Client{Timeout: sendTimeout}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SendGrid) Configured() bool {
	return s.apiKey != ""
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if !s.Configured() {
		return fmt.Errorf("sendgrid: %w", ErrNotConfigured)
	}

	m := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail("", msg.To), "", msg.HTMLBody)
	m.AddCategories("cart-recovery")
	if msg.DispatchID != "" && len(m.Personalizations) > 0 {
		m.Personalizations[0].SetCustomArg("dispatch_id", msg.DispatchID)
	}

	request := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	request.Method = rest.Post
	request.Body = mail.GetRequestBody(m)

	resp, err := s.client.SendWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid API error: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
