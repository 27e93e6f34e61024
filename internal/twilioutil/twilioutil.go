// Package twilioutil wraps the Twilio SDK pieces BizFinder needs: TwiML reply
// rendering for the SMS webhook, webhook signature validation, and an
// outbound REST sender for operator notifications.
package twilioutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// RenderMessageTwiML renders one outbound SMS body as a TwiML messaging
// response, the envelope Twilio expects back from an SMS webhook.
func RenderMessageTwiML(body string) (string, error) {
	doc, err := twiml.Messages([]twiml.Element{
		&twiml.MessagingMessage{Body: body},
	})
	if err != nil {
		return "", fmt.Errorf("failed to render TwiML response: %w", err)
	}
	return doc, nil
}

// Validator checks Twilio webhook signatures. A zero-configured validator
// (no auth token) accepts everything, for local development.
type Validator struct {
	validator *twilioclient.RequestValidator
}

// NewValidator creates a webhook signature validator. An empty authToken
// disables validation.
func NewValidator(authToken string) *Validator {
	if authToken == "" {
		slog.Warn("twilioutil.NewValidator: no auth token configured, webhook signature validation disabled")
		return &Validator{}
	}
	v := twilioclient.NewRequestValidator(authToken)
	return &Validator{validator: &v}
}

// Enabled reports whether signature validation is active.
func (v *Validator) Enabled() bool { return v.validator != nil }

// ValidateRequest checks the X-Twilio-Signature header of a parsed
// form-encoded webhook request against the request URL and parameters.
func (v *Validator) ValidateRequest(r *http.Request, publicURL string) bool {
	if v.validator == nil {
		return true
	}
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	reqURL := publicURL
	if reqURL == "" {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		reqURL = (&url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path}).String()
	}
	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return v.validator.Validate(reqURL, params, signature)
}

// Opts holds configuration options for the outbound SMS sender.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
}

// Option defines a configuration option for the outbound SMS sender.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFrom sets the sending phone number.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// Sender delivers SMS messages outside the webhook request/response cycle
// (operator notifications, out-of-band follow-ups). The conversational reply
// path uses TwiML and does not need it.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Client implements Sender over the Twilio REST API.
type Client struct {
	client *twilio.RestClient
	from   string
}

// NewClient creates an outbound SMS sender. Credentials fall back to the
// TWILIO_ACCOUNT_SID / TWILIO_AUTH_TOKEN / TWILIO_FROM_NUMBER environment
// variables if not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("twilioutil.NewClient: config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &Client{client: client, from: cfg.From}, nil
}

// SendMessage sends an SMS via the Twilio REST API.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("twilioutil.Client.SendMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	slog.Debug("twilioutil.Client.SendMessage: message sent", "to", to)
	return nil
}

// MockSender records sent messages for tests.
type MockSender struct {
	SentMessages []SentMessage
}

// SentMessage is one message captured by MockSender.
type SentMessage struct {
	To   string
	Body string
}

// NewMockSender creates an empty MockSender.
func NewMockSender() *MockSender {
	return &MockSender{SentMessages: []SentMessage{}}
}

// SendMessage records the message instead of sending it.
func (m *MockSender) SendMessage(ctx context.Context, to string, body string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}
