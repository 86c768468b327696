package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/internal/phone"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Twilio REST API root.
const DefaultBaseURL = "https://api.twilio.com"

// Sample values shipped in example env files. They are never real
// credentials.
var placeholders = map[string]bool{
	"AC6f94c4c8c4c4c4c4c4c4c4c4c4c4c4c4": true,
	"your_auth_token_here":               true,
	"your_account_sid_here":              true,
}

// Config holds Twilio credentials, read from the environment.
type Config struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	From       string `env:"TWILIO_PHONE_NUMBER"`
	BaseURL    string `env:"TWILIO_API_BASE" envDefault:"https://api.twilio.com"`
}

// ConfigFromEnv reads the TWILIO_* variables.
func ConfigFromEnv() (Config, error) {
	return env.ParseAs[Config]()
}

// Configured reports whether real credentials are present.
func (c Config) Configured() bool {
	for _, v := range []string{c.AccountSID, c.AuthToken, c.From} {
		if v == "" || placeholders[v] {
			return false
		}
	}
	return true
}

// APIError is an error response from Twilio.
type APIError struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("twilio: %s (code %d, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("twilio: %s (status %d)", e.Message, e.Status)
}

// TwilioSender sends messages through the Twilio Messages API.
type TwilioSender struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

// TwilioOption configures a TwilioSender.
type TwilioOption func(*TwilioSender)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) TwilioOption {
	return func(s *TwilioSender) {
		s.client = c
	}
}

// WithRateLimit caps outgoing messages per second.
func WithRateLimit(perSecond float64, burst int) TwilioOption {
	return func(s *TwilioSender) {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithSenderLogger sets the logger.
func WithSenderLogger(l *log.Logger) TwilioOption {
	return func(s *TwilioSender) {
		s.logger = l
	}
}

// NewTwilioSender creates a sender. A long-code number sends about one
// message per second, which is the default limit.
func NewTwilioSender(cfg Config, opts ...TwilioOption) *TwilioSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	s := &TwilioSender{
		config:  cfg,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(1), 5),
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithPrefix("twilio")
	return s
}

// Configured implements Sender.
func (s *TwilioSender) Configured() bool {
	return s.config.Configured()
}

// Send implements Sender.
func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	form := url.Values{}
	form.Set("From", s.config.From)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(s.config.BaseURL, "/"), url.PathEscape(s.config.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(s.config.AccountSID, s.config.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	var result struct {
		SID string `json:"sid"`
	}
	_ = json.Unmarshal(data, &result)
	s.logger.Info("SMS sent", "to", phone.Mask(to), "sid", result.SID)
	return nil
}
