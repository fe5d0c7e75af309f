// Package chat talks to an HTTP messaging gateway that owns the chat session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/httpx"
	"marketpulse/internal/provider"
)

const requestTimeout = 10 * time.Second

var recipientPattern = regexp.MustCompile(`^[0-9]{10,15}@c\.us$`)

// ErrInvalidRecipient is returned for ids not shaped like 6281234567890@c.us.
var ErrInvalidRecipient = errors.New("invalid recipient")

// ValidRecipient reports whether to is a phone-number chat id.
func ValidRecipient(to string) bool {
	return recipientPattern.MatchString(to)
}

// Bridge is a Messenger backed by the gateway's /status and /send endpoints.
type Bridge struct {
	baseURL    string
	httpClient httpx.Doer
	logger     zerolog.Logger
}

type Option func(*Bridge)

func WithHTTPClient(c httpx.Doer) Option { return func(b *Bridge) { b.httpClient = c } }

func WithLogger(l zerolog.Logger) Option {
	return func(b *Bridge) { b.logger = l.With().Str("component", "chat").Logger() }
}

func NewBridge(baseURL string, options ...Option) *Bridge {
	b := &Bridge{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     zerolog.Nop(),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

type statusResponse struct {
	Connected bool `json:"connected"`
}

// Connected asks the gateway whether its session is ready. Any failure
// counts as not connected.
func (b *Bridge) Connected(ctx context.Context) bool {
	var st statusResponse
	if err := provider.GetJSON(ctx, b.httpClient, provider.Request{
		Provider: "chat",
		URL:      b.baseURL + "/status",
		Timeout:  requestTimeout,
	}, &st); err != nil {
		b.logger.Debug().Err(err).Msg("gateway status check failed")
		return false
	}
	return st.Connected
}

// Send posts text to recipient to.
func (b *Bridge) Send(ctx context.Context, to, text string) error {
	if !ValidRecipient(to) {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, to)
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("recipient", to)
	form.Set("message", text)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/send", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return fmt.Errorf("gateway returned %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	b.logger.Info().Str("to", to).Int("bytes", len(text)).Msg("message sent")
	return nil
}
