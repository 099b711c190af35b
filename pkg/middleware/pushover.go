package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/common"
)

const pushoverEndpoint = "https://api.pushover.net/1/messages.json"

type PushoverOption func(*Pushover)

func WithPushoverEndpoint(endpoint string) PushoverOption {
	return func(p *Pushover) {
		p.endpoint = endpoint
	}
}

func WithPushoverLogger(logger *zap.Logger) PushoverOption {
	return func(p *Pushover) {
		p.logger = logger
	}
}

// Pushover sends a notification for every fill.
type Pushover struct {
	logger   *zap.Logger
	client   *http.Client
	endpoint string
	user     string
	token    string
	device   string
}

func NewPushover(user, token, device string, options ...PushoverOption) *Pushover {
	p := &Pushover{
		logger:   zap.NewNop(),
		client:   &http.Client{Timeout: 5 * time.Second},
		endpoint: pushoverEndpoint,
		user:     user,
		token:    token,
		device:   device,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// WithExecution notifies in the background and never delays handler.
func (p *Pushover) WithExecution(ctx context.Context, handler func(common.Execution)) func(common.Execution) {
	return func(execution common.Execution) {
		go func() {
			msg := fmt.Sprintf("%s %s %s @ %s\ncommission = %s",
				execution.Action, execution.Quantity, execution.Ticker,
				execution.Price.Round(2), execution.Commission.Round(2))
			if err := p.Send(ctx, "Order Filled", msg); err != nil {
				p.logger.Warn("unable to send notification", zap.String("exec_id", execution.ExecId), zap.Error(err))
			}
		}()
		handler(execution)
	}
}

func (p *Pushover) Send(ctx context.Context, title, message string) error {
	data := url.Values{}
	data.Set("token", p.token)
	data.Set("user", p.user)
	data.Set("device", p.device)
	data.Set("title", title)
	data.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover post failed: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pushover error: %s", body)
	}
	return nil
}
