package ai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer is the single operation the chat flow needs from a model backend.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// GatewayError wraps every failure of a completion call. Error returns the
// provider's message unchanged so it can be shown to the user.
type GatewayError struct {
	Attempts int
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return "model gateway error"
	}
	return e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

var errEmptyChoices = errors.New("model returned no choices")

type Gateway struct {
	client *openai.Client
	cfg    Config
	log    logrus.FieldLogger
}

func NewGateway(cfg Config, log logrus.FieldLogger) *Gateway {
	if cfg.Model == "" {
		cfg.Model = openai.GPT3Dot5Turbo
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Gateway{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		log:    log,
	}
}

func (g *Gateway) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    g.cfg.Model,
		Messages: toOpenAIMessages(messages),
	}

	var lastErr error
	attempts := 0
	for attempts <= g.cfg.MaxRetries {
		if attempts > 0 {
			if err := sleepContext(ctx, g.cfg.RetryBackoff); err != nil {
				return "", &GatewayError{Attempts: attempts, Err: lastErr}
			}
		}
		attempts++

		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			if !retryable(err) || ctx.Err() != nil {
				break
			}
			g.log.WithError(err).WithField("attempt", attempts).Warn("chat completion failed, retrying")
			continue
		}
		if len(resp.Choices) == 0 {
			return "", &GatewayError{Attempts: attempts, Err: errEmptyChoices}
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}
	return "", &GatewayError{Attempts: attempts, Err: lastErr}
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// retryable reports transient failures: transport errors and HTTP 5xx.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
