// Package insight asks a language model for a short commentary on a strategy's history.
package insight

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"citadel/internal/config"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("insight: openai api_key is not configured")

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Insight is one generated commentary.
type Insight struct {
	Strategy    string    `json:"strategy"`
	Model       string    `json:"model"`
	Markdown    string    `json:"markdown"`
	HTML        string    `json:"html"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Client generates commentaries and keeps the latest one per strategy.
type Client struct {
	cfg      config.OpenAIConfig
	interval time.Duration
	logger   *zap.Logger
	sdk      chatCompleter
	markdown goldmark.Markdown
	now      func() time.Time

	mu     sync.RWMutex
	latest map[string]Insight
}

// NewClient creates a Client. interval is the minimum age of a commentary before Refresh replaces it.
func NewClient(cfg config.OpenAIConfig, interval time.Duration, logger *zap.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout + 5*time.Second}

	return newClient(cfg, interval, openai.NewClientWithConfig(sdkConfig), logger), nil
}

func newClient(cfg config.OpenAIConfig, interval time.Duration, sdk chatCompleter, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:      cfg,
		interval: interval,
		logger:   logger,
		sdk:      sdk,
		markdown: goldmark.New(),
		now:      time.Now,
		latest:   make(map[string]Insight),
	}
}

// Latest returns the most recent commentary of strategy.
func (c *Client) Latest(strategy string) (Insight, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	in, ok := c.latest[strategy]
	return in, ok
}

// Refresh generates a new commentary when the stored one is older than the interval. It reports
// whether a new commentary was stored.
func (c *Client) Refresh(ctx context.Context, in Input) (bool, error) {
	if prev, ok := c.Latest(in.Strategy); ok && c.now().Sub(prev.GeneratedAt) < c.interval {
		return false, nil
	}
	if in.Summary.Count == 0 {
		return false, nil
	}

	insight, err := c.Generate(ctx, in)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.latest[in.Strategy] = insight
	c.mu.Unlock()
	return true, nil
}

// Generate asks the model for a commentary on in.
func (c *Client) Generate(ctx context.Context, in Input) (Insight, error) {
	prompt, err := BuildPrompt(in)
	if err != nil {
		return Insight{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	response, err := c.sdk.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.2,
	})
	if err != nil {
		c.logger.Warn("openai request failed", zap.String("strategy", in.Strategy), zap.Error(err))
		return Insight{}, fmt.Errorf("insight: chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return Insight{}, errors.New("insight: empty response")
	}

	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return Insight{}, errors.New("insight: empty commentary")
	}

	html, err := c.render(content)
	if err != nil {
		return Insight{}, err
	}

	c.logger.Info("generated commentary",
		zap.String("strategy", in.Strategy),
		zap.Int("chars", len(content)),
	)

	return Insight{
		Strategy:    in.Strategy,
		Model:       c.cfg.Model,
		Markdown:    content,
		HTML:        html,
		GeneratedAt: c.now().UTC(),
	}, nil
}

// render converts Markdown to HTML. Raw HTML in the source is dropped by goldmark's default
// renderer.
func (c *Client) render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := c.markdown.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("insight: render markdown: %w", err)
	}
	return buf.String(), nil
}
