// Package gemini adapts Google's genai SDK to the generation and voice ports.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"google.golang.org/genai"

	"github.com/okian/pepai/internal/generate"
	"github.com/okian/pepai/pkg/logger"
)

// Client wraps a genai client for one API key.
type Client struct {
	client      *genai.Client
	streamModel string
	oneShot     string
	liveModel   string
	voiceName   string
	logger      logger.Logger
}

// New creates a Client. An empty key is generate.ErrNotConfigured.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, generate.ErrNotConfigured
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c := &Client{
		client:      gc,
		streamModel: DefaultStreamModel,
		oneShot:     DefaultOneShotModel,
		liveModel:   DefaultLiveModel,
		voiceName:   DefaultVoice,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Named("gemini")
	}
	return c, nil
}

// Default model names.
const (
	DefaultStreamModel  = "gemini-3-flash-preview"
	DefaultOneShotModel = "gemini-2.5-flash"
	DefaultLiveModel    = "gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultVoice        = "Zephyr"
)

func (c *Client) config(p generate.Prompt) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if p.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}
	if p.Structured {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = DrillSchema()
	}
	return cfg
}

// Stream implements generate.Model.
func (c *Client) Stream(ctx context.Context, p generate.Prompt) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.streamModel, genai.Text(p.User), c.config(p)) {
			if err != nil {
				yield("", classify(err))
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}
}

// Complete implements generate.Model.
func (c *Client) Complete(ctx context.Context, p generate.Prompt) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.oneShot, genai.Text(p.User), c.config(p))
	if err != nil {
		return "", classify(err)
	}
	return resp.Text(), nil
}

// classify marks provider overload so the requester retries it.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusServiceUnavailable || apiErr.Status == "UNAVAILABLE" {
			return fmt.Errorf("%w: %v", generate.ErrOverloaded, err)
		}
		return err
	}
	if generate.IsOverloaded(err) {
		return fmt.Errorf("%w: %v", generate.ErrOverloaded, err)
	}
	return err
}
