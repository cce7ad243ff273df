package gemini

import "github.com/okian/pepai/pkg/logger"

// Option configures a Client.
type Option func(*Client)

// WithStreamModel sets the model for streamed generation and refinement.
func WithStreamModel(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.streamModel = name
		}
	}
}

// WithOneShotModel sets the model for the one-shot drills endpoint.
func WithOneShotModel(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.oneShot = name
		}
	}
}

// WithLiveModel sets the real-time voice model.
func WithLiveModel(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.liveModel = name
		}
	}
}

// WithVoice sets the prebuilt voice the assistant speaks with.
func WithVoice(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.voiceName = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}
