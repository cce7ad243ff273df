package api

import (
	"github.com/okian/pepai/internal/adapters/http/auth"
	"github.com/okian/pepai/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithDevMode returns underlying error messages to clients.
func WithDevMode(on bool) Option {
	return func(s *Server) { s.devMode = on }
}

// WithMaxPromptLength caps prompts in characters.
func WithMaxPromptLength(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxPromptLength = n
		}
	}
}

// WithPublicURL is the origin share links are built on.
func WithPublicURL(u string) Option {
	return func(s *Server) { s.publicURL = u }
}

// WithWebhookSecret protects the /internal/billing routes. Empty disables
// them.
func WithWebhookSecret(secret string) Option {
	return func(s *Server) { s.webhookSecret = secret }
}

// WithAuth verifies bearer tokens with v. A nil v runs every request as
// mockUID, or anonymously if mockUID is empty.
func WithAuth(v *auth.Verifier, mockUID string) Option {
	return func(s *Server) {
		s.verifier = v
		s.mockUID = mockUID
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
