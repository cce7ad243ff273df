package mcp

import "github.com/okian/pepai/pkg/logger"

// Option configures a Server.
type Option func(*Server)

// WithGenerator enables generate_drill.
func WithGenerator(g Generator) Option {
	return func(s *Server) { s.gen = g }
}

// WithShares lets decode_share_link resolve id links.
func WithShares(sh Shares) Option {
	return func(s *Server) { s.shares = sh }
}

// WithMaxPromptLength bounds generate_drill prompts.
func WithMaxPromptLength(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxPromptLength = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.logger = l }
}
