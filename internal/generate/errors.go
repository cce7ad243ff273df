package generate

import (
	"errors"
	"regexp"
	"strings"
)

// HighDemandMessage is shown to coaches when every attempt hit an overloaded provider.
const HighDemandMessage = "Pep is currently overwhelmed with tactical requests (High Demand). Please try again in a moment."

var (
	// ErrHighDemand is returned once MaxAttempts overwhelmed responses were seen.
	ErrHighDemand = errors.New(HighDemandMessage)
	// ErrOverloaded marks a single provider response as retryable. Model
	// implementations wrap it around 503 / UNAVAILABLE failures.
	ErrOverloaded = errors.New("model overloaded")
	// ErrNotConfigured means no model credentials are available.
	ErrNotConfigured = errors.New("generation model is not configured")
	// ErrEmptyPrompt rejects blank prompts and instructions.
	ErrEmptyPrompt = errors.New("missing or empty prompt")
	// ErrPromptTooLong rejects prompts over the configured limit.
	ErrPromptTooLong = errors.New("prompt too long")
)

var (
	overloadMarkers = []string{"high demand", "overloaded", "unavailable"}
	// 503 as a status code, not as part of an id or port.
	overloadStatus  = regexp.MustCompile(`\b503\b`)
)

// IsOverloaded reports whether err means the provider is temporarily overwhelmed.
func IsOverloaded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOverloaded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if overloadStatus.MatchString(msg) {
		return true
	}
	for _, m := range overloadMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
