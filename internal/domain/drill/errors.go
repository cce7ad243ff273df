package drill

import "errors"

// Sentinel errors for the normalizer.
var (
	// ErrMalformedResponse means the text could not be turned into a drill.
	// It is never worth retrying the same text.
	ErrMalformedResponse = errors.New("malformed drill response")

	// ErrEmptyResponse means the model returned no text at all.
	ErrEmptyResponse = errors.New("empty drill response")
)
