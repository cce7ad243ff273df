package share

import "errors"

var (
	// ErrInvalidLink means the payload could not be decompressed or decoded.
	ErrInvalidLink = errors.New("invalid share link")
	// ErrEmptyLink means the link carried no session data.
	ErrEmptyLink = errors.New("no session data in link")
)
