package drafts

import "errors"

var (
	// ErrNotFound means the user has no draft.
	ErrNotFound = errors.New("draft not found")
	// ErrNoUser is returned for an empty user id.
	ErrNoUser = errors.New("draft owner required")
	// ErrKeyWithoutPassphrase refuses to open an encrypted directory in clear mode.
	ErrKeyWithoutPassphrase = errors.New("drafts master key exists but no passphrase is configured")
)
