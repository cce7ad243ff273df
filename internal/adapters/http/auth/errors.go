package auth

import "errors"

var (
	ErrInvalidToken = errors.New("invalid id token")
	ErrMissingKeyID = errors.New("token has no key id")
	ErrUnknownKey   = errors.New("unknown signing key")
	ErrNoKeys       = errors.New("no signing keys loaded")
)
