package repository

import "errors"

// Sentinel errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrInvalidCurrency   = errors.New("invalid currency")
)
