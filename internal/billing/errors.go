package billing

import "errors"

var (
	// ErrUnauthenticated means a paid action was attempted without a user.
	ErrUnauthenticated = errors.New("sign in required")
	// ErrInsufficientBalance means the chosen balance cannot cover the cost.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrForbidden means the user's plan lacks a capability.
	ErrForbidden = errors.New("not included in your plan")
	// ErrInvalidCurrency is returned for an unknown balance name.
	ErrInvalidCurrency = errors.New("unknown currency")
	// ErrMissingPrice is returned for a checkout without a price.
	ErrMissingPrice = errors.New("price is required")
	// ErrCheckoutFailed wraps the payment provider's checkout error.
	ErrCheckoutFailed = errors.New("checkout failed")
	// ErrMissingField rejects provider documents without their keys.
	ErrMissingField = errors.New("missing field")
	// ErrCheckoutTimeout means the provider did not produce a checkout URL in time.
	ErrCheckoutTimeout = errors.New("checkout timed out")
)
