package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/pepai/internal/adapters/drafts"
	"github.com/okian/pepai/internal/adapters/repository"
	"github.com/okian/pepai/internal/billing"
	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/generate"
	"github.com/okian/pepai/internal/share"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("too many pending saves, try again shortly")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("service unavailable")

	errNoDrills  = errors.New("no drills")
	errNoID      = errors.New("missing id")
	errNoSession = errors.New("missing session")
)

// Redirect targets attached to billing failures.
const (
	LoginRedirect   = "/login"
	PricingRedirect = "/pricing"
)

// Error tags an underlying error with the operation that failed and the
// kind that decides its status code.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Op + ": " + e.Kind.Error()
	case e.Kind == nil:
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap tags err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapKind tags err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// NewKind is an error of kind with no further cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// statusFor maps an error to its status code and, for billing failures, the
// page the client should send the user to.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, billing.ErrUnauthenticated), errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, LoginRedirect
	case errors.Is(err, billing.ErrInsufficientBalance):
		return http.StatusPaymentRequired, PricingRedirect
	case errors.Is(err, billing.ErrForbidden):
		return http.StatusForbidden, PricingRedirect
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, generate.ErrEmptyPrompt),
		errors.Is(err, generate.ErrPromptTooLong),
		errors.Is(err, share.ErrInvalidLink),
		errors.Is(err, share.ErrEmptyLink),
		errors.Is(err, billing.ErrInvalidCurrency),
		errors.Is(err, billing.ErrMissingPrice),
		errors.Is(err, billing.ErrMissingField):
		return http.StatusBadRequest, ""
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, drafts.ErrNotFound):
		return http.StatusNotFound, ""
	case errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, ""
	case errors.Is(err, generate.ErrNotConfigured), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, ""
	case errors.Is(err, generate.ErrHighDemand),
		errors.Is(err, drill.ErrMalformedResponse),
		errors.Is(err, drill.ErrEmptyResponse),
		errors.Is(err, billing.ErrCheckoutFailed):
		return http.StatusBadGateway, ""
	case errors.Is(err, billing.ErrCheckoutTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ""
	}
	return http.StatusInternalServerError, ""
}

// publicMessage is what a client sees for err. Outside dev mode only
// messages written for coaches are passed through.
func publicMessage(err error, status int, dev bool) string {
	if dev {
		return err.Error()
	}
	for _, known := range []error{
		generate.ErrHighDemand,
		generate.ErrEmptyPrompt,
		generate.ErrPromptTooLong,
		generate.ErrNotConfigured,
		billing.ErrUnauthenticated,
		billing.ErrInsufficientBalance,
		billing.ErrForbidden,
		billing.ErrMissingPrice,
		billing.ErrInvalidCurrency,
		share.ErrInvalidLink,
		share.ErrEmptyLink,
		ErrBackpressure,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	switch status {
	case http.StatusBadRequest:
		return "The request could not be understood."
	case http.StatusNotFound:
		return "Not found."
	case http.StatusBadGateway:
		return "Pep could not put that drill together. Please try again."
	case http.StatusGatewayTimeout:
		return "That took too long. Please try again."
	}
	return "Something went wrong. Your work has not been lost; please try again."
}
