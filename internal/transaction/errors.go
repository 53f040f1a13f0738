package transaction

import (
	"errors"
	"fmt"
)

// Error kinds. Every error the engine rejects a request with wraps exactly one of these.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrConflict         = errors.New("conflict")
	ErrUnauthorized     = errors.New("unauthorized")
)

var (
	ErrProductNotFound = fmt.Errorf("%w: product not found", ErrNotFound)
	ErrBuyNotFound     = fmt.Errorf("%w: buy transaction not found", ErrNotFound)
	ErrRentNotFound    = fmt.Errorf("%w: rent transaction not found", ErrNotFound)

	ErrInvalidPeriod = fmt.Errorf("%w: start date must be before end date", ErrInvalidInput)

	ErrNotForSale = fmt.Errorf("%w: product is not available for purchase", ErrInvalidState)
	ErrNotForRent = fmt.Errorf("%w: product is not available for rent", ErrInvalidState)

	ErrOwnProductBuy  = fmt.Errorf("%w: you cannot buy your own product", ErrInvalidOperation)
	ErrOwnProductRent = fmt.Errorf("%w: you cannot rent your own product", ErrInvalidOperation)

	ErrAlreadyRented = fmt.Errorf("%w: product is already rented during the requested period", ErrConflict)

	ErrNotParty        = fmt.Errorf("%w: caller is not a party to this transaction", ErrUnauthorized)
	ErrNotProductOwner = fmt.Errorf("%w: caller does not own this product", ErrUnauthorized)
)

// ErrorKind names an error kind for transport-level mapping.
type ErrorKind string

const (
	KindUnknown          ErrorKind = "INTERNAL"
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindInvalidInput     ErrorKind = "INVALID_INPUT"
	KindInvalidState     ErrorKind = "INVALID_STATE"
	KindInvalidOperation ErrorKind = "INVALID_OPERATION"
	KindConflict         ErrorKind = "CONFLICT"
	KindUnauthorized     ErrorKind = "AUTHORIZATION"
)

// KindOf returns the kind err wraps, or KindUnknown for infrastructure failures.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrInvalidOperation):
		return KindInvalidOperation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	}
	return KindUnknown
}

func invalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
