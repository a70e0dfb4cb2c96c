package house

import (
	"errors"
	"fmt"

	"liquidityHouse/internal/model"
	"liquidityHouse/internal/state"
)

var (
	ErrStakeAccountNotFound = errors.New("house: stake account not found")
	ErrAlreadyUnbonding     = errors.New("house: already unbonding")
	ErrNotYetUnbonding      = errors.New("house: account is unbonding, withdraw first")
	ErrStillUnbonding       = errors.New("house: unbonding interval not elapsed")
	ErrNotUnstaked          = errors.New("house: not unstaked")
	ErrInsufficientAmount   = errors.New("house: insufficient amount")
	ErrAmountTooLarge       = errors.New("house: amount too large")
	ErrInsufficientFunds    = errors.New("house: insufficient funds")
	ErrRateLimited          = errors.New("house: rate limited")
	ErrAccountSuspended     = errors.New("house: account suspended")
	ErrClientSuspended      = errors.New("house: client suspended")
	ErrClientNotFound       = errors.New("house: client not found")
	ErrNotAuthorized        = errors.New("house: not authorized")
	ErrInvalidAddress       = errors.New("house: invalid address")
	ErrAlreadyInitialized   = errors.New("house: already initialized")
	ErrInvariantViolation   = errors.New("house: invariant violation")

	// ErrStateNotApplied means transfers executed but the state write failed.
	ErrStateNotApplied = errors.New("house: transfers executed, state not applied")

	ErrInvalidConfig  = model.ErrInvalidConfig
	ErrNotInitialized = state.ErrNotInitialized
)

// IsRetryable reports whether the same request may succeed later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStillUnbonding) ||
		errors.Is(err, ErrRateLimited)
}

// IsFatal reports corruption that valid input can never cause, or a store
// failure that left executed transfers without matching state.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvariantViolation) || errors.Is(err, ErrStateNotApplied)
}

func invariant(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}
