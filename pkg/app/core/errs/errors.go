// Package errs defines the error kinds shared by all venue components.
// Every public operation either succeeds or fails with one of these kinds
// and leaves no partial state behind. Callers match with errors.Is.
package errs

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrOrderNotOpen          = errors.New("order not open")
	ErrAlreadyVoted          = errors.New("already voted")
	ErrProposalNotActive     = errors.New("proposal not active")
	ErrVotingStillOpen       = errors.New("voting still open")
	ErrSharesMismatch        = errors.New("shares mismatch")
	ErrActionExecutionFailed = errors.New("action execution failed")
)
