package giveaway

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures.
type Kind string

// Failure kinds returned by engine operations.
const (
	KindNotFound               Kind = "not_found"
	KindAlreadyEnded           Kind = "already_ended"
	KindAlreadyCancelled       Kind = "already_cancelled"
	KindAlreadyEntered         Kind = "already_entered"
	KindNotEligible            Kind = "not_eligible"
	KindInvalidDuration        Kind = "invalid_duration"
	KindInvalidWinnerCount     Kind = "invalid_winner_count"
	KindNotYetEnded            Kind = "not_yet_ended"
	KindNoEligibleParticipants Kind = "no_eligible_participants"
	KindStoreUnavailable       Kind = "store_unavailable"
	KindInvalidInput           Kind = "invalid_input"
	KindRateLimited            Kind = "rate_limited"
)

// Error is the typed failure of an engine operation. Reason carries
// participant-facing detail (the failed requirement for NotEligible);
// Err keeps the underlying cause for logs only.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrAlreadyEnded           = &Error{Kind: KindAlreadyEnded}
	ErrAlreadyCancelled       = &Error{Kind: KindAlreadyCancelled}
	ErrAlreadyEntered         = &Error{Kind: KindAlreadyEntered}
	ErrNotEligible            = &Error{Kind: KindNotEligible}
	ErrInvalidDuration        = &Error{Kind: KindInvalidDuration}
	ErrInvalidWinnerCount     = &Error{Kind: KindInvalidWinnerCount}
	ErrNotYetEnded            = &Error{Kind: KindNotYetEnded}
	ErrNoEligibleParticipants = &Error{Kind: KindNoEligibleParticipants}
	ErrStoreUnavailable       = &Error{Kind: KindStoreUnavailable}
	ErrInvalidInput           = &Error{Kind: KindInvalidInput}
	ErrRateLimited            = &Error{Kind: KindRateLimited}
)

// errNotDue aborts an unforced end transaction when the end time has moved.
var errNotDue = errors.New("giveaway end time not reached")

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func invalidInput(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidInput, Reason: fmt.Sprintf(format, args...)}
}

func unavailable(err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Err: err}
}

// KindOf returns the kind of an engine error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the participant-facing reason attached to err, if any.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// UserMessage renders err for the participant. Store failures and foreign
// errors never expose their cause.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong. Please try again later."
	}

	switch e.Kind {
	case KindNotFound:
		if e.Reason != "" {
			return e.Reason
		}
		return "Giveaway not found."
	case KindAlreadyEnded:
		return "This giveaway has already ended."
	case KindAlreadyCancelled:
		return "This giveaway has been cancelled."
	case KindAlreadyEntered:
		return "You have already entered this giveaway."
	case KindNotEligible:
		if e.Reason != "" {
			return "You are not eligible: " + e.Reason
		}
		return "You are not eligible for this giveaway."
	case KindInvalidDuration:
		if e.Reason != "" {
			return "Invalid duration: " + e.Reason
		}
		return "Invalid duration."
	case KindInvalidWinnerCount:
		if e.Reason != "" {
			return "Invalid winner count: " + e.Reason
		}
		return "Invalid winner count."
	case KindNotYetEnded:
		return "This giveaway has not ended yet."
	case KindNoEligibleParticipants:
		return "There are no eligible participants left to draw."
	case KindStoreUnavailable:
		return "The giveaway service is temporarily unavailable. Please try again."
	case KindInvalidInput:
		if e.Reason != "" {
			return "Invalid request: " + e.Reason
		}
		return "Invalid request."
	case KindRateLimited:
		return "You are doing that too often. Please wait a moment."
	default:
		return "Something went wrong. Please try again later."
	}
}
