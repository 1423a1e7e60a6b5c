package attendance

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound means no record exists yet for a (classroom, date)
	// pair. For reads this is the valid not_marked state, not a failure.
	ErrRecordNotFound = errors.New("attendance record not found")

	// ErrConcurrentModification means a conditional write found the stored
	// status different from the expected prior status.
	ErrConcurrentModification = errors.New("attendance record was modified concurrently")

	ErrGrantNotFound = errors.New("backfill grant not found")
)

// TransitionDeniedError reports a lifecycle transition rejected for role,
// state or timing reasons. Denials are surfaced, never silently dropped.
type TransitionDeniedError struct {
	From   Status
	To     Status
	Reason string
}

func (e *TransitionDeniedError) Error() string {
	return fmt.Sprintf("transition %s -> %s denied: %s", e.From, e.To, e.Reason)
}

func newTransitionDenied(from, to Status, reason string) error {
	return &TransitionDeniedError{From: from, To: to, Reason: reason}
}

// IsTransitionDenied reports whether err is a TransitionDeniedError.
func IsTransitionDenied(err error) bool {
	var tde *TransitionDeniedError
	return errors.As(err, &tde)
}

// InvalidGrantError reports rejected backfill grant parameters.
type InvalidGrantError struct {
	Reason string
}

func (e *InvalidGrantError) Error() string {
	return "invalid grant: " + e.Reason
}

// IsInvalidGrant reports whether err is an InvalidGrantError.
func IsInvalidGrant(err error) bool {
	var ige *InvalidGrantError
	return errors.As(err, &ige)
}

// EditDeniedError reports a write rejected by the editability resolver.
type EditDeniedError struct {
	Decision Decision
}

func (e *EditDeniedError) Error() string {
	return e.Decision.Message
}

// IsEditDenied returns the denial decision when err is an EditDeniedError.
func IsEditDenied(err error) (Decision, bool) {
	var ede *EditDeniedError
	if errors.As(err, &ede) {
		return ede.Decision, true
	}
	return Decision{}, false
}

// DenialReason discriminates why a write is not currently permitted. Each
// value maps to its own user-facing message so teachers know whether to
// wait, request a grant, or that their grant already lapsed.
type DenialReason string

const (
	DenialNone         DenialReason = ""
	DenialFutureDate   DenialReason = "future_date"
	DenialNotAssigned  DenialReason = "not_assigned"
	DenialClosed       DenialReason = "closed"
	DenialExpiredGrant DenialReason = "expired_grant"
)

var denialMessages = map[DenialReason]string{
	DenialFutureDate:   "this date is not open for marking yet",
	DenialNotAssigned:  "you are not assigned to this classroom",
	DenialClosed:       "this record is closed; ask a coordinator for a backfill grant",
	DenialExpiredGrant: "your backfill grant has expired",
}

// Message is the human-readable denial text.
func (r DenialReason) Message() string {
	return denialMessages[r]
}

// Decision is the outcome of an editability check.
type Decision struct {
	Allowed bool         `json:"allowed"`
	// Backfill is set when the write is only permitted by an active grant;
	// such writes must be recorded with a distinct backfill history action.
	Backfill bool         `json:"backfill,omitempty"`
	Reason   DenialReason `json:"reason,omitempty"`
	Message  string       `json:"message,omitempty"`
}

func allowed() Decision {
	return Decision{Allowed: true}
}

func allowedBackfill() Decision {
	return Decision{Allowed: true, Backfill: true}
}

func denied(reason DenialReason) Decision {
	return Decision{Reason: reason, Message: reason.Message()}
}
