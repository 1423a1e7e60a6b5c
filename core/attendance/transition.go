package attendance

import (
	"time"

	"github.com/trezcool/darasa/core/school"
)

// transitions is the lifecycle graph. under_review -> draft is the only
// backward edge in normal flow (coordinator kick-back).
var transitions = map[Status][]Status{
	StatusNotMarked:   {StatusDraft},
	StatusDraft:       {StatusSubmitted},
	StatusSubmitted:   {StatusUnderReview},
	StatusUnderReview: {StatusFinal, StatusDraft},
	StatusFinal:       {},
}

// TransitionEngine owns the record lifecycle: it validates every requested
// transition against role and timing rules and appends the audit entry on
// success.
type TransitionEngine struct {
	gracePeriod time.Duration
}

func NewTransitionEngine(editGracePeriod time.Duration) *TransitionEngine {
	return &TransitionEngine{gracePeriod: editGracePeriod}
}

func (eng *TransitionEngine) edgeAllowed(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InWindow reports whether date is normally editable at the given moment:
// today, or yesterday while the configured grace period still runs.
func (eng *TransitionEngine) InWindow(date, at time.Time) bool {
	day := DateOf(date)
	today := DateOf(at)
	if day.Equal(today) {
		return true
	}
	if day.Equal(today.AddDate(0, 0, -1)) {
		// yesterday stays editable until its end-of-day plus the grace period
		return at.Before(day.AddDate(0, 0, 1).Add(eng.gracePeriod))
	}
	return false
}

// Apply validates the requested transition and, on success, mutates the
// record's status and appends one edit-history entry. viaBackfill skips the
// editable-window check; the caller is responsible for having verified an
// active grant first.
func (eng *TransitionEngine) Apply(
	rec *Record,
	to Status,
	actor Actor,
	room school.Classroom,
	enrolled []school.Student,
	at time.Time,
	reason string,
	viaBackfill bool,
) error {
	from := rec.Status
	if from == "" {
		from = StatusNotMarked
	}

	if !to.Valid() || !eng.edgeAllowed(from, to) {
		return newTransitionDenied(from, to, "no such transition")
	}

	day := DateOf(rec.Date)
	if day.After(DateOf(at)) {
		return newTransitionDenied(from, to, "date is in the future")
	}

	switch to {
	case StatusDraft:
		if from == StatusNotMarked {
			// teacher opens the day for the first time
			if !eng.isAssignedTeacher(actor, room) {
				return newTransitionDenied(from, to, "only the assigned teacher may start marking")
			}
			if !viaBackfill && !eng.InWindow(rec.Date, at) {
				return newTransitionDenied(from, to, "outside the editable window")
			}
		} else {
			// under_review -> draft: coordinator kicks the record back.
			// Marks are preserved as a starting point for correction.
			if !eng.hasReviewAuthority(actor, room) {
				return newTransitionDenied(from, to, "only a coordinator may send a record back")
			}
		}

	case StatusSubmitted:
		if !eng.isAssignedTeacher(actor, room) {
			return newTransitionDenied(from, to, "only the assigned teacher may submit")
		}
		if !viaBackfill && !eng.InWindow(rec.Date, at) {
			return newTransitionDenied(from, to, "outside the editable window")
		}
		// no partial submission: every enrolled student needs a mark
		for _, std := range enrolled {
			if _, ok := rec.Marks[std.ID]; !ok {
				return newTransitionDenied(from, to, "every enrolled student must be marked before submission")
			}
		}

	case StatusUnderReview, StatusFinal:
		if !eng.hasReviewAuthority(actor, room) {
			return newTransitionDenied(from, to, "coordinator authority required")
		}
	}

	now := at.UTC()
	rec.Status = to
	rec.UpdatedAt = now
	rec.appendHistory(newHistoryEntry(actor.ID, actionFor(from, to, viaBackfill), now, reason))
	return nil
}

func (eng *TransitionEngine) isAssignedTeacher(actor Actor, room school.Classroom) bool {
	return actor.IsTeacher() && (room.TeacherID == actor.ID || actor.ManagesClassroom(room.ID))
}

func (eng *TransitionEngine) hasReviewAuthority(actor Actor, room school.Classroom) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.IsCoordinator() && actor.HasLevelAuthority(room.Level)
}

func actionFor(from, to Status, viaBackfill bool) HistoryAction {
	if viaBackfill {
		return ActionBackfill
	}
	switch {
	case from == StatusNotMarked && to == StatusDraft:
		return ActionCreate
	case to == StatusSubmitted:
		return ActionSubmit
	case to == StatusUnderReview:
		return ActionReview
	case to == StatusFinal:
		return ActionApprove
	case from == StatusUnderReview && to == StatusDraft:
		return ActionReject
	default:
		return ActionSave
	}
}
