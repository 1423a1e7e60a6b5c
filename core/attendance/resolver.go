package attendance

import (
	"time"

	"github.com/trezcool/darasa/core/school"
)

// Resolver is the single decision point for attendance writes. It composes
// the transition engine's formal state rules with the grant registry's
// exceptions; only requests it allows may reach the store.
type Resolver struct {
	engine   *TransitionEngine
	registry *Registry
}

func NewResolver(engine *TransitionEngine, registry *Registry) *Resolver {
	return &Resolver{engine: engine, registry: registry}
}

// CanWrite decides whether the actor may currently write the record for
// (classroom, date). rec is nil when the day was never marked (not_marked).
// Denials carry one of the discriminated reasons, each with its own
// user-facing message.
func (res *Resolver) CanWrite(rec *Record, actor Actor, room school.Classroom, date, at time.Time) (Decision, error) {
	day := DateOf(date)
	if day.After(DateOf(at)) {
		return denied(DenialFutureDate), nil
	}

	status := StatusNotMarked
	if rec != nil {
		status = rec.Status
	}

	assigned := actor.IsTeacher() && (room.TeacherID == actor.ID || actor.ManagesClassroom(room.ID))

	// ordinary edit: open record, assigned teacher, inside the window
	if status == StatusNotMarked || status == StatusDraft {
		if assigned && res.engine.InWindow(day, at) {
			return allowed(), nil
		}
	}

	// locked records, out-of-window days and unassigned actors all fall
	// through to the grant check
	grant, lapsed, err := res.registry.Evaluate(room.ID, day, actor.ID, at)
	if err != nil {
		return Decision{}, err
	}
	if grant != nil {
		return allowedBackfill(), nil
	}
	if lapsed {
		return denied(DenialExpiredGrant), nil
	}
	if !assigned && !status.Locked() {
		return denied(DenialNotAssigned), nil
	}
	return denied(DenialClosed), nil
}
