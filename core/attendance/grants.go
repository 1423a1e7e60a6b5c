package attendance

import (
	"time"

	"github.com/trezcool/darasa/core/school"
)

type (
	// GrantRepository persists backfill grants. Grants are never deleted:
	// expired or superseded ones stay around for audit.
	GrantRepository interface {
		CreateGrant(grant Grant) (Grant, error)
		GetGrantByID(id int) (Grant, error)
		QueryAllGrants() ([]Grant, error)
		QueryGrantsByGrantee(granteeID int) ([]Grant, error)
		QueryGrantsByIssuer(issuerID int) ([]Grant, error)
		// QueryGrantsForRecord returns all grants (active or expired) for the
		// exact (classroom, date, grantee) triple.
		QueryGrantsForRecord(classroomID int, date time.Time, granteeID int) ([]Grant, error)
	}

	// Registry manages the time-boxed exceptions that reopen a closed day.
	Registry struct {
		repo GrantRepository
	}
)

func NewRegistry(repo GrantRepository) *Registry {
	return &Registry{repo: repo}
}

// Grant issues a new backfill authorization. The attendance record itself is
// not touched; it may not even exist yet.
func (reg *Registry) Grant(ng NewGrant, actor Actor, room school.Classroom, at time.Time) (Grant, error) {
	if ng.Reason == "" {
		return Grant{}, &InvalidGrantError{Reason: "a reason is required"}
	}
	if !ng.Deadline.After(at) {
		return Grant{}, &InvalidGrantError{Reason: "deadline must be in the future"}
	}
	if DateOf(ng.Date).After(DateOf(at)) {
		return Grant{}, &InvalidGrantError{Reason: "cannot grant a backfill for a future date"}
	}
	if !actor.IsAdmin() && !(actor.IsCoordinator() && actor.HasLevelAuthority(room.Level)) {
		return Grant{}, &InvalidGrantError{Reason: "no authority over this classroom's level"}
	}

	grant := Grant{
		ClassroomID: ng.ClassroomID,
		Date:        DateOf(ng.Date),
		GranteeID:   ng.GranteeID,
		Reason:      ng.Reason,
		Deadline:    ng.Deadline.UTC(),
		GrantedBy:   actor.ID,
		CreatedAt:   at.UTC(),
	}
	return reg.repo.CreateGrant(grant)
}

// IsAuthorized reports whether a non-expired grant exists for the exact
// (classroom, date, actor) triple at the given moment. Pure query: expiry is
// computed, never transitioned, so checking mutates nothing.
func (reg *Registry) IsAuthorized(classroomID int, date time.Time, actorID int, at time.Time) (bool, error) {
	grant, _, err := reg.Evaluate(classroomID, date, actorID, at)
	if err != nil {
		return false, err
	}
	return grant != nil, nil
}

// Evaluate returns the active grant for the triple if one exists, and
// whether any lapsed grant was found instead. The distinction feeds the
// "closed" vs "expired grant" denial messages.
func (reg *Registry) Evaluate(classroomID int, date time.Time, actorID int, at time.Time) (active *Grant, expired bool, err error) {
	grants, err := reg.repo.QueryGrantsForRecord(classroomID, DateOf(date), actorID)
	if err != nil {
		return nil, false, err
	}
	for i := range grants {
		g := grants[i]
		if !g.Covers(classroomID, date, actorID) {
			continue
		}
		if g.Expired(at) {
			expired = true
			continue
		}
		return &g, false, nil
	}
	return nil, expired, nil
}

// ListFor returns grants scoped to the actor: issuers see what they granted,
// grantees see what they were granted, admins see everything. This is an
// access-scoping rule; write enforcement lives in the resolver.
func (reg *Registry) ListFor(actor Actor) ([]Grant, error) {
	switch {
	case actor.IsAdmin():
		return reg.repo.QueryAllGrants()
	case actor.IsCoordinator():
		return reg.repo.QueryGrantsByIssuer(actor.ID)
	default:
		return reg.repo.QueryGrantsByGrantee(actor.ID)
	}
}
