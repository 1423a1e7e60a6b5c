package attendance

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

var nowFunc = time.Now // mockable

// Status is the lifecycle state of a classroom's daily attendance record.
type Status string

const (
	// StatusNotMarked is the implicit state of a (classroom, date) pair with
	// no stored record yet. It is never persisted.
	StatusNotMarked   Status = "not_marked"
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusFinal       Status = "final"
)

var statusColors = map[Status]string{
	StatusNotMarked:   "gray",
	StatusDraft:       "yellow",
	StatusSubmitted:   "blue",
	StatusUnderReview: "orange",
	StatusFinal:       "green",
}

// Valid returns true when the status is a supported value.
func (s Status) Valid() bool {
	switch s {
	case StatusNotMarked, StatusDraft, StatusSubmitted, StatusUnderReview, StatusFinal:
		return true
	default:
		return false
	}
}

// Locked reports whether the status closes the record against ordinary teacher edits.
func (s Status) Locked() bool {
	switch s {
	case StatusSubmitted, StatusUnderReview, StatusFinal:
		return true
	default:
		return false
	}
}

// Color is the presentation hint dashboards key off; it is derived, never stored.
func (s Status) Color() string {
	return statusColors[s]
}

// Mark is a single student's attendance state for the day.
type Mark string

const (
	MarkPresent Mark = "present"
	MarkAbsent  Mark = "absent"
	MarkLate    Mark = "late"
	MarkLeave   Mark = "leave"
	MarkExcused Mark = "excused"
)

// Valid returns true when the mark is a supported value.
func (m Mark) Valid() bool {
	switch m {
	case MarkPresent, MarkAbsent, MarkLate, MarkLeave, MarkExcused:
		return true
	default:
		return false
	}
}

// StudentMark is one student's mark with an optional free-text remark.
type StudentMark struct {
	Mark   Mark   `json:"mark"`
	Remark string `json:"remark,omitempty"`
}

// HistoryAction discriminates edit-history entries.
type HistoryAction string

const (
	ActionCreate   HistoryAction = "create"
	ActionSave     HistoryAction = "save"
	ActionSubmit   HistoryAction = "submit"
	ActionReview   HistoryAction = "review"
	ActionApprove  HistoryAction = "approve"
	ActionReject   HistoryAction = "reject"
	// ActionBackfill marks writes made under a backfill grant; a final record
	// that was backfilled stays visibly distinguishable from one that never was.
	ActionBackfill HistoryAction = "backfill"
)

// HistoryEntry is one append-only audit entry on a record.
type HistoryEntry struct {
	ID        string        `json:"id"`
	ActorID   int           `json:"actor_id"`
	Action    HistoryAction `json:"action"`
	Timestamp time.Time     `json:"timestamp"` // UTC
	Reason    string        `json:"reason,omitempty"`
}

func newHistoryEntry(actorID int, action HistoryAction, at time.Time, reason string) HistoryEntry {
	return HistoryEntry{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Action:    action,
		Timestamp: at.UTC(),
		Reason:    reason,
	}
}

// Counts are the aggregate numbers derived from per-student marks.
// They are always computed live, never stored independently.
type Counts struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Leave   int `json:"leave"`
	Excused int `json:"excused"`
	Total   int `json:"total"`
}

// Record is the authoritative daily attendance state for one classroom.
// Identity is the (ClassroomID, Date) composite key.
type Record struct {
	ClassroomID int                 `json:"classroom_id"`
	Date        time.Time           `json:"date"` // normalized to midnight UTC
	Status      Status              `json:"status"`
	Marks       map[int]StudentMark `json:"marks"` // student ID -> mark
	MarkedBy    int                 `json:"marked_by"`
	MarkedAt    time.Time           `json:"marked_at"`  // UTC
	CreatedAt   time.Time           `json:"created_at"` // UTC
	UpdatedAt   time.Time           `json:"updated_at"` // UTC
	History     []HistoryEntry      `json:"history"`    // append-only
}

// Counts sums the per-student marks. Present/Absent/Late/Leave/Excused
// always add up to Total.
func (r *Record) Counts() Counts {
	var c Counts
	for _, sm := range r.Marks {
		switch sm.Mark {
		case MarkPresent:
			c.Present++
		case MarkAbsent:
			c.Absent++
		case MarkLate:
			c.Late++
		case MarkLeave:
			c.Leave++
		case MarkExcused:
			c.Excused++
		}
	}
	c.Total = len(r.Marks)
	return c
}

// appendHistory grows the audit trail; prior entries are never touched.
func (r *Record) appendHistory(entry HistoryEntry) {
	r.History = append(r.History, entry)
}

// Grant is a time-boxed authorization for one teacher to backfill one
// (classroom, date) pair. It references the record by composite key: the
// record may not exist yet when the grant is created.
type Grant struct {
	ID          int       `json:"id"`
	ClassroomID int       `json:"classroom_id"`
	Date        time.Time `json:"date"` // the attendance date being reopened
	GranteeID   int       `json:"grantee_id"`
	Reason      string    `json:"reason"`
	Deadline    time.Time `json:"deadline"`   // UTC
	GrantedBy   int       `json:"granted_by"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// Expired is computed at read time against the server clock; it is never
// persisted as a boolean that can go stale.
func (g *Grant) Expired(at time.Time) bool {
	return at.After(g.Deadline)
}

// Covers reports whether the grant authorizes the given actor on the given
// (classroom, date) pair. A grant never cascades to other dates or classrooms.
func (g *Grant) Covers(classroomID int, date time.Time, actorID int) bool {
	return g.ClassroomID == classroomID && g.GranteeID == actorID && g.Date.Equal(DateOf(date))
}

// Actor is the capability object passed into every engine call: who is
// acting and what they are allowed to touch. It is built by the caller from
// authenticated claims plus the roster, never from ambient session state.
type Actor struct {
	ID                int
	Roles             []string
	ManagedClassrooms []int    // classroom IDs the actor teaches
	Levels            []string // levels the actor coordinates
}

func (a *Actor) roleStartsWith(prefix string) bool {
	for _, role := range a.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (a *Actor) IsAdmin() bool       { return a.roleStartsWith(user.RoleAdmin) }
func (a *Actor) IsCoordinator() bool { return a.roleStartsWith(user.RoleCoordinator) }
func (a *Actor) IsTeacher() bool     { return a.roleStartsWith(user.RoleTeacher) }

func (a *Actor) ManagesClassroom(classroomID int) bool {
	for _, id := range a.ManagedClassrooms {
		if id == classroomID {
			return true
		}
	}
	return false
}

func (a *Actor) HasLevelAuthority(level string) bool {
	for _, lvl := range a.Levels {
		if lvl == level {
			return true
		}
	}
	return false
}

// DateOf normalizes a timestamp to its attendance date (midnight UTC).
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SaveMarks contains the per-student marks of a save request.
type SaveMarks struct {
	Marks map[int]StudentMark `json:"marks" validate:"required,min=1"`
}

func (sm *SaveMarks) Validate(validate *validator.Validate) error {
	if err := validate.Struct(sm); err != nil {
		return err
	}
	for studentID, m := range sm.Marks {
		if !m.Mark.Valid() {
			return core.NewValidationError(nil, core.FieldError{
				Field: "marks",
				Error: "invalid mark for student " + strconv.Itoa(studentID),
			})
		}
	}
	return nil
}

// NewGrant contains information needed to issue a backfill grant.
type NewGrant struct {
	ClassroomID int       `json:"classroom_id" validate:"required"`
	Date        time.Time `json:"date" validate:"required"`
	GranteeID   int       `json:"grantee_id" validate:"required"`
	Reason      string    `json:"reason" validate:"required"`
	Deadline    time.Time `json:"deadline" validate:"required"`
}

func (ng *NewGrant) Validate(validate *validator.Validate) error {
	ng.Reason = core.CleanString(ng.Reason)
	return validate.Struct(ng)
}
