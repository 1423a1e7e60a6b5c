package attendance

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
)

type (
	// RecordRepository is the store collaborator for attendance records.
	RecordRepository interface {
		// GetRecord returns ErrRecordNotFound when the day was never marked;
		// callers treat that as the valid not_marked state.
		GetRecord(classroomID int, date time.Time) (Record, error)
		// UpsertRecord persists rec only if the stored status still equals
		// expectedPriorStatus (StatusNotMarked meaning "no row yet");
		// otherwise it returns ErrConcurrentModification. Status and marks
		// are written together so readers never see a half-applied record.
		UpsertRecord(rec Record, expectedPriorStatus Status) (Record, error)
		ListRecordsForDate(date time.Time) ([]Record, error)
	}

	Service interface {
		GetRecord(classroomID int, date time.Time) (Record, error)
		Editability(actor Actor, classroomID int, date time.Time) (Decision, error)
		SaveMarks(actor Actor, classroomID int, date time.Time, sm SaveMarks) (Record, error)
		Submit(actor Actor, classroomID int, date time.Time) (Record, error)
		StartReview(actor Actor, classroomID int, date time.Time) (Record, error)
		Approve(actor Actor, classroomID int, date time.Time) (Record, error)
		Reject(actor Actor, classroomID int, date time.Time, reason string) (Record, error)
		IssueGrant(actor Actor, ng NewGrant) (Grant, error)
		ListGrants(actor Actor) ([]Grant, error)
		TodayMetrics() (RealtimeMetrics, error)
		Metrics(date time.Time) (RealtimeMetrics, error)
		Aggregator() *Aggregator
	}

	service struct {
		recordRepo RecordRepository
		schoolSvc  school.Service
		usrSvc     user.Service
		mailSvc    core.EmailService

		engine     *TransitionEngine
		registry   *Registry
		resolver   *Resolver
		aggregator *Aggregator
	}
)

var _ Service = (*service)(nil)

func NewService(
	recordRepo RecordRepository,
	grantRepo GrantRepository,
	schoolSvc school.Service,
	usrSvc user.Service,
	mailSvc core.EmailService,
	conf core.AttendanceConfig,
) Service {
	engine := NewTransitionEngine(conf.EditGracePeriod)
	registry := NewRegistry(grantRepo)
	return &service{
		recordRepo: recordRepo,
		schoolSvc:  schoolSvc,
		usrSvc:     usrSvc,
		mailSvc:    mailSvc,
		engine:     engine,
		registry:   registry,
		resolver:   NewResolver(engine, registry),
		aggregator: NewAggregator(recordRepo, schoolSvc),
	}
}

func (svc *service) Aggregator() *Aggregator {
	return svc.aggregator
}

func (svc *service) GetRecord(classroomID int, date time.Time) (Record, error) {
	return svc.recordRepo.GetRecord(classroomID, DateOf(date))
}

// getRecordOrNil maps ErrRecordNotFound to the virtual not_marked state.
func (svc *service) getRecordOrNil(classroomID int, date time.Time) (*Record, error) {
	rec, err := svc.recordRepo.GetRecord(classroomID, DateOf(date))
	if err != nil {
		if errors.Cause(err) == ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (svc *service) Editability(actor Actor, classroomID int, date time.Time) (Decision, error) {
	room, err := svc.schoolSvc.GetClassroom(classroomID)
	if err != nil {
		return Decision{}, err
	}
	rec, err := svc.getRecordOrNil(classroomID, date)
	if err != nil {
		return Decision{}, err
	}
	return svc.resolver.CanWrite(rec, actor, room, date, nowFunc())
}

// SaveMarks writes per-student marks for (classroom, date), creating the
// record as a draft on first save. Backfill-authorized writes leave the
// status untouched and are flagged in the history.
func (svc *service) SaveMarks(actor Actor, classroomID int, date time.Time, sm SaveMarks) (Record, error) {
	room, err := svc.schoolSvc.GetClassroom(classroomID)
	if err != nil {
		return Record{}, err
	}
	enrolled, err := svc.schoolSvc.EnrolledStudents(classroomID)
	if err != nil {
		return Record{}, err
	}
	enrolledIDs := make(map[int]bool, len(enrolled))
	for _, std := range enrolled {
		enrolledIDs[std.ID] = true
	}
	for studentID := range sm.Marks {
		if !enrolledIDs[studentID] {
			return Record{}, core.NewValidationError(nil, core.FieldError{
				Field: "marks",
				Error: fmt.Sprintf("student %d is not enrolled in this classroom", studentID),
			})
		}
	}

	return svc.withConflictRetry(func() (Record, error) {
		now := nowFunc()
		rec, err := svc.getRecordOrNil(classroomID, date)
		if err != nil {
			return Record{}, err
		}

		decision, err := svc.resolver.CanWrite(rec, actor, room, date, now)
		if err != nil {
			return Record{}, err
		}
		if !decision.Allowed {
			return Record{}, &EditDeniedError{Decision: decision}
		}

		prior := StatusNotMarked
		if rec != nil {
			prior = rec.Status
		}

		if rec == nil {
			newRec := Record{
				ClassroomID: classroomID,
				Date:        DateOf(date),
				Marks:       make(map[int]StudentMark, len(sm.Marks)),
				CreatedAt:   now.UTC(),
			}
			if err = svc.engine.Apply(
				&newRec, StatusDraft, actor, room, enrolled, now, "", decision.Backfill,
			); err != nil {
				return Record{}, err
			}
			rec = &newRec
		} else {
			// in-place save: marks change, status does not
			action := ActionSave
			if decision.Backfill {
				action = ActionBackfill
			}
			rec.UpdatedAt = now.UTC()
			rec.appendHistory(newHistoryEntry(actor.ID, action, now, ""))
		}

		for studentID, m := range sm.Marks {
			rec.Marks[studentID] = m
		}
		rec.MarkedBy = actor.ID
		rec.MarkedAt = now.UTC()

		return svc.recordRepo.UpsertRecord(*rec, prior)
	})
}

func (svc *service) Submit(actor Actor, classroomID int, date time.Time) (Record, error) {
	return svc.transition(actor, classroomID, date, StatusSubmitted, "")
}

func (svc *service) StartReview(actor Actor, classroomID int, date time.Time) (Record, error) {
	return svc.transition(actor, classroomID, date, StatusUnderReview, "")
}

func (svc *service) Approve(actor Actor, classroomID int, date time.Time) (Record, error) {
	return svc.transition(actor, classroomID, date, StatusFinal, "")
}

// Reject sends an under-review record back to draft for correction; marks
// are preserved as the teacher's starting point.
func (svc *service) Reject(actor Actor, classroomID int, date time.Time, reason string) (Record, error) {
	return svc.transition(actor, classroomID, date, StatusDraft, reason)
}

func (svc *service) transition(actor Actor, classroomID int, date time.Time, to Status, reason string) (Record, error) {
	room, err := svc.schoolSvc.GetClassroom(classroomID)
	if err != nil {
		return Record{}, err
	}
	enrolled, err := svc.schoolSvc.EnrolledStudents(classroomID)
	if err != nil {
		return Record{}, err
	}

	return svc.withConflictRetry(func() (Record, error) {
		now := nowFunc()
		rec, err := svc.recordRepo.GetRecord(classroomID, DateOf(date))
		if err != nil {
			return Record{}, err
		}
		prior := rec.Status

		// a teacher submitting an out-of-window day needs an active grant
		var viaBackfill bool
		if to == StatusSubmitted && !svc.engine.InWindow(rec.Date, now) {
			authorized, err := svc.registry.IsAuthorized(classroomID, rec.Date, actor.ID, now)
			if err != nil {
				return Record{}, err
			}
			if !authorized {
				return Record{}, &EditDeniedError{Decision: denied(DenialClosed)}
			}
			viaBackfill = true
		}

		if err = svc.engine.Apply(&rec, to, actor, room, enrolled, now, reason, viaBackfill); err != nil {
			return Record{}, err
		}
		return svc.recordRepo.UpsertRecord(rec, prior)
	})
}

// withConflictRetry re-runs fn exactly once when the conditional write hits
// a stale expected status, then surfaces the conflict.
func (svc *service) withConflictRetry(fn func() (Record, error)) (Record, error) {
	rec, err := fn()
	if errors.Cause(err) == ErrConcurrentModification {
		rec, err = fn()
	}
	return rec, err
}

func (svc *service) IssueGrant(actor Actor, ng NewGrant) (Grant, error) {
	room, err := svc.schoolSvc.GetClassroom(ng.ClassroomID)
	if err != nil {
		return Grant{}, err
	}
	grant, err := svc.registry.Grant(ng, actor, room, nowFunc())
	if err != nil {
		return Grant{}, err
	}
	svc.sendGrantIssuedMail(grant)
	return grant, nil
}

func (svc *service) ListGrants(actor Actor) ([]Grant, error) {
	return svc.registry.ListFor(actor)
}

func (svc *service) TodayMetrics() (RealtimeMetrics, error) {
	return svc.aggregator.Aggregate(nowFunc())
}

func (svc *service) Metrics(date time.Time) (RealtimeMetrics, error) {
	return svc.aggregator.Aggregate(date)
}

// sendGrantIssuedMail notifies the grantee that a backfill window is open.
// Best effort: a failed lookup only skips the notification.
func (svc *service) sendGrantIssuedMail(grant Grant) {
	grantee, err := svc.usrSvc.GetByID(grant.GranteeID)
	if err != nil || grantee.Email == "" {
		return
	}
	body := fmt.Sprintf(
		"A backfill authorization was issued to you for classroom %d on %s.\n\n"+
			"Reason: %s\nYou may edit the attendance record until %s.",
		grant.ClassroomID,
		grant.Date.Format("2006-01-02"),
		grant.Reason,
		grant.Deadline.Format(time.RFC1123),
	)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: grantee.Name, Address: grantee.Email}},
		Subject: "Backfill authorization granted",
		BodyStr: body,
	})
}
