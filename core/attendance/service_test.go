package attendance

import (
	"testing"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
)

type serviceFixture struct {
	svc        Service
	recordRepo *fakeRecordRepo
	grantRepo  *fakeGrantRepo
	schoolSvc  *fakeSchoolSvc
	mailSvc    *fakeMailSvc
}

func newServiceFixture(t *testing.T, recordRepo RecordRepository) *serviceFixture {
	t.Helper()
	mockNow(t, testNow)

	schoolSvc := newFakeSchoolSvc(
		school.Classroom{ID: 1, Name: "P1 A", Level: "P1", TeacherID: 7},
	)
	schoolSvc.enroll(1, 100, 101)

	fix := &serviceFixture{
		grantRepo: &fakeGrantRepo{},
		schoolSvc: schoolSvc,
		mailSvc:   &fakeMailSvc{},
	}
	if fake, ok := recordRepo.(*fakeRecordRepo); ok {
		fix.recordRepo = fake
	}

	usrSvc := newFakeUserSvc(user.User{
		ID: 7, Name: "Teacher Awe", Username: "awe", Email: "awe@test.cd",
		Roles: []string{user.RoleTeacher},
	})

	fix.svc = NewService(recordRepo, fix.grantRepo, schoolSvc, usrSvc, fix.mailSvc, core.AttendanceConfig{
		EditGracePeriod:     24 * time.Hour,
		MetricsPollInterval: 30 * time.Second,
	})
	return fix
}

func TestService_SaveMarks(t *testing.T) {
	fix := newServiceFixture(t, newFakeRecordRepo())
	teacher := teacherActor(7, 1)

	// first save creates the draft
	rec, err := fix.svc.SaveMarks(teacher, 1, today, SaveMarks{Marks: marksFor(MarkPresent, 100)})
	if err != nil {
		t.Fatalf("SaveMarks() unexpected error = %v", err)
	}
	if rec.Status != StatusDraft {
		t.Errorf("status = %s, want %s", rec.Status, StatusDraft)
	}
	if rec.MarkedBy != 7 {
		t.Errorf("MarkedBy = %d, want 7", rec.MarkedBy)
	}
	if len(rec.History) != 1 || rec.History[0].Action != ActionCreate {
		t.Errorf("history = %+v, want a single create entry", rec.History)
	}

	// a later save merges marks and appends to the history
	rec, err = fix.svc.SaveMarks(teacher, 1, today, SaveMarks{Marks: marksFor(MarkLate, 101)})
	if err != nil {
		t.Fatalf("SaveMarks() unexpected error = %v", err)
	}
	if rec.Status != StatusDraft {
		t.Errorf("status = %s, want %s", rec.Status, StatusDraft)
	}
	if got := rec.Marks[100].Mark; got != MarkPresent {
		t.Errorf("mark for 100 = %s, want %s", got, MarkPresent)
	}
	if got := rec.Marks[101].Mark; got != MarkLate {
		t.Errorf("mark for 101 = %s, want %s", got, MarkLate)
	}
	if len(rec.History) != 2 || rec.History[1].Action != ActionSave {
		t.Errorf("history = %+v, want create then save", rec.History)
	}

	counts := rec.Counts()
	if counts.Present != 1 || counts.Late != 1 || counts.Total != 2 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestService_SaveMarks_denials(t *testing.T) {
	tests := []struct {
		name       string
		actor      Actor
		date       time.Time
		marks      map[int]StudentMark
		wantReason DenialReason
		wantVldErr bool
	}{
		{
			name:       "future date",
			actor:      teacherActor(7, 1),
			date:       tomorrow,
			marks:      marksFor(MarkPresent, 100),
			wantReason: DenialFutureDate,
		},
		{
			name:       "unassigned teacher",
			actor:      teacherActor(8, 2),
			date:       today,
			marks:      marksFor(MarkPresent, 100),
			wantReason: DenialNotAssigned,
		},
		{
			name:       "closed day",
			actor:      teacherActor(7, 1),
			date:       lastWeek,
			marks:      marksFor(MarkPresent, 100),
			wantReason: DenialClosed,
		},
		{
			name:       "student not enrolled",
			actor:      teacherActor(7, 1),
			date:       today,
			marks:      marksFor(MarkPresent, 999),
			wantVldErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fix := newServiceFixture(t, newFakeRecordRepo())
			_, err := fix.svc.SaveMarks(tt.actor, 1, tt.date, SaveMarks{Marks: tt.marks})
			if tt.wantVldErr {
				if _, ok := err.(*core.ValidationError); !ok {
					t.Fatalf("SaveMarks() error = %v, want a ValidationError", err)
				}
				return
			}
			decision, ok := IsEditDenied(err)
			if !ok {
				t.Fatalf("SaveMarks() error = %v, want an EditDeniedError", err)
			}
			if decision.Reason != tt.wantReason {
				t.Errorf("denial reason = %q, want %q", decision.Reason, tt.wantReason)
			}
		})
	}
}

func TestService_lifecycle(t *testing.T) {
	fix := newServiceFixture(t, newFakeRecordRepo())
	teacher := teacherActor(7, 1)
	coordinator := coordinatorActor(9, "P1")

	if _, err := fix.svc.SaveMarks(teacher, 1, today, SaveMarks{Marks: marksFor(MarkPresent, 100, 101)}); err != nil {
		t.Fatalf("SaveMarks() failed, %v", err)
	}

	rec, err := fix.svc.Submit(teacher, 1, today)
	if err != nil {
		t.Fatalf("Submit() failed, %v", err)
	}
	if rec.Status != StatusSubmitted {
		t.Fatalf("status = %s, want %s", rec.Status, StatusSubmitted)
	}

	// the submitted record is closed to further teacher edits
	_, err = fix.svc.SaveMarks(teacher, 1, today, SaveMarks{Marks: marksFor(MarkAbsent, 100)})
	if decision, ok := IsEditDenied(err); !ok || decision.Reason != DenialClosed {
		t.Fatalf("SaveMarks() after submission: error = %v, want closed denial", err)
	}

	if rec, err = fix.svc.StartReview(coordinator, 1, today); err != nil {
		t.Fatalf("StartReview() failed, %v", err)
	}
	if rec.Status != StatusUnderReview {
		t.Fatalf("status = %s, want %s", rec.Status, StatusUnderReview)
	}

	// kick back for correction, then re-submit and approve
	if rec, err = fix.svc.Reject(coordinator, 1, today, "recount absences"); err != nil {
		t.Fatalf("Reject() failed, %v", err)
	}
	if rec.Status != StatusDraft {
		t.Fatalf("status = %s, want %s", rec.Status, StatusDraft)
	}
	if got := rec.Marks[100].Mark; got != MarkPresent {
		t.Errorf("marks not preserved through rejection: %s", got)
	}

	if _, err = fix.svc.Submit(teacher, 1, today); err != nil {
		t.Fatalf("re-Submit() failed, %v", err)
	}
	if _, err = fix.svc.StartReview(coordinator, 1, today); err != nil {
		t.Fatalf("re-StartReview() failed, %v", err)
	}
	if rec, err = fix.svc.Approve(coordinator, 1, today); err != nil {
		t.Fatalf("Approve() failed, %v", err)
	}
	if rec.Status != StatusFinal {
		t.Fatalf("status = %s, want %s", rec.Status, StatusFinal)
	}

	// final is terminal
	if _, err = fix.svc.Submit(teacher, 1, today); !IsTransitionDenied(err) {
		t.Errorf("Submit() on final record: error = %v, want a denial", err)
	}

	actions := make([]HistoryAction, 0, len(rec.History))
	for _, entry := range rec.History {
		actions = append(actions, entry.Action)
	}
	want := []HistoryAction{
		ActionCreate, ActionSubmit, ActionReview, ActionReject, ActionSubmit, ActionReview, ActionApprove,
	}
	if len(actions) != len(want) {
		t.Fatalf("history actions = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("history actions = %v, want %v", actions, want)
		}
	}
}

func TestService_backfill(t *testing.T) {
	fix := newServiceFixture(t, newFakeRecordRepo())
	teacher := teacherActor(7, 1)
	admin := adminActor(2)

	// without a grant the old day is closed
	_, err := fix.svc.SaveMarks(teacher, 1, lastWeek, SaveMarks{Marks: marksFor(MarkPresent, 100, 101)})
	if decision, ok := IsEditDenied(err); !ok || decision.Reason != DenialClosed {
		t.Fatalf("SaveMarks() error = %v, want closed denial", err)
	}

	grant, err := fix.svc.IssueGrant(admin, NewGrant{
		ClassroomID: 1, Date: lastWeek, GranteeID: 7,
		Reason: "teacher was sick", Deadline: testNow.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("IssueGrant() failed, %v", err)
	}

	// the grantee is notified
	if len(fix.mailSvc.sent) != 1 {
		t.Fatalf("expected 1 notification email; got %d", len(fix.mailSvc.sent))
	}
	if to := fix.mailSvc.sent[0].To[0].Address; to != "awe@test.cd" {
		t.Errorf("notification sent to %s", to)
	}

	// marks flow in under the grant and are flagged as backfill
	rec, err := fix.svc.SaveMarks(teacher, 1, lastWeek, SaveMarks{Marks: marksFor(MarkPresent, 100, 101)})
	if err != nil {
		t.Fatalf("SaveMarks() under grant failed, %v", err)
	}
	if rec.History[0].Action != ActionBackfill {
		t.Errorf("history action = %s, want %s", rec.History[0].Action, ActionBackfill)
	}

	// the grant also covers the out-of-window submission
	if rec, err = fix.svc.Submit(teacher, 1, lastWeek); err != nil {
		t.Fatalf("Submit() under grant failed, %v", err)
	}
	if rec.Status != StatusSubmitted {
		t.Errorf("status = %s, want %s", rec.Status, StatusSubmitted)
	}

	// editability reflects the lapsed grant once the deadline passes
	nowFunc = func() time.Time { return grant.Deadline.Add(time.Minute) }
	decision, err := fix.svc.Editability(teacher, 1, lastWeek)
	if err != nil {
		t.Fatalf("Editability() failed, %v", err)
	}
	if decision.Allowed || decision.Reason != DenialExpiredGrant {
		t.Errorf("decision = %+v, want expired_grant denial", decision)
	}
}

// A grant on an already-final record reopens it for marks without reverting
// the status: approval is not undone, and every write is audited as backfill.
func TestService_backfillKeepsFinalStatus(t *testing.T) {
	fix := newServiceFixture(t, newFakeRecordRepo())
	teacher := teacherActor(7, 1)
	coordinator := coordinatorActor(9, "P1")
	admin := adminActor(2)

	// drive yesterday's record all the way to final
	if _, err := fix.svc.SaveMarks(teacher, 1, yesterday, SaveMarks{Marks: marksFor(MarkPresent, 100, 101)}); err != nil {
		t.Fatalf("SaveMarks() failed, %v", err)
	}
	if _, err := fix.svc.Submit(teacher, 1, yesterday); err != nil {
		t.Fatalf("Submit() failed, %v", err)
	}
	if _, err := fix.svc.StartReview(coordinator, 1, yesterday); err != nil {
		t.Fatalf("StartReview() failed, %v", err)
	}
	rec, err := fix.svc.Approve(coordinator, 1, yesterday)
	if err != nil {
		t.Fatalf("Approve() failed, %v", err)
	}
	if rec.Status != StatusFinal {
		t.Fatalf("status = %s, want %s", rec.Status, StatusFinal)
	}

	// the final record is closed even to its teacher
	_, err = fix.svc.SaveMarks(teacher, 1, yesterday, SaveMarks{Marks: marksFor(MarkAbsent, 100)})
	if decision, ok := IsEditDenied(err); !ok || decision.Reason != DenialClosed {
		t.Fatalf("SaveMarks() on final record: error = %v, want closed denial", err)
	}

	if _, err = fix.svc.IssueGrant(admin, NewGrant{
		ClassroomID: 1, Date: yesterday, GranteeID: 7,
		Reason: "correction after review", Deadline: testNow.Add(2 * time.Hour),
	}); err != nil {
		t.Fatalf("IssueGrant() failed, %v", err)
	}

	// the grant reopens the record; the correction does not revert approval
	rec, err = fix.svc.SaveMarks(teacher, 1, yesterday, SaveMarks{Marks: marksFor(MarkAbsent, 100)})
	if err != nil {
		t.Fatalf("SaveMarks() under grant failed, %v", err)
	}
	if rec.Status != StatusFinal {
		t.Errorf("status = %s, want %s", rec.Status, StatusFinal)
	}
	if got := rec.Marks[100].Mark; got != MarkAbsent {
		t.Errorf("mark for 100 = %s, want %s", got, MarkAbsent)
	}
	if last := rec.History[len(rec.History)-1]; last.Action != ActionBackfill {
		t.Errorf("history action = %s, want %s", last.Action, ActionBackfill)
	}

	// the grant covers any number of edits until its deadline
	rec, err = fix.svc.SaveMarks(teacher, 1, yesterday, SaveMarks{Marks: marksFor(MarkExcused, 101)})
	if err != nil {
		t.Fatalf("second SaveMarks() under grant failed, %v", err)
	}
	if rec.Status != StatusFinal {
		t.Errorf("status after second edit = %s, want %s", rec.Status, StatusFinal)
	}
	if got := rec.Marks[101].Mark; got != MarkExcused {
		t.Errorf("mark for 101 = %s, want %s", got, MarkExcused)
	}

	backfills := 0
	for _, entry := range rec.History {
		if entry.Action == ActionBackfill {
			backfills++
		}
	}
	if backfills != 2 {
		t.Errorf("backfill history entries = %d, want 2", backfills)
	}
}

// flakyRecordRepo fails the first upsert with a stale-status conflict, as if
// a concurrent writer had just beaten us to the row.
type flakyRecordRepo struct {
	*fakeRecordRepo
	failures int
}

func (repo *flakyRecordRepo) UpsertRecord(rec Record, expected Status) (Record, error) {
	if repo.failures > 0 {
		repo.failures--
		return Record{}, ErrConcurrentModification
	}
	return repo.fakeRecordRepo.UpsertRecord(rec, expected)
}

func TestService_conflictRetry(t *testing.T) {
	flaky := &flakyRecordRepo{fakeRecordRepo: newFakeRecordRepo(), failures: 1}
	fix := newServiceFixture(t, flaky)
	teacher := teacherActor(7, 1)

	// a single transient conflict is absorbed by the retry
	rec, err := fix.svc.SaveMarks(teacher, 1, today, SaveMarks{Marks: marksFor(MarkPresent, 100)})
	if err != nil {
		t.Fatalf("SaveMarks() failed despite retry, %v", err)
	}
	if rec.Status != StatusDraft {
		t.Errorf("status = %s, want %s", rec.Status, StatusDraft)
	}

	// two consecutive conflicts surface to the caller
	flaky.failures = 2
	_, err = fix.svc.SaveMarks(teacher, 1, today, SaveMarks{Marks: marksFor(MarkAbsent, 100)})
	if err != ErrConcurrentModification {
		t.Fatalf("SaveMarks() error = %v, want %v", err, ErrConcurrentModification)
	}
}

func TestService_metrics(t *testing.T) {
	fix := newServiceFixture(t, newFakeRecordRepo())
	teacher := teacherActor(7, 1)

	if _, err := fix.svc.SaveMarks(teacher, 1, today, SaveMarks{Marks: marksFor(MarkPresent, 100, 101)}); err != nil {
		t.Fatalf("SaveMarks() failed, %v", err)
	}

	metrics, err := fix.svc.TodayMetrics()
	if err != nil {
		t.Fatalf("TodayMetrics() failed, %v", err)
	}
	if len(metrics.Classrooms) != 1 {
		t.Fatalf("rows = %d, want 1", len(metrics.Classrooms))
	}
	row := metrics.Classrooms[0]
	if row.Status != StatusDraft || row.PresentCount != 2 || row.Percentage != 100 {
		t.Errorf("row = %+v", row)
	}

	// past dates aggregate too
	past, err := fix.svc.Metrics(lastWeek)
	if err != nil {
		t.Fatalf("Metrics() failed, %v", err)
	}
	if past.Classrooms[0].Status != StatusNotMarked {
		t.Errorf("past row = %+v, want not_marked", past.Classrooms[0])
	}
}
