package attendance

import (
	"testing"
	"time"

	"github.com/trezcool/darasa/core/school"
)

func newTestResolver(repo *fakeGrantRepo) *Resolver {
	return NewResolver(NewTransitionEngine(24*time.Hour), NewRegistry(repo))
}

func TestResolver_CanWrite(t *testing.T) {
	room := school.Classroom{ID: 1, Name: "P1 A", Level: "P1", TeacherID: 7}
	activeGrant := Grant{
		ID: 1, ClassroomID: 1, Date: lastWeek, GranteeID: 7,
		Reason: "sick", Deadline: testNow.Add(time.Hour), GrantedBy: 9,
	}
	lapsedGrant := Grant{
		ID: 2, ClassroomID: 1, Date: lastWeek, GranteeID: 7,
		Reason: "sick", Deadline: testNow.Add(-time.Hour), GrantedBy: 9,
	}

	tests := []struct {
		name         string
		rec          *Record
		actor        Actor
		date         time.Time
		grants       []Grant
		wantAllowed  bool
		wantBackfill bool
		wantReason   DenialReason
	}{
		{
			name:       "future date",
			actor:      teacherActor(7, 1),
			date:       tomorrow,
			wantReason: DenialFutureDate,
		},
		{
			name:        "assigned teacher, unmarked today",
			actor:       teacherActor(7, 1),
			date:        today,
			wantAllowed: true,
		},
		{
			name:        "assigned teacher, draft yesterday in grace",
			rec:         &Record{ClassroomID: 1, Date: yesterday, Status: StatusDraft},
			actor:       teacherActor(7, 1),
			date:        yesterday,
			wantAllowed: true,
		},
		{
			name:       "unassigned teacher",
			actor:      teacherActor(8, 2),
			date:       today,
			wantReason: DenialNotAssigned,
		},
		{
			name:       "coordinator cannot mark",
			actor:      coordinatorActor(9, "P1"),
			date:       today,
			wantReason: DenialNotAssigned,
		},
		{
			name:       "submitted record is closed to its teacher",
			rec:        &Record{ClassroomID: 1, Date: today, Status: StatusSubmitted},
			actor:      teacherActor(7, 1),
			date:       today,
			wantReason: DenialClosed,
		},
		{
			name:       "out-of-window day without a grant",
			actor:      teacherActor(7, 1),
			date:       lastWeek,
			wantReason: DenialClosed,
		},
		{
			name:         "out-of-window day with an active grant",
			actor:        teacherActor(7, 1),
			date:         lastWeek,
			grants:       []Grant{activeGrant},
			wantAllowed:  true,
			wantBackfill: true,
		},
		{
			name:       "grant lapsed",
			actor:      teacherActor(7, 1),
			date:       lastWeek,
			grants:     []Grant{lapsedGrant},
			wantReason: DenialExpiredGrant,
		},
		{
			name:         "grant reopens a final record",
			rec:          &Record{ClassroomID: 1, Date: lastWeek, Status: StatusFinal},
			actor:        teacherActor(7, 1),
			date:         lastWeek,
			grants:       []Grant{activeGrant},
			wantAllowed:  true,
			wantBackfill: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestResolver(&fakeGrantRepo{grants: tt.grants})
			decision, err := res.CanWrite(tt.rec, tt.actor, room, tt.date, testNow)
			if err != nil {
				t.Fatalf("CanWrite() unexpected error = %v", err)
			}
			if decision.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", decision.Allowed, tt.wantAllowed)
			}
			if decision.Backfill != tt.wantBackfill {
				t.Errorf("Backfill = %v, want %v", decision.Backfill, tt.wantBackfill)
			}
			if decision.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", decision.Reason, tt.wantReason)
			}
			if !tt.wantAllowed && decision.Message != tt.wantReason.Message() {
				t.Errorf("Message = %q, want %q", decision.Message, tt.wantReason.Message())
			}
		})
	}
}

// Each denial reason keeps its own user-facing message; none may fall back
// to another's.
func TestDenialReason_messages(t *testing.T) {
	reasons := []DenialReason{DenialFutureDate, DenialNotAssigned, DenialClosed, DenialExpiredGrant}
	seen := make(map[string]DenialReason, len(reasons))
	for _, reason := range reasons {
		msg := reason.Message()
		if msg == "" {
			t.Errorf("%s has no message", reason)
			continue
		}
		if prev, ok := seen[msg]; ok {
			t.Errorf("%s and %s share the message %q", prev, reason, msg)
		}
		seen[msg] = reason
	}
}
