package tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/user"
)

func decodeMetrics(t *testing.T, rec *httptest.ResponseRecorder) attendance.RealtimeMetrics {
	t.Helper()
	var metrics attendance.RealtimeMetrics
	if err := json.Unmarshal(rec.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("unmarshalling RealtimeMetrics failed, %v; body %s", err, rec.Body.String())
	}
	return metrics
}

func Test_metricsApi_today(t *testing.T) {
	app := setup(t)
	teacher := app.createUser(t, "Teacher", "teacher", "teacher@test.cd", "LionKing!", []string{user.RoleTeacher})
	room1 := app.createClassroom(t, "P1 A", "P1", teacher.ID, 2)
	room2 := app.createClassroom(t, "P1 B", "P1", teacher.ID, 3)
	teacherToken := getToken(t, teacher)

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/metrics/today")
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		}, rec)
	})

	t.Run("one row per classroom", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/metrics/today", teacherToken)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		metrics := decodeMetrics(t, rec)
		if len(metrics.Classrooms) != 2 {
			t.Fatalf("rows = %d, want 2", len(metrics.Classrooms))
		}
		for _, row := range metrics.Classrooms {
			if row.Status != attendance.StatusNotMarked || row.StatusColor != "gray" {
				t.Errorf("row %d = %s (%s), want not_marked (gray)", row.ClassroomID, row.Status, row.StatusColor)
			}
		}
	})

	t.Run("marks show up live", func(t *testing.T) {
		students := app.enrolledIDs(t, room1.ID)
		req, rec := newAuthRequest(
			http.MethodPut, recordPath(room1.ID, time.Now()), teacherToken,
			marksBody(t, attendance.MarkPresent, students...),
		)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("saving marks: code = %v; body %s", rec.Code, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/metrics/today", teacherToken)
		app.server.ServeHTTP(rec, req)
		metrics := decodeMetrics(t, rec)

		rows := make(map[int]attendance.ClassroomSummary, len(metrics.Classrooms))
		for _, row := range metrics.Classrooms {
			rows[row.ClassroomID] = row
		}
		marked := rows[room1.ID]
		if marked.Status != attendance.StatusDraft || marked.PresentCount != 2 || marked.Percentage != 100 {
			t.Errorf("row %d = %+v, want a fully present draft", room1.ID, marked)
		}
		if unmarked := rows[room2.ID]; unmarked.Status != attendance.StatusNotMarked {
			t.Errorf("row %d = %+v, want not_marked", room2.ID, unmarked)
		}
	})
}

func Test_metricsApi_forDate(t *testing.T) {
	app := setup(t)
	teacher := app.createUser(t, "Teacher", "teacher", "teacher@test.cd", "LionKing!", []string{user.RoleTeacher})
	coordinator := app.createUser(t, "Coordinator", "coordo1", "coordo@test.cd", "LionKing!", []string{user.RoleCoordinator})
	app.createClassroom(t, "P1 A", "P1", teacher.ID, 2)

	yesterday := time.Now().AddDate(0, 0, -1)
	path := "/v1/metrics/" + dateStr(yesterday)

	// historical metrics are staff-only
	req, rec := newAuthRequest(http.MethodGet, path, getToken(t, teacher))
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
	}, rec)

	req, rec = newAuthRequest(http.MethodGet, path, getToken(t, coordinator))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
	}
	metrics := decodeMetrics(t, rec)
	if !metrics.Date.Equal(attendance.DateOf(yesterday)) {
		t.Errorf("date = %v, want %v", metrics.Date, attendance.DateOf(yesterday))
	}
	if len(metrics.Classrooms) != 1 || metrics.Classrooms[0].Status != attendance.StatusNotMarked {
		t.Errorf("rows = %+v, want one not_marked row", metrics.Classrooms)
	}

	// malformed date
	req, rec = newAuthRequest(http.MethodGet, "/v1/metrics/lol", getToken(t, coordinator))
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"date": "must be formatted as 2006-01-02"}),
	}, rec)
}
