package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	dummydb "github.com/trezcool/darasa/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	server    Server
	usrSvc    user.Service
	schoolSvc school.Service
	attSvc    attendance.Service
}

func setup(t *testing.T) *testApp {
	t.Helper()
	core.Conf.Debug = false
	core.Conf.TestMode = true

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed, %v", err)
	}

	usrSvc := user.NewService(dummydb.NewUserRepository(db))
	schoolSvc := school.NewService(dummydb.NewSchoolRepository(db))
	attSvc := attendance.NewService(
		dummydb.NewRecordRepository(db),
		dummydb.NewGrantRepository(db),
		schoolSvc,
		usrSvc,
		emailsvc.NewConsoleService(),
		core.Conf.Attendance,
	)

	server := NewServer(&Options{
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		SchoolSvc:      schoolSvc,
		AttendanceSvc:  attSvc,
		Logger:         nopLogger{},
		SignalShutdown: func() {},
	})
	return &testApp{server: server, usrSvc: usrSvc, schoolSvc: schoolSvc, attSvc: attSvc}
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// fixtures

func (app *testApp) createUser(t *testing.T, name, uname, email, pwd string, roles []string) user.User {
	t.Helper()
	usr, err := app.usrSvc.Create(user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	})
	if err != nil {
		t.Fatalf("createUser(%s) failed, %v", uname, err)
	}
	return usr
}

func (app *testApp) createClassroom(t *testing.T, name, level string, teacherID int, studentCount int) school.Classroom {
	t.Helper()
	room, err := app.schoolSvc.CreateClassroom(school.NewClassroom{
		Name: name, Level: level, TeacherID: teacherID,
	})
	if err != nil {
		t.Fatalf("createClassroom(%s) failed, %v", name, err)
	}
	for i := 0; i < studentCount; i++ {
		if _, err = app.schoolSvc.EnrollStudent(school.NewStudent{
			Name: "Student", ClassroomID: room.ID,
		}); err != nil {
			t.Fatalf("EnrollStudent() failed, %v", err)
		}
	}
	return room
}

func (app *testApp) enrolledIDs(t *testing.T, classroomID int) []int {
	t.Helper()
	students, err := app.schoolSvc.EnrolledStudents(classroomID)
	if err != nil {
		t.Fatalf("EnrolledStudents() failed, %v", err)
	}
	ids := make([]int, 0, len(students))
	for _, std := range students {
		ids = append(ids, std.ID)
	}
	return ids
}

func marksBody(t *testing.T, mark attendance.Mark, studentIDs ...int) []byte {
	t.Helper()
	marks := make(map[int]attendance.StudentMark, len(studentIDs))
	for _, id := range studentIDs {
		marks[id] = attendance.StudentMark{Mark: mark}
	}
	return marchallObj(t, attendance.SaveMarks{Marks: marks})
}

func dateStr(date time.Time) string {
	return attendance.DateOf(date).Format("2006-01-02")
}

// request helpers

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
