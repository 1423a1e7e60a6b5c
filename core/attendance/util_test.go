package attendance

import (
	"sort"
	"testing"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
)

// testNow is the frozen wall clock of the suite: a Wednesday morning.
var (
	testNow   = time.Date(2021, 3, 10, 9, 0, 0, 0, time.UTC)
	today     = DateOf(testNow)
	yesterday = today.AddDate(0, 0, -1)
	lastWeek  = today.AddDate(0, 0, -7)
	tomorrow  = today.AddDate(0, 0, 1)
)

func mockNow(t *testing.T, at time.Time) {
	t.Helper()
	nowFunc = func() time.Time { return at }
	t.Cleanup(func() { nowFunc = time.Now })
}

func teacherActor(id int, rooms ...int) Actor {
	return Actor{ID: id, Roles: []string{user.RoleTeacher}, ManagedClassrooms: rooms}
}

func coordinatorActor(id int, levels ...string) Actor {
	return Actor{ID: id, Roles: []string{user.RoleCoordinator}, Levels: levels}
}

func adminActor(id int) Actor {
	return Actor{ID: id, Roles: []string{user.RoleAdmin}}
}

func marksFor(mark Mark, studentIDs ...int) map[int]StudentMark {
	marks := make(map[int]StudentMark, len(studentIDs))
	for _, id := range studentIDs {
		marks[id] = StudentMark{Mark: mark}
	}
	return marks
}

// fakes

type fakeGrantRepo struct {
	grants []Grant
	nextID int
}

var _ GrantRepository = (*fakeGrantRepo)(nil)

func (repo *fakeGrantRepo) CreateGrant(grant Grant) (Grant, error) {
	repo.nextID++
	grant.ID = repo.nextID
	repo.grants = append(repo.grants, grant)
	return grant, nil
}

func (repo *fakeGrantRepo) GetGrantByID(id int) (Grant, error) {
	for _, g := range repo.grants {
		if g.ID == id {
			return g, nil
		}
	}
	return Grant{}, ErrGrantNotFound
}

func (repo *fakeGrantRepo) QueryAllGrants() ([]Grant, error) {
	return append([]Grant(nil), repo.grants...), nil
}

func (repo *fakeGrantRepo) QueryGrantsByGrantee(granteeID int) ([]Grant, error) {
	var grants []Grant
	for _, g := range repo.grants {
		if g.GranteeID == granteeID {
			grants = append(grants, g)
		}
	}
	return grants, nil
}

func (repo *fakeGrantRepo) QueryGrantsByIssuer(issuerID int) ([]Grant, error) {
	var grants []Grant
	for _, g := range repo.grants {
		if g.GrantedBy == issuerID {
			grants = append(grants, g)
		}
	}
	return grants, nil
}

func (repo *fakeGrantRepo) QueryGrantsForRecord(classroomID int, date time.Time, granteeID int) ([]Grant, error) {
	var grants []Grant
	for _, g := range repo.grants {
		if g.Covers(classroomID, date, granteeID) {
			grants = append(grants, g)
		}
	}
	return grants, nil
}

type fakeRecordRepo struct {
	records map[recordKey]Record
}

type recordKey struct {
	classroomID int
	date        time.Time
}

var _ RecordRepository = (*fakeRecordRepo)(nil)

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[recordKey]Record)}
}

func (repo *fakeRecordRepo) GetRecord(classroomID int, date time.Time) (Record, error) {
	if rec, ok := repo.records[recordKey{classroomID, DateOf(date)}]; ok {
		return rec, nil
	}
	return Record{}, ErrRecordNotFound
}

func (repo *fakeRecordRepo) UpsertRecord(rec Record, expectedPriorStatus Status) (Record, error) {
	key := recordKey{rec.ClassroomID, DateOf(rec.Date)}
	stored, exists := repo.records[key]
	if expectedPriorStatus == StatusNotMarked {
		if exists {
			return Record{}, ErrConcurrentModification
		}
	} else if !exists || stored.Status != expectedPriorStatus {
		return Record{}, ErrConcurrentModification
	}
	repo.records[key] = rec
	return rec, nil
}

func (repo *fakeRecordRepo) ListRecordsForDate(date time.Time) ([]Record, error) {
	day := DateOf(date)
	var recs []Record
	for key, rec := range repo.records {
		if key.date.Equal(day) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ClassroomID < recs[j].ClassroomID })
	return recs, nil
}

type fakeSchoolSvc struct {
	rooms    map[int]school.Classroom
	students map[int][]school.Student // classroom ID -> students
}

var _ school.Service = (*fakeSchoolSvc)(nil)

func newFakeSchoolSvc(rooms ...school.Classroom) *fakeSchoolSvc {
	svc := &fakeSchoolSvc{
		rooms:    make(map[int]school.Classroom, len(rooms)),
		students: make(map[int][]school.Student),
	}
	for _, room := range rooms {
		svc.rooms[room.ID] = room
	}
	return svc
}

func (svc *fakeSchoolSvc) enroll(classroomID int, studentIDs ...int) {
	for _, id := range studentIDs {
		svc.students[classroomID] = append(svc.students[classroomID], school.Student{
			ID: id, ClassroomID: classroomID, IsActive: true,
		})
	}
}

func (svc *fakeSchoolSvc) CreateClassroom(nc school.NewClassroom) (school.Classroom, error) {
	return school.Classroom{}, nil
}

func (svc *fakeSchoolSvc) GetClassroom(id int) (school.Classroom, error) {
	if room, ok := svc.rooms[id]; ok {
		return room, nil
	}
	return school.Classroom{}, school.ErrClassroomNotFound
}

func (svc *fakeSchoolSvc) QueryAllClassrooms() ([]school.Classroom, error) {
	rooms := make([]school.Classroom, 0, len(svc.rooms))
	for _, room := range svc.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

func (svc *fakeSchoolSvc) ClassroomsManagedBy(teacherID int) ([]school.Classroom, error) {
	var rooms []school.Classroom
	for _, room := range svc.rooms {
		if room.TeacherID == teacherID {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}

func (svc *fakeSchoolSvc) EnrollStudent(ns school.NewStudent) (school.Student, error) {
	return school.Student{}, nil
}

func (svc *fakeSchoolSvc) EnrolledStudents(classroomID int) ([]school.Student, error) {
	return svc.students[classroomID], nil
}

func (svc *fakeSchoolSvc) AssignLevelCoordinator(coordinatorID int, level string) error {
	return nil
}

func (svc *fakeSchoolSvc) LevelAuthorityOf(coordinatorID int) ([]string, error) {
	return nil, nil
}

type fakeUserSvc struct {
	users map[int]user.User
}

var _ user.Service = (*fakeUserSvc)(nil)

func newFakeUserSvc(users ...user.User) *fakeUserSvc {
	svc := &fakeUserSvc{users: make(map[int]user.User, len(users))}
	for _, usr := range users {
		svc.users[usr.ID] = usr
	}
	return svc
}

func (svc *fakeUserSvc) CheckUniqueness(uname, email string, exclUsers ...user.User) error {
	return nil
}
func (svc *fakeUserSvc) Create(nu user.NewUser) (user.User, error) { return user.User{}, nil }
func (svc *fakeUserSvc) QueryAll() ([]user.User, error)            { return nil, nil }

func (svc *fakeUserSvc) GetByID(id int) (user.User, error) {
	if usr, ok := svc.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (svc *fakeUserSvc) GetByUsername(uname string) (user.User, error) {
	return user.User{}, user.ErrNotFound
}
func (svc *fakeUserSvc) GetByEmail(email string) (user.User, error) {
	return user.User{}, user.ErrNotFound
}
func (svc *fakeUserSvc) GetByUsernameOrEmail(uname string) (user.User, error) {
	return user.User{}, user.ErrNotFound
}
func (svc *fakeUserSvc) SetLastLogin(usr user.User) (user.User, error) { return usr, nil }

type fakeMailSvc struct {
	sent []*core.EmailMessage
}

var _ core.EmailService = (*fakeMailSvc)(nil)

func (svc *fakeMailSvc) SendMessages(messages ...*core.EmailMessage) {
	svc.sent = append(svc.sent, messages...)
}
