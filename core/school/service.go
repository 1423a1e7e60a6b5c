package school

import (
	"errors"
	"time"
)

var (
	// errors
	ErrClassroomNotFound = errors.New("classroom not found")
	ErrStudentNotFound   = errors.New("student not found")
)

type (
	Repository interface {
		CreateClassroom(room Classroom) (Classroom, error)
		GetClassroomByID(id int) (Classroom, error)
		QueryAllClassrooms() ([]Classroom, error)
		QueryClassroomsByTeacher(teacherID int) ([]Classroom, error)
		CreateStudent(std Student) (Student, error)
		// QueryStudentsByClassroom only returns actively enrolled students.
		QueryStudentsByClassroom(classroomID int) ([]Student, error)
		AssignLevelCoordinator(coordinatorID int, level string) error
		QueryLevelsByCoordinator(coordinatorID int) ([]string, error)
	}

	Service interface {
		CreateClassroom(nc NewClassroom) (Classroom, error)
		GetClassroom(id int) (Classroom, error)
		QueryAllClassrooms() ([]Classroom, error)
		// ClassroomsManagedBy returns the classrooms a teacher owns.
		ClassroomsManagedBy(teacherID int) ([]Classroom, error)
		EnrollStudent(ns NewStudent) (Student, error)
		EnrolledStudents(classroomID int) ([]Student, error)
		AssignLevelCoordinator(coordinatorID int, level string) error
		// LevelAuthorityOf returns the levels a coordinator has authority over.
		LevelAuthorityOf(coordinatorID int) ([]string, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) CreateClassroom(nc NewClassroom) (Classroom, error) {
	now := time.Now().UTC()
	room := Classroom{
		Name:      nc.Name,
		Level:     nc.Level,
		Campus:    nc.Campus,
		TeacherID: nc.TeacherID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateClassroom(room)
}

func (svc *service) GetClassroom(id int) (Classroom, error) {
	return svc.repo.GetClassroomByID(id)
}

func (svc *service) QueryAllClassrooms() ([]Classroom, error) {
	return svc.repo.QueryAllClassrooms()
}

func (svc *service) ClassroomsManagedBy(teacherID int) ([]Classroom, error) {
	return svc.repo.QueryClassroomsByTeacher(teacherID)
}

func (svc *service) EnrollStudent(ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	std := Student{
		Name:        ns.Name,
		ClassroomID: ns.ClassroomID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateStudent(std)
}

func (svc *service) EnrolledStudents(classroomID int) ([]Student, error) {
	return svc.repo.QueryStudentsByClassroom(classroomID)
}

func (svc *service) AssignLevelCoordinator(coordinatorID int, level string) error {
	return svc.repo.AssignLevelCoordinator(coordinatorID, level)
}

func (svc *service) LevelAuthorityOf(coordinatorID int) ([]string, error) {
	return svc.repo.QueryLevelsByCoordinator(coordinatorID)
}
