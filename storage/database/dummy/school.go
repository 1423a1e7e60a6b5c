package dummydb

import (
	"sort"

	"github.com/trezcool/darasa/core/school"
)

var (
	classroomPKCount int
	studentPKCount   int
)

type schoolRepository struct {
	classrooms *classroomTable
	students   *studentTable
	coordLvls  *coordLevelTable
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{
		classrooms: db.classroom,
		students:   db.student,
		coordLvls:  db.coordLevel,
	}
}

func (repo *schoolRepository) queryClassrooms() []school.Classroom {
	rooms := make([]school.Classroom, 0, len(repo.classrooms.table))
	for _, room := range repo.classrooms.table {
		rooms = append(rooms, *room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

func (repo *schoolRepository) CreateClassroom(room school.Classroom) (school.Classroom, error) {
	repo.classrooms.Lock()
	defer repo.classrooms.Unlock()

	classroomPKCount++
	room.ID = classroomPKCount
	repo.classrooms.table[room.ID] = &room
	return room, nil
}

func (repo *schoolRepository) GetClassroomByID(id int) (school.Classroom, error) {
	repo.classrooms.RLock()
	defer repo.classrooms.RUnlock()

	if room, ok := repo.classrooms.table[id]; ok {
		return *room, nil
	}
	return school.Classroom{}, school.ErrClassroomNotFound
}

func (repo *schoolRepository) QueryAllClassrooms() ([]school.Classroom, error) {
	repo.classrooms.RLock()
	defer repo.classrooms.RUnlock()
	return repo.queryClassrooms(), nil
}

func (repo *schoolRepository) QueryClassroomsByTeacher(teacherID int) ([]school.Classroom, error) {
	repo.classrooms.RLock()
	defer repo.classrooms.RUnlock()

	var rooms []school.Classroom
	for _, room := range repo.queryClassrooms() {
		if room.TeacherID == teacherID {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}

func (repo *schoolRepository) CreateStudent(std school.Student) (school.Student, error) {
	repo.students.Lock()
	defer repo.students.Unlock()

	studentPKCount++
	std.ID = studentPKCount
	repo.students.table[std.ID] = &std
	return std, nil
}

func (repo *schoolRepository) QueryStudentsByClassroom(classroomID int) ([]school.Student, error) {
	repo.students.RLock()
	defer repo.students.RUnlock()

	var students []school.Student
	for _, std := range repo.students.table {
		if std.ClassroomID == classroomID && std.IsActive {
			students = append(students, *std)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, nil
}

func (repo *schoolRepository) AssignLevelCoordinator(coordinatorID int, level string) error {
	repo.coordLvls.Lock()
	defer repo.coordLvls.Unlock()

	for _, lvl := range repo.coordLvls.table[coordinatorID] {
		if lvl == level {
			return nil
		}
	}
	repo.coordLvls.table[coordinatorID] = append(repo.coordLvls.table[coordinatorID], level)
	return nil
}

func (repo *schoolRepository) QueryLevelsByCoordinator(coordinatorID int) ([]string, error) {
	repo.coordLvls.RLock()
	defer repo.coordLvls.RUnlock()

	levels := append([]string(nil), repo.coordLvls.table[coordinatorID]...)
	sort.Strings(levels)
	return levels, nil
}
