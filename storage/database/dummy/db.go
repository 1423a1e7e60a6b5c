package dummydb

import (
	"sync"
	"time"

	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
)

type (
	DB struct {
		user       *userTable
		classroom  *classroomTable
		student    *studentTable
		coordLevel *coordLevelTable
		record     *recordTable
		grant      *grantTable
	}

	userTable struct {
		sync.RWMutex
		table map[int]*user.User
	}

	classroomTable struct {
		sync.RWMutex
		table map[int]*school.Classroom
	}

	studentTable struct {
		sync.RWMutex
		table map[int]*school.Student
	}

	coordLevelTable struct {
		sync.RWMutex
		table map[int][]string // coordinator ID -> levels
	}

	recordKey struct {
		classroomID int
		date        time.Time
	}

	recordTable struct {
		sync.RWMutex
		table map[recordKey]*attendance.Record
	}

	grantTable struct {
		sync.RWMutex
		table map[int]*attendance.Grant
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:       &userTable{table: make(map[int]*user.User)},
		classroom:  &classroomTable{table: make(map[int]*school.Classroom)},
		student:    &studentTable{table: make(map[int]*school.Student)},
		coordLevel: &coordLevelTable{table: make(map[int][]string)},
		record:     &recordTable{table: make(map[recordKey]*attendance.Record)},
		grant:      &grantTable{table: make(map[int]*attendance.Grant)},
	}
	return db, nil
}
