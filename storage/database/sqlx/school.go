package sqlxrepos

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/school"
)

type classroomRow struct {
	ID        int       `db:"id"`
	Name      string    `db:"name"`
	Level     string    `db:"level"`
	Campus    string    `db:"campus"`
	TeacherID int       `db:"teacher_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row *classroomRow) toModel() school.Classroom {
	return school.Classroom(*row)
}

type studentRow struct {
	ID          int       `db:"id"`
	Name        string    `db:"name"`
	ClassroomID int       `db:"classroom_id"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row *studentRow) toModel() school.Student {
	return school.Student(*row)
}

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) school.Repository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateClassroom(room school.Classroom) (school.Classroom, error) {
	err := repo.db.QueryRow(
		`INSERT INTO classroom (name, level, campus, teacher_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		room.Name, room.Level, room.Campus, room.TeacherID, room.CreatedAt, room.UpdatedAt,
	).Scan(&room.ID)
	if err != nil {
		return school.Classroom{}, errors.Wrap(err, "creating classroom")
	}
	return room, nil
}

func (repo *schoolRepository) GetClassroomByID(id int) (school.Classroom, error) {
	var row classroomRow
	if err := repo.db.Get(&row, `SELECT * FROM classroom WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return school.Classroom{}, school.ErrClassroomNotFound
		}
		return school.Classroom{}, errors.Wrap(err, "getting classroom")
	}
	return row.toModel(), nil
}

func (repo *schoolRepository) QueryAllClassrooms() ([]school.Classroom, error) {
	var rows []classroomRow
	if err := repo.db.Select(&rows, `SELECT * FROM classroom ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "querying classrooms")
	}
	rooms := make([]school.Classroom, len(rows))
	for i := range rows {
		rooms[i] = rows[i].toModel()
	}
	return rooms, nil
}

func (repo *schoolRepository) QueryClassroomsByTeacher(teacherID int) ([]school.Classroom, error) {
	var rows []classroomRow
	err := repo.db.Select(&rows, `SELECT * FROM classroom WHERE teacher_id = $1 ORDER BY id`, teacherID)
	if err != nil {
		return nil, errors.Wrap(err, "querying classrooms by teacher")
	}
	rooms := make([]school.Classroom, len(rows))
	for i := range rows {
		rooms[i] = rows[i].toModel()
	}
	return rooms, nil
}

func (repo *schoolRepository) CreateStudent(std school.Student) (school.Student, error) {
	err := repo.db.QueryRow(
		`INSERT INTO student (name, classroom_id, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		std.Name, std.ClassroomID, std.IsActive, std.CreatedAt, std.UpdatedAt,
	).Scan(&std.ID)
	if err != nil {
		return school.Student{}, errors.Wrap(err, "creating student")
	}
	return std, nil
}

func (repo *schoolRepository) QueryStudentsByClassroom(classroomID int) ([]school.Student, error) {
	var rows []studentRow
	err := repo.db.Select(
		&rows,
		`SELECT * FROM student WHERE classroom_id = $1 AND is_active ORDER BY id`,
		classroomID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying students by classroom")
	}
	students := make([]school.Student, len(rows))
	for i := range rows {
		students[i] = rows[i].toModel()
	}
	return students, nil
}

func (repo *schoolRepository) AssignLevelCoordinator(coordinatorID int, level string) error {
	_, err := repo.db.Exec(
		`INSERT INTO coordinator_level (coordinator_id, level)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		coordinatorID, level,
	)
	return errors.Wrap(err, "assigning level coordinator")
}

func (repo *schoolRepository) QueryLevelsByCoordinator(coordinatorID int) ([]string, error) {
	var levels []string
	err := repo.db.Select(
		&levels,
		`SELECT level FROM coordinator_level WHERE coordinator_id = $1 ORDER BY level`,
		coordinatorID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying coordinator levels")
	}
	return levels, nil
}
