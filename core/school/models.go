package school

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

// Classroom is a homeroom group of students at a given level, owned by one teacher.
type Classroom struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Level     string    `json:"level"`
	Campus    string    `json:"campus"`
	TeacherID int       `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type Student struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	ClassroomID int       `json:"classroom_id"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// NewClassroom contains information needed to create a new Classroom.
type NewClassroom struct {
	Name      string `json:"name" validate:"required"`
	Level     string `json:"level" validate:"required"`
	Campus    string `json:"campus"`
	TeacherID int    `json:"teacher_id" validate:"required"`
}

func (nc *NewClassroom) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Level = core.CleanString(nc.Level)
	nc.Campus = core.CleanString(nc.Campus)
	return validate.Struct(nc)
}

// NewStudent contains information needed to enroll a new Student.
type NewStudent struct {
	Name        string `json:"name" validate:"required"`
	ClassroomID int    `json:"classroom_id" validate:"required"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}
