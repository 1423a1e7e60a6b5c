package sqlxrepos

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/attendance"
)

type recordRow struct {
	ClassroomID int       `db:"classroom_id"`
	Date        time.Time `db:"date"`
	Status      string    `db:"status"`
	Marks       []byte    `db:"marks"`
	History     []byte    `db:"history"`
	MarkedBy    int       `db:"marked_by"`
	MarkedAt    time.Time `db:"marked_at"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row *recordRow) toModel() (attendance.Record, error) {
	rec := attendance.Record{
		ClassroomID: row.ClassroomID,
		Date:        attendance.DateOf(row.Date),
		Status:      attendance.Status(row.Status),
		MarkedBy:    row.MarkedBy,
		MarkedAt:    row.MarkedAt,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Marks, &rec.Marks); err != nil {
		return attendance.Record{}, errors.Wrap(err, "unmarshalling marks")
	}
	if err := json.Unmarshal(row.History, &rec.History); err != nil {
		return attendance.Record{}, errors.Wrap(err, "unmarshalling history")
	}
	return rec, nil
}

type recordRepository struct {
	db *sqlx.DB
}

var _ attendance.RecordRepository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(db *sqlx.DB) attendance.RecordRepository {
	return &recordRepository{db: db}
}

func (repo *recordRepository) GetRecord(classroomID int, date time.Time) (attendance.Record, error) {
	var row recordRow
	err := repo.db.Get(
		&row,
		`SELECT * FROM attendance_record WHERE classroom_id = $1 AND date = $2`,
		classroomID, attendance.DateOf(date),
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return attendance.Record{}, attendance.ErrRecordNotFound
		}
		return attendance.Record{}, errors.Wrap(err, "getting attendance record")
	}
	return row.toModel()
}

// UpsertRecord writes status, marks and history in a single statement
// conditioned on the expected prior status, so a stale transition request
// fails cleanly instead of corrupting counts.
func (repo *recordRepository) UpsertRecord(rec attendance.Record, expectedPriorStatus attendance.Status) (attendance.Record, error) {
	marks, err := json.Marshal(rec.Marks)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "marshalling marks")
	}
	history, err := json.Marshal(rec.History)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "marshalling history")
	}

	var res sql.Result
	if expectedPriorStatus == attendance.StatusNotMarked {
		// first persisted save: the row must not exist yet
		res, err = repo.db.Exec(
			`INSERT INTO attendance_record
			     (classroom_id, date, status, marks, history, marked_by, marked_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (classroom_id, date) DO NOTHING`,
			rec.ClassroomID, attendance.DateOf(rec.Date), string(rec.Status), marks, history,
			rec.MarkedBy, rec.MarkedAt, rec.CreatedAt, rec.UpdatedAt,
		)
	} else {
		res, err = repo.db.Exec(
			`UPDATE attendance_record
			 SET status = $3, marks = $4, history = $5, marked_by = $6, marked_at = $7, updated_at = $8
			 WHERE classroom_id = $1 AND date = $2 AND status = $9`,
			rec.ClassroomID, attendance.DateOf(rec.Date), string(rec.Status), marks, history,
			rec.MarkedBy, rec.MarkedAt, rec.UpdatedAt, string(expectedPriorStatus),
		)
	}
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting attendance record")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting attendance record")
	}
	if n == 0 {
		return attendance.Record{}, attendance.ErrConcurrentModification
	}
	return rec, nil
}

func (repo *recordRepository) ListRecordsForDate(date time.Time) ([]attendance.Record, error) {
	var rows []recordRow
	err := repo.db.Select(
		&rows,
		`SELECT * FROM attendance_record WHERE date = $1 ORDER BY classroom_id`,
		attendance.DateOf(date),
	)
	if err != nil {
		return nil, errors.Wrap(err, "listing attendance records")
	}
	recs := make([]attendance.Record, len(rows))
	for i := range rows {
		if recs[i], err = rows[i].toModel(); err != nil {
			return nil, err
		}
	}
	return recs, nil
}
