package sqlxrepos

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/attendance"
)

type grantRow struct {
	ID          int       `db:"id"`
	ClassroomID int       `db:"classroom_id"`
	Date        time.Time `db:"date"`
	GranteeID   int       `db:"grantee_id"`
	Reason      string    `db:"reason"`
	Deadline    time.Time `db:"deadline"`
	GrantedBy   int       `db:"granted_by"`
	CreatedAt   time.Time `db:"created_at"`
}

func (row *grantRow) toModel() attendance.Grant {
	g := attendance.Grant(*row)
	g.Date = attendance.DateOf(row.Date)
	return g
}

type grantRepository struct {
	db *sqlx.DB
}

var _ attendance.GrantRepository = (*grantRepository)(nil) // interface compliance check

func NewGrantRepository(db *sqlx.DB) attendance.GrantRepository {
	return &grantRepository{db: db}
}

func (repo *grantRepository) CreateGrant(grant attendance.Grant) (attendance.Grant, error) {
	err := repo.db.QueryRow(
		`INSERT INTO backfill_grant (classroom_id, date, grantee_id, reason, deadline, granted_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		grant.ClassroomID, grant.Date, grant.GranteeID, grant.Reason,
		grant.Deadline, grant.GrantedBy, grant.CreatedAt,
	).Scan(&grant.ID)
	if err != nil {
		return attendance.Grant{}, errors.Wrap(err, "creating grant")
	}
	return grant, nil
}

func (repo *grantRepository) GetGrantByID(id int) (attendance.Grant, error) {
	var row grantRow
	if err := repo.db.Get(&row, `SELECT * FROM backfill_grant WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return attendance.Grant{}, attendance.ErrGrantNotFound
		}
		return attendance.Grant{}, errors.Wrap(err, "getting grant")
	}
	return row.toModel(), nil
}

func (repo *grantRepository) queryGrants(query string, args ...interface{}) ([]attendance.Grant, error) {
	var rows []grantRow
	if err := repo.db.Select(&rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying grants")
	}
	grants := make([]attendance.Grant, len(rows))
	for i := range rows {
		grants[i] = rows[i].toModel()
	}
	return grants, nil
}

func (repo *grantRepository) QueryAllGrants() ([]attendance.Grant, error) {
	return repo.queryGrants(`SELECT * FROM backfill_grant ORDER BY created_at DESC`)
}

func (repo *grantRepository) QueryGrantsByGrantee(granteeID int) ([]attendance.Grant, error) {
	return repo.queryGrants(
		`SELECT * FROM backfill_grant WHERE grantee_id = $1 ORDER BY created_at DESC`, granteeID)
}

func (repo *grantRepository) QueryGrantsByIssuer(issuerID int) ([]attendance.Grant, error) {
	return repo.queryGrants(
		`SELECT * FROM backfill_grant WHERE granted_by = $1 ORDER BY created_at DESC`, issuerID)
}

func (repo *grantRepository) QueryGrantsForRecord(classroomID int, date time.Time, granteeID int) ([]attendance.Grant, error) {
	return repo.queryGrants(
		`SELECT * FROM backfill_grant
		 WHERE classroom_id = $1 AND date = $2 AND grantee_id = $3
		 ORDER BY created_at DESC`,
		classroomID, attendance.DateOf(date), granteeID,
	)
}
