package dummydb

import (
	"sort"
	"time"

	"github.com/trezcool/darasa/core/attendance"
)

var grantPKCount int

type recordRepository struct {
	db *recordTable
}

var _ attendance.RecordRepository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(db *DB) attendance.RecordRepository {
	return &recordRepository{db: db.record}
}

// clone detaches the stored record from the caller's maps and slices,
// matching the round-trip a real store would impose.
func cloneRecord(rec attendance.Record) attendance.Record {
	marks := make(map[int]attendance.StudentMark, len(rec.Marks))
	for id, m := range rec.Marks {
		marks[id] = m
	}
	rec.Marks = marks
	rec.History = append([]attendance.HistoryEntry(nil), rec.History...)
	return rec
}

func (repo *recordRepository) GetRecord(classroomID int, date time.Time) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	key := recordKey{classroomID: classroomID, date: attendance.DateOf(date)}
	if rec, ok := repo.db.table[key]; ok {
		return cloneRecord(*rec), nil
	}
	return attendance.Record{}, attendance.ErrRecordNotFound
}

func (repo *recordRepository) UpsertRecord(rec attendance.Record, expectedPriorStatus attendance.Status) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := recordKey{classroomID: rec.ClassroomID, date: attendance.DateOf(rec.Date)}
	stored, exists := repo.db.table[key]

	if expectedPriorStatus == attendance.StatusNotMarked {
		if exists {
			return attendance.Record{}, attendance.ErrConcurrentModification
		}
	} else if !exists || stored.Status != expectedPriorStatus {
		return attendance.Record{}, attendance.ErrConcurrentModification
	}

	cloned := cloneRecord(rec)
	repo.db.table[key] = &cloned
	return rec, nil
}

func (repo *recordRepository) ListRecordsForDate(date time.Time) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	day := attendance.DateOf(date)
	var recs []attendance.Record
	for key, rec := range repo.db.table {
		if key.date.Equal(day) {
			recs = append(recs, cloneRecord(*rec))
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ClassroomID < recs[j].ClassroomID })
	return recs, nil
}

type grantRepository struct {
	db *grantTable
}

var _ attendance.GrantRepository = (*grantRepository)(nil) // interface compliance check

func NewGrantRepository(db *DB) attendance.GrantRepository {
	return &grantRepository{db: db.grant}
}

func (repo *grantRepository) query() []attendance.Grant {
	grants := make([]attendance.Grant, 0, len(repo.db.table))
	for _, g := range repo.db.table {
		grants = append(grants, *g)
	}
	// newest first, matching the SQL backend ordering
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].CreatedAt.Equal(grants[j].CreatedAt) {
			return grants[i].ID > grants[j].ID
		}
		return grants[i].CreatedAt.After(grants[j].CreatedAt)
	})
	return grants
}

func (repo *grantRepository) CreateGrant(grant attendance.Grant) (attendance.Grant, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	grantPKCount++
	grant.ID = grantPKCount
	repo.db.table[grant.ID] = &grant
	return grant, nil
}

func (repo *grantRepository) GetGrantByID(id int) (attendance.Grant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if g, ok := repo.db.table[id]; ok {
		return *g, nil
	}
	return attendance.Grant{}, attendance.ErrGrantNotFound
}

func (repo *grantRepository) QueryAllGrants() ([]attendance.Grant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *grantRepository) QueryGrantsByGrantee(granteeID int) ([]attendance.Grant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var grants []attendance.Grant
	for _, g := range repo.query() {
		if g.GranteeID == granteeID {
			grants = append(grants, g)
		}
	}
	return grants, nil
}

func (repo *grantRepository) QueryGrantsByIssuer(issuerID int) ([]attendance.Grant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var grants []attendance.Grant
	for _, g := range repo.query() {
		if g.GrantedBy == issuerID {
			grants = append(grants, g)
		}
	}
	return grants, nil
}

func (repo *grantRepository) QueryGrantsForRecord(classroomID int, date time.Time, granteeID int) ([]attendance.Grant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	day := attendance.DateOf(date)
	var grants []attendance.Grant
	for _, g := range repo.query() {
		if g.Covers(classroomID, day, granteeID) {
			grants = append(grants, g)
		}
	}
	return grants, nil
}
