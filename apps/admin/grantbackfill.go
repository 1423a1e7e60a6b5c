package main

import (
	"time"

	"github.com/trezcool/darasa/core/attendance"
)

// grantBackfill issues a backfill grant on behalf of the named issuer; the
// issuer's own authority (admin, or coordinator over the classroom's level)
// is enforced by the registry exactly as it is over the API.
func (cli *commandLine) grantBackfill(issuer string, classroomID int, dateStr string, granteeID int, deadlineStr, reason string) error {
	issuerUsr, err := cli.usrSvc.GetByUsernameOrEmail(issuer)
	if err != nil {
		return err
	}

	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return err
	}
	deadline, err := time.Parse(time.RFC3339, deadlineStr)
	if err != nil {
		return err
	}

	actor := attendance.Actor{ID: issuerUsr.ID, Roles: issuerUsr.Roles}
	if issuerUsr.IsCoordinator() {
		if actor.Levels, err = cli.schoolSvc.LevelAuthorityOf(issuerUsr.ID); err != nil {
			return err
		}
	}
	grant, err := cli.attSvc.IssueGrant(actor, attendance.NewGrant{
		ClassroomID: classroomID,
		Date:        date,
		GranteeID:   granteeID,
		Reason:      reason,
		Deadline:    deadline,
	})
	if err != nil {
		return err
	}
	logger.Printf("grant #%d issued: classroom %d, %s, grantee %d, deadline %s",
		grant.ID, grant.ClassroomID, grant.Date.Format("2006-01-02"), grant.GranteeID,
		grant.Deadline.Format(time.RFC3339))
	return nil
}
