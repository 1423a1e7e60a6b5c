package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	"github.com/trezcool/darasa/storage/database"
	sqlxrepos "github.com/trezcool/darasa/storage/database/sqlx"
)

var logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

func main() {
	defer os.Exit(0)

	// set up DB
	errAndDie(database.CreateIfNotExist(core.Conf))
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())
	sqlxDB := sqlx.NewDb(db, core.Conf.Database.Engine)

	// set up services
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(sqlxDB))
	schoolSvc := school.NewService(sqlxrepos.NewSchoolRepository(sqlxDB))
	attSvc := attendance.NewService(
		sqlxrepos.NewRecordRepository(sqlxDB),
		sqlxrepos.NewGrantRepository(sqlxDB),
		schoolSvc,
		usrSvc,
		emailsvc.NewConsoleService(),
		core.Conf.Attendance,
	)

	// start CLI
	cli := commandLine{
		db:        db,
		usrSvc:    usrSvc,
		schoolSvc: schoolSvc,
		attSvc:    attSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
