package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB
	usrSvc    user.Service
	schoolSvc school.Service
	attSvc    attendance.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a database migration command (up, down, status, ...)")
	fmt.Println("  adduser -name NAME -username USERNAME -email EMAIL [-admin|-coordinator|-teacher] - create a user; the password will be prompted")
	fmt.Println("  grantbackfill -issuer USERNAME|EMAIL -classroom ID -date YYYY-MM-DD -grantee ID -deadline RFC3339 -reason TEXT - issue a backfill grant")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Make the user an admin.")
	addUserCoord := addUserCmd.Bool("coordinator", false, "Make the user a coordinator.")
	addUserTeacher := addUserCmd.Bool("teacher", false, "Make the user a teacher.")

	grantCmd := flag.NewFlagSet("grantbackfill", flag.ExitOnError)
	grantIssuer := grantCmd.String("issuer", "", "Username or email of the issuing coordinator/admin.")
	grantClassroom := grantCmd.Int("classroom", 0, "The classroom ID.")
	grantDate := grantCmd.String("date", "", "The attendance date being reopened (YYYY-MM-DD).")
	grantGrantee := grantCmd.Int("grantee", 0, "The grantee teacher's user ID.")
	grantDeadline := grantCmd.String("deadline", "", "The grant deadline (RFC3339).")
	grantReason := grantCmd.String("reason", "", "Why the backfill is needed.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, string(pwd),
			*addUserAdmin, *addUserCoord, *addUserTeacher)
	case "grantbackfill":
		if err := grantCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *grantIssuer == "" || *grantClassroom == 0 || *grantDate == "" ||
			*grantGrantee == 0 || *grantDeadline == "" || *grantReason == "" {
			grantCmd.Usage()
			return errHelp
		}
		return cli.grantBackfill(*grantIssuer, *grantClassroom, *grantDate, *grantGrantee, *grantDeadline, *grantReason)
	default:
		cli.printUsage()
		return errHelp
	}
}
