package main

import (
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

// addUser creates a new user.User with the requested roles.
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin, isCoordinator, isTeacher bool) error {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	var roles []string
	if isAdmin {
		roles = append(roles, user.RoleAdmin)
	}
	if isCoordinator {
		roles = append(roles, user.RoleCoordinator)
	}
	if isTeacher || len(roles) == 0 {
		roles = append(roles, user.RoleTeacher)
	}

	if err := cli.usrSvc.CheckUniqueness(uname, email); err != nil {
		return err
	}
	_, err := cli.usrSvc.Create(user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	})
	return err
}
