package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(ctx context.Context, name, email, pwd, role string) error {
	name = core.CollapseSpaces(name)
	email = core.CleanString(email, true /* lower */)
	if user.RolePriority(role) == 0 {
		return errors.Errorf("invalid role %q", role)
	}

	usr, err := cli.usrRepo.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, user.ErrNotFound):
		if usr, err = cli.usrSvc.Create(ctx, user.NewUser{Name: name, Email: email, Password: pwd, Role: role}); err != nil {
			return errors.Wrap(err, "creating user")
		}
		fmt.Fprintf(cli.out, "user %s created (%s)\n", usr.Email, usr.ID)
		return nil
	case err != nil:
		return errors.Wrap(err, "finding user by email")
	}

	usr.Name = name
	usr.Role = role
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	if _, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}
	fmt.Fprintf(cli.out, "user %s updated (%s)\n", usr.Email, usr.ID)
	return nil
}
