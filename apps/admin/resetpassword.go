package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core/user"
)

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	// the operator is held to the same rules as a superadmin
	data := user.AdminPasswordReset{TargetUserID: email, NewPassword: pwd}
	if err := data.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.usrSvc.GetByEmail(ctx, data.TargetUserID)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}
	fmt.Fprintf(cli.out, "password of %s reset\n", usr.Email)
	return nil
}
