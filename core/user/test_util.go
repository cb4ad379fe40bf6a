package user

import (
	"context"

	"github.com/trezcool/alumni/core"
)

type serviceMock struct {
	*service
}

// NewServiceMock returns a service that sends its emails synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService, pages core.Revalidator, conf *core.Config, logger core.Logger) ServiceInterface {
	return &serviceMock{
		service: NewService(repo, mailSvc, pages, conf, logger).(*service),
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}

// MakeToken generates a password reset token the same way the service does.
func MakeToken(conf *core.Config, usr User) (string, error) {
	return newTokenGenerator(conf).makeToken(usr)
}
