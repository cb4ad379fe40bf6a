package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/authz"
)

const (
	// AdminPasswordMinLen is the minimum length of a password set by a superadmin.
	AdminPasswordMinLen = 6
	// PasswordMaxBytes is the longest password bcrypt accepts.
	PasswordMaxBytes    = 72
)

var (
	// errors
	ErrNotFound           = core.NewAppError(core.KindNotFound, "user.not_found", "user not found")
	ErrEmailExists        = core.NewAppError(core.KindConflict, "user.email_exists", "a user with this email already exists")
	ErrResetForbidden     = core.NewAppError(core.KindForbidden, "auth.superadmin_only", "only a superadmin can reset another user's password")
	ErrResetFieldsMissing = core.NewAppError(core.KindValidation, "reset.missing_fields", "targetUserId and newPassword are required")
	ErrPasswordTooShort   = core.NewAppError(core.KindValidation, "password.too_short", "password too short")
	ErrPasswordTooLong    = core.NewAppError(core.KindValidation, "password.too_long", "password too long")
	ErrInvalidResetLink   = core.NewAppError(core.KindValidation, "password.reset_invalid", "invalid or expired password reset link")
)

type (
	Repository interface {
		// CheckEmailUniqueness returns ErrEmailExists if another user, not in excludedIDs, has this email.
		CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		// It returns the requested page and the total number of matching users.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]User, int, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	ServiceInterface interface {
		CheckUniqueness(ctx context.Context, email string, excludedIDs ...string) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]User, int, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		Delete(ctx context.Context, ids ...string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		AdminResetPassword(ctx context.Context, caller User, data AdminPasswordReset) error
	}

	service struct {
		repo     Repository
		mailSvc  core.EmailService
		pages    core.Revalidator
		tokenGen tokenGenerator
		validate *validator.Validate // payloads whose failures map to domain errors
		logger   core.Logger
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, pages core.Revalidator, conf *core.Config, logger core.Logger) ServiceInterface {
	return &service{
		repo:     repo,
		mailSvc:  mailSvc,
		pages:    pages,
		tokenGen: newTokenGenerator(conf),
		validate: validator.New(),
		logger:   logger,
	}
}

func (svc *service) revalidate(ctx context.Context, paths ...string) {
	if err := svc.pages.Revalidate(ctx, paths...); err != nil {
		svc.logger.Warn(fmt.Sprintf("revalidating %v: %v", paths, err), err)
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, email string, excludedIDs ...string) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, excludedIDs...); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return errors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Role == "" {
		usr.Role = RoleMember
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	svc.revalidate(ctx, core.PathAdminUsers, core.PathAdmin)
	return usr, nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]User, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	if page == nil {
		page = new(core.Pagination)
	}
	page.Clean()
	return svc.repo.QueryUsers(ctx, filter, ordering, page)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Email = uu.Email
	if uu.Role != "" {
		usr.Role = uu.Role
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()

	usr, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	svc.revalidate(ctx, core.PathAdminUsers)
	return usr, nil
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := svc.repo.DeleteUsersByID(ctx, ids...); err != nil {
		return err
	}
	svc.revalidate(ctx, core.PathAdminUsers, core.PathAdmin)
	return nil
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	token, err := svc.tokenGen.makeToken(usr)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("making password reset token: %v", err), err, usr)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Reset password",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": token,
		},
	})
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	id, err := decodeUID(data.UID)
	if err != nil {
		return ErrInvalidResetLink
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrInvalidResetLink
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokenGen.verifyToken(usr, data.Token); err != nil {
		return ErrInvalidResetLink
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

// AdminResetPassword overwrites the password of another user. The caller's role is read back
// from the store so a stale token cannot grant the privilege.
func (svc *service) AdminResetPassword(ctx context.Context, caller User, data AdminPasswordReset) error {
	current, err := svc.repo.GetUserByID(ctx, caller.ID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.ErrUnauthenticated
		}
		return errors.Wrap(err, "finding caller by ID")
	}
	if !authz.CanResetCredentials(current) {
		return ErrResetForbidden
	}

	if err = data.Validate(svc.validate); err != nil {
		return err
	}

	target, err := svc.repo.GetUserByID(ctx, data.TargetUserID)
	if err != nil {
		return err
	}
	if err = target.SetPassword(data.NewPassword); err != nil {
		return errors.Wrap(err, "setting password")
	}
	target.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateUser(ctx, target); err != nil {
		return errors.Wrap(err, "updating user")
	}
	svc.logger.Info(fmt.Sprintf("password of user %s reset by %s", target.ID, current.ID), current)
	return nil
}
