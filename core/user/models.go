package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/authz"
)

// Roles
const (
	RoleMember     = authz.RoleMember
	RoleAdmin      = authz.RoleAdmin
	RoleSuperAdmin = authz.RoleSuperAdmin
)

var (
	AllRoles = []string{RoleMember, RoleAdmin, RoleSuperAdmin}

	rolePriorities = map[string]int{
		RoleSuperAdmin: 30,
		RoleAdmin:      20,
		RoleMember:     1,
	}

	Roles = []Role{
		{Name: "Member", Value: RoleMember},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Super Admin", Value: RoleSuperAdmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

var _ authz.Subject = User{}

func (u User) SubjectID() string   { return u.ID }
func (u User) SubjectRole() string { return u.Role }
func (u User) SubjectActive() bool { return u.IsActive }

// SetPassword hashes pwd. bcrypt refuses passwords longer than PasswordMaxBytes.
func (u *User) SetPassword(pwd string) error {
	if len(pwd) > PasswordMaxBytes {
		return ErrPasswordTooLong.WithData(map[string]interface{}{"Max": PasswordMaxBytes})
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsAdmin() bool      { return authz.IsAdmin(u) }
func (u User) IsSuperAdmin() bool { return authz.IsSuperAdmin(u) }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,role"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CollapseSpaces(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	if nu.Role == "" {
		nu.Role = RoleMember
	}
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc ServiceInterface) error {
	nu.Clean()
	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string `json:"name"`
	Email           string `json:"email" validate:"omitempty,email"`
	IsActive        *bool  `json:"is_active"`
	Role            string `json:"role" validate:"omitempty,role"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc ServiceInterface) error {
	if name := core.CollapseSpaces(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Email, origUsr.ID)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

// AdminPasswordReset is the payload of the superadmin credential reset.
type AdminPasswordReset struct {
	TargetUserID string `json:"targetUserId" validate:"required"`
	NewPassword  string `json:"newPassword" validate:"required,min=6,max=72"`
}

// Validate reports the first failing rule as the domain error shown to the superadmin.
func (data *AdminPasswordReset) Validate(validate *validator.Validate) error {
	data.TargetUserID = strings.TrimSpace(data.TargetUserID)

	err := validate.Struct(data)
	var fErrs validator.ValidationErrors
	if !errors.As(err, &fErrs) {
		return err
	}
	switch fe := fErrs[0]; {
	case fe.Tag() == "min":
		return ErrPasswordTooShort.WithData(map[string]interface{}{"Min": AdminPasswordMinLen})
	case fe.Tag() == "max":
		return ErrPasswordTooLong.WithData(map[string]interface{}{"Max": PasswordMaxBytes})
	default:
		return ErrResetFieldsMissing
	}
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
