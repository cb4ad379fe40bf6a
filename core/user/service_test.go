package user_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/user"
	emailsvc "github.com/trezcool/alumni/services/email"
	logsvc "github.com/trezcool/alumni/services/logger"
	inmemdb "github.com/trezcool/alumni/storage/database/inmem"
	testutil "github.com/trezcool/alumni/tests"
)

const pwd = "Passw0rd!x"

func setup(t *testing.T) (user.ServiceInterface, user.Repository) {
	db, _ := inmemdb.Open()
	repo := inmemdb.NewUserRepository(db)
	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()
	core.ParseEmailTemplates(conf, logger)
	svc := user.NewServiceMock(repo, emailsvc.NewConsoleServiceMock(conf, logger), core.NopRevalidator{}, conf, logger)
	return svc, repo
}

func TestService_AdminResetPassword(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	super := testutil.CreateUser(t, repo, "Super", "super@test.com", pwd, user.RoleSuperAdmin, true)
	admin := testutil.CreateUser(t, repo, "Admin", "admin@test.com", pwd, user.RoleAdmin, true)
	member := testutil.CreateUser(t, repo, "Member", "member@test.com", pwd, user.RoleMember, true)
	target := testutil.CreateUser(t, repo, "Target", "target@test.com", pwd, user.RoleMember, true)
	inactiveSuper := testutil.CreateUser(t, repo, "Old Super", "old@test.com", pwd, user.RoleSuperAdmin, false)

	// the role is read from the store, not from the caller value
	staleSuper := member
	staleSuper.Role = user.RoleSuperAdmin

	tests := []struct {
		name    string
		caller  user.User
		data    user.AdminPasswordReset
		wantErr error
	}{
		{"admin caller", admin, user.AdminPasswordReset{TargetUserID: target.ID, NewPassword: "secret-123"}, user.ErrResetForbidden},
		{"member caller", member, user.AdminPasswordReset{TargetUserID: target.ID, NewPassword: "secret-123"}, user.ErrResetForbidden},
		{"member caller, invalid password", member, user.AdminPasswordReset{TargetUserID: target.ID, NewPassword: "abc"}, user.ErrResetForbidden},
		{"stale superadmin claims", staleSuper, user.AdminPasswordReset{TargetUserID: target.ID, NewPassword: "secret-123"}, user.ErrResetForbidden},
		{"inactive superadmin", inactiveSuper, user.AdminPasswordReset{TargetUserID: target.ID, NewPassword: "secret-123"}, user.ErrResetForbidden},
		{"unknown caller", user.User{ID: "nope"}, user.AdminPasswordReset{TargetUserID: target.ID, NewPassword: "secret-123"}, core.ErrUnauthenticated},
		{"missing target", super, user.AdminPasswordReset{NewPassword: "secret-123"}, user.ErrResetFieldsMissing},
		{"missing password", super, user.AdminPasswordReset{TargetUserID: target.ID}, user.ErrResetFieldsMissing},
		{"5 characters password", super, user.AdminPasswordReset{TargetUserID: target.ID, NewPassword: "abcde"}, user.ErrPasswordTooShort},
		{"80 characters password", super, user.AdminPasswordReset{TargetUserID: target.ID, NewPassword: strings.Repeat("a", 80)}, user.ErrPasswordTooLong},
		{"80 bytes password", super, user.AdminPasswordReset{TargetUserID: target.ID, NewPassword: strings.Repeat("é", 40)}, user.ErrPasswordTooLong},
		{"blank target", super, user.AdminPasswordReset{TargetUserID: "  ", NewPassword: "secret-123"}, user.ErrResetFieldsMissing},
		{"unknown target", super, user.AdminPasswordReset{TargetUserID: "nope", NewPassword: "secret-123"}, user.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.AdminResetPassword(ctx, tc.caller, tc.data)
			assert.True(t, errors.Is(err, tc.wantErr), "got %v; want %v", err, tc.wantErr)

			// the password is untouched
			usr, _ := repo.GetUserByID(ctx, target.ID)
			assert.NoError(t, usr.CheckPassword(pwd))
		})
	}

	t.Run("success", func(t *testing.T) {
		err := svc.AdminResetPassword(ctx, super, user.AdminPasswordReset{TargetUserID: " " + target.ID + " ", NewPassword: "abcdef"})
		assert.NoError(t, err)

		usr, _ := repo.GetUserByID(ctx, target.ID)
		assert.NoError(t, usr.CheckPassword("abcdef"))
		assert.Error(t, usr.CheckPassword(pwd))
	})
}

func TestUser_SetPassword(t *testing.T) {
	var usr user.User
	assert.NoError(t, usr.SetPassword(strings.Repeat("a", user.PasswordMaxBytes)))
	assert.NoError(t, usr.CheckPassword(strings.Repeat("a", user.PasswordMaxBytes)))

	err := usr.SetPassword(strings.Repeat("a", user.PasswordMaxBytes+1))
	assert.True(t, errors.Is(err, user.ErrPasswordTooLong))
	assert.Equal(t, core.KindValidation, core.KindOf(err))
}

func TestService_PasswordTooShortData(t *testing.T) {
	svc, repo := setup(t)
	super := testutil.CreateUser(t, repo, "Super", "super@test.com", pwd, user.RoleSuperAdmin, true)

	err := svc.AdminResetPassword(context.Background(), super, user.AdminPasswordReset{TargetUserID: super.ID, NewPassword: "12345"})
	appErr, ok := errors.Cause(err).(*core.AppError)
	if assert.True(t, ok) {
		assert.Equal(t, core.KindValidation, appErr.Kind)
		assert.Equal(t, map[string]interface{}{"Min": user.AdminPasswordMinLen}, appErr.Data)
	}
}

func TestService_Query(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	budi := testutil.CreateUser(t, repo, "Budi Santoso", "budi@test.com", "", user.RoleMember, true)
	ani := testutil.CreateUser(t, repo, "Ani Wijaya", "ani@test.com", "", user.RoleAdmin, true)
	citra := testutil.CreateUser(t, repo, "Citra Lestari", "citra@alumni.id", "", user.RoleMember, false)
	inactive := false

	tests := []struct {
		name      string
		filter    *user.QueryFilter
		ordering  []core.DBOrdering
		page      *core.Pagination
		wantUsers []user.User
		wantCount int
	}{
		{"all", nil, nil, nil, []user.User{ani, budi, citra}, 3},
		{"search email", &user.QueryFilter{Search: "ALUMNI"}, nil, nil, []user.User{citra}, 1},
		{"role", &user.QueryFilter{Roles: []string{user.RoleMember}}, nil, nil, []user.User{budi, citra}, 2},
		{"inactive", &user.QueryFilter{IsActive: &inactive}, nil, nil, []user.User{citra}, 1},
		{"ordering", nil, []core.DBOrdering{{Field: "email", Ascending: false}}, nil, []user.User{citra, budi, ani}, 3},
		{"page", nil, nil, &core.Pagination{Page: 2, PageSize: 2}, []user.User{citra}, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			users, count, err := svc.Query(ctx, tc.filter, tc.ordering, tc.page)
			assert.NoError(t, err)
			assert.Equal(t, tc.wantCount, count)
			assert.Equal(t, tc.wantUsers, users)
		})
	}
}

func TestService_RequestPasswordReset(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()
	emailsvc.ClearSentMessages()

	usr := testutil.CreateUser(t, repo, "Budi", "budi@test.com", pwd, user.RoleMember, true)
	testutil.CreateUser(t, repo, "Gone", "gone@test.com", pwd, user.RoleMember, false)

	assert.True(t, errors.Is(svc.RequestPasswordReset(ctx, "nobody@test.com"), user.ErrNotFound))
	assert.True(t, errors.Is(svc.RequestPasswordReset(ctx, "gone@test.com"), user.ErrNotFound))
	assert.Empty(t, emailsvc.SentMessages())

	assert.NoError(t, svc.RequestPasswordReset(ctx, " BUDI@test.com "))
	sent := emailsvc.SentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, usr.Email, sent[0].To[0].Address)
		assert.Equal(t, "password_reset", sent[0].TemplateName)
	}
}
