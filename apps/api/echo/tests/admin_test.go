package tests

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/alumni/core/user"
	testutil "github.com/trezcool/alumni/tests"
)

func Test_adminApi_resetPassword(t *testing.T) {
	f := setup(t)

	super := testutil.CreateUser(t, f.usrRepo, "Super", "super@test.id", pwd, user.RoleSuperAdmin, true)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.id", pwd, user.RoleAdmin, true)
	member := testutil.CreateUser(t, f.usrRepo, "Member", "member@test.id", pwd, user.RoleMember, true)
	target := testutil.CreateUser(t, f.usrRepo, "Target", "target@test.id", pwd, user.RoleMember, true)
	ghost := user.User{ID: "ghost", Role: user.RoleSuperAdmin}

	path := "/api/admin/reset-password"
	body := func(targetID, newPwd string) []byte {
		return marchallObj(t, user.AdminPasswordReset{TargetUserID: targetID, NewPassword: newPwd})
	}
	superToken := getToken(t, f.conf, super)

	tests := []httpTest{
		{name: "Auth required", body: body(target.ID, "secret-1"), wantCode: http.StatusUnauthorized, wantData: f.errBody(t, "auth.unauthenticated")},
		{name: "Invalid token", token: "nope", body: body(target.ID, "secret-1"), wantCode: http.StatusUnauthorized, wantData: f.errBody(t, "auth.unauthenticated")},
		{name: "Unknown caller", token: getToken(t, f.conf, ghost), body: body(target.ID, "secret-1"), wantCode: http.StatusUnauthorized, wantData: f.errBody(t, "auth.unauthenticated")},
		{name: "Member caller", token: getToken(t, f.conf, member), body: body(target.ID, "secret-1"), wantCode: http.StatusForbidden, wantData: f.errBody(t, "auth.superadmin_only")},
		{name: "Admin caller", token: getToken(t, f.conf, admin), body: body(target.ID, "secret-1"), wantCode: http.StatusForbidden, wantData: f.errBody(t, "auth.superadmin_only")},
		{
			name: "Admin caller, invalid password", token: getToken(t, f.conf, admin), body: body(target.ID, "abcde"),
			wantCode: http.StatusForbidden, wantData: f.errBody(t, "auth.superadmin_only"),
		},
		{name: "Malformed body", token: superToken, body: []byte(`{"targetUserId": `), wantCode: http.StatusBadRequest, wantData: f.errBody(t, "request.invalid")},
		{name: "Missing fields", token: superToken, body: []byte(`{}`), wantCode: http.StatusBadRequest, wantData: f.errBody(t, "reset.missing_fields")},
		{name: "Missing password", token: superToken, body: body(target.ID, ""), wantCode: http.StatusBadRequest, wantData: f.errBody(t, "reset.missing_fields")},
		{
			name: "5 characters password", token: superToken, body: body(target.ID, "abcde"),
			wantCode: http.StatusBadRequest, wantData: f.errBody(t, "password.too_short", map[string]interface{}{"Min": user.AdminPasswordMinLen}),
		},
		{
			name: "80 characters password", token: superToken, body: body(target.ID, strings.Repeat("a", 80)),
			wantCode: http.StatusBadRequest, wantData: f.errBody(t, "password.too_long", map[string]interface{}{"Max": user.PasswordMaxBytes}),
		},
		{name: "Unknown target", token: superToken, body: body("nope", "secret-1"), wantCode: http.StatusNotFound, wantData: f.errBody(t, "user.not_found")},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = path
	}
	runHTTPTests(t, f, tests)

	// nothing changed so far
	usr, _ := f.usrRepo.GetUserByID(context.Background(), target.ID)
	assert.NoError(t, usr.CheckPassword(pwd))

	t.Run("Localized", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, getToken(t, f.conf, admin), body(target.ID, "secret-1"))
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		f.serve(req, rec)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "Only a superadmin can reset another user's password."}),
		}, rec)
	})

	t.Run("Success", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, superToken, body(target.ID, "abcdef"))
		f.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: f.actionBody(t, "password.reset_done")}, rec)

		usr, _ := f.usrRepo.GetUserByID(context.Background(), target.ID)
		assert.NoError(t, usr.CheckPassword("abcdef"))
		assert.Error(t, usr.CheckPassword(pwd))
	})
}

func Test_adminApi_stats(t *testing.T) {
	f := setup(t)

	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.id", pwd, user.RoleAdmin, true)
	member := testutil.CreateUser(t, f.usrRepo, "Member", "member@test.id", pwd, user.RoleMember, true)

	runHTTPTests(t, f, []httpTest{
		{name: "Auth required", path: "/api/admin/stats", wantCode: http.StatusUnauthorized, wantData: f.errBody(t, "auth.unauthenticated")},
		{name: "Admin required", path: "/api/admin/stats", token: getToken(t, f.conf, member), wantCode: http.StatusForbidden, wantData: f.errBody(t, "auth.forbidden")},
		{name: "Admin", path: "/api/admin/stats", token: getToken(t, f.conf, admin), wantCode: http.StatusOK},
		{name: "Member dashboard", path: "/api/dashboard", token: getToken(t, f.conf, member), wantCode: http.StatusOK},
	})
}
