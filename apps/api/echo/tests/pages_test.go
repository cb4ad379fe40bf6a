package tests

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/alumni/apps/api/echo"
	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/user"
	testutil "github.com/trezcool/alumni/tests"
)

func (f *fixture) newPageRequest(method, path string, usr *user.User, form url.Values) (*http.Request, *httptest.ResponseRecorder) {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if usr != nil {
		req.AddCookie(&http.Cookie{Name: f.conf.Server.SessionCookie, Value: f.sessionToken(usr)})
	}
	return req, httptest.NewRecorder()
}

func (f *fixture) sessionToken(usr *user.User) string {
	token, err := echoapi.GenerateToken(f.conf, echoapi.GetUserClaims(f.conf, *usr))
	if err != nil {
		panic(err)
	}
	return token
}

func Test_pages_guard(t *testing.T) {
	f := setup(t)

	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.id", pwd, user.RoleAdmin, true)
	member := testutil.CreateUser(t, f.usrRepo, "Member", "member@test.id", pwd, user.RoleMember, true)
	inactive := testutil.CreateUser(t, f.usrRepo, "Inactive", "inactive@test.id", pwd, user.RoleMember, false)
	ghost := user.User{ID: "ghost", Role: user.RoleAdmin, IsActive: true}

	tests := []struct {
		name         string
		path         string
		usr          *user.User
		wantCode     int
		wantLocation string
	}{
		{name: "Anonymous home", path: "/", wantCode: http.StatusFound, wantLocation: "/login?next=%2F"},
		{name: "Anonymous dashboard", path: core.PathDashboard, wantCode: http.StatusFound, wantLocation: "/login?next=%2Fdashboard"},
		{name: "Anonymous admin", path: core.PathAdminMasterData + "?tab=1", wantCode: http.StatusFound, wantLocation: "/login?next=%2Fadmin%2Fmaster-data%3Ftab%3D1"},
		{name: "Anonymous login", path: echoapi.PathLogin, wantCode: http.StatusOK},
		{name: "Anonymous register", path: core.PathRegister, wantCode: http.StatusOK},
		{name: "Deactivated session", path: core.PathDashboard, usr: &inactive, wantCode: http.StatusFound, wantLocation: "/login?next=%2Fdashboard"},
		{name: "Unknown session user", path: core.PathAdmin, usr: &ghost, wantCode: http.StatusFound, wantLocation: "/login?next=%2Fadmin"},
		{name: "Member home", path: "/", usr: &member, wantCode: http.StatusFound, wantLocation: core.PathDashboard},
		{name: "Member login page", path: echoapi.PathLogin, usr: &member, wantCode: http.StatusFound, wantLocation: core.PathDashboard},
		{name: "Member admin area", path: core.PathAdmin, usr: &member, wantCode: http.StatusFound, wantLocation: core.PathDashboard},
		{name: "Member dashboard", path: core.PathDashboard, usr: &member, wantCode: http.StatusOK},
		{name: "Admin home", path: "/", usr: &admin, wantCode: http.StatusFound, wantLocation: core.PathAdmin},
		{name: "Admin register page", path: core.PathRegister, usr: &admin, wantCode: http.StatusFound, wantLocation: core.PathAdmin},
		{name: "Admin area", path: core.PathAdmin, usr: &admin, wantCode: http.StatusOK},
		{name: "Admin master data", path: core.PathAdminMasterData, usr: &admin, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := f.newPageRequest(http.MethodGet, tt.path, tt.usr, nil)
			f.serve(req, rec)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
		})
	}
}

func Test_pages_login(t *testing.T) {
	f := setup(t)

	testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.id", pwd, user.RoleAdmin, true)
	testutil.CreateUser(t, f.usrRepo, "Super", "super@test.id", pwd, user.RoleSuperAdmin, true)
	testutil.CreateUser(t, f.usrRepo, "Member", "member@test.id", pwd, user.RoleMember, true)
	testutil.CreateUser(t, f.usrRepo, "Inactive", "inactive@test.id", pwd, user.RoleMember, false)

	form := func(email, password, next string) url.Values {
		return url.Values{"email": {email}, "password": {password}, "next": {next}}
	}

	t.Run("Failures re-render the form", func(t *testing.T) {
		for email, key := range map[string]string{"member@test.id": "auth.failed", "inactive@test.id": "auth.deactivated"} {
			password := pwd
			if key == "auth.failed" {
				password = "wrong"
			}
			req, rec := f.newPageRequest(http.MethodPost, echoapi.PathLogin, nil, form(email, password, ""))
			f.serve(req, rec)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), f.msg(key))
			assert.Contains(t, rec.Body.String(), email)
			assert.Empty(t, rec.Result().Cookies())
		}
	})

	tests := []struct {
		name         string
		email        string
		next         string
		wantLocation string
	}{
		{name: "Member", email: "MEMBER@test.id", wantLocation: core.PathDashboard},
		{name: "Admin", email: "admin@test.id", wantLocation: core.PathAdmin},
		{name: "Superadmin", email: "super@test.id", wantLocation: core.PathAdmin},
		{name: "Next", email: "admin@test.id", next: core.PathAdminMasterData, wantLocation: core.PathAdminMasterData},
		{name: "External next", email: "member@test.id", next: "//evil.example", wantLocation: core.PathDashboard},
		{name: "Absolute next", email: "member@test.id", next: "https://evil.example/x", wantLocation: core.PathDashboard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := f.newPageRequest(http.MethodPost, echoapi.PathLogin, nil, form(tt.email, pwd, tt.next))
			f.serve(req, rec)
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))

			cookies := rec.Result().Cookies()
			if assert.Len(t, cookies, 1) {
				assert.Equal(t, f.conf.Server.SessionCookie, cookies[0].Name)
				assert.NotEmpty(t, cookies[0].Value)
				assert.True(t, cookies[0].HttpOnly)
			}
		})
	}

	t.Run("Logout", func(t *testing.T) {
		req, rec := f.newPageRequest(http.MethodPost, echoapi.PathLogout, nil, url.Values{})
		f.serve(req, rec)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, echoapi.PathLogin, rec.Header().Get("Location"))

		cookies := rec.Result().Cookies()
		if assert.Len(t, cookies, 1) {
			assert.Empty(t, cookies[0].Value)
			assert.True(t, cookies[0].MaxAge < 0)
		}
	})
}

func Test_pages_cache(t *testing.T) {
	f := setup(t)

	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.id", pwd, user.RoleAdmin, true)
	ani := testutil.CreateUser(t, f.usrRepo, "Ani", "ani@test.id", pwd, user.RoleMember, true)
	budi := testutil.CreateUser(t, f.usrRepo, "Budi", "budi@test.id", pwd, user.RoleMember, true)
	testutil.CreateUniversity(t, f.uniRepo, "UNIVERSITAS INDONESIA", true)

	get := func(t *testing.T, path string, usr *user.User) *httptest.ResponseRecorder {
		req, rec := f.newPageRequest(http.MethodGet, path, usr, nil)
		f.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)
		return rec
	}

	t.Run("Shared page", func(t *testing.T) {
		rec := get(t, core.PathAdminMasterData, &admin)
		assert.Equal(t, "MISS", rec.Header().Get("X-Page-Cache"))
		assert.Contains(t, rec.Body.String(), "UNIVERSITAS INDONESIA")

		rec = get(t, core.PathAdminMasterData, &admin)
		assert.Equal(t, "HIT", rec.Header().Get("X-Page-Cache"))
	})

	t.Run("Revalidated by a mutation", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/universities", getToken(t, f.conf, admin), []byte(`{"name": "universitas padjadjaran"}`))
		f.serve(req, rec)
		assert.Equal(t, http.StatusCreated, rec.Code)

		rec = get(t, core.PathAdminMasterData, &admin)
		assert.Equal(t, "MISS", rec.Header().Get("X-Page-Cache"))
		assert.Contains(t, rec.Body.String(), "UNIVERSITAS PADJADJARAN")

		rec = get(t, core.PathRegister, nil)
		assert.Equal(t, "MISS", rec.Header().Get("X-Page-Cache"))
		assert.Contains(t, rec.Body.String(), "UNIVERSITAS PADJADJARAN")
	})

	t.Run("Per user page", func(t *testing.T) {
		rec := get(t, core.PathDashboard, &ani)
		assert.Equal(t, "MISS", rec.Header().Get("X-Page-Cache"))
		assert.Contains(t, rec.Body.String(), "Ani")

		rec = get(t, core.PathDashboard, &budi)
		assert.Equal(t, "MISS", rec.Header().Get("X-Page-Cache"))
		assert.Contains(t, rec.Body.String(), "Budi")

		rec = get(t, core.PathDashboard, &ani)
		assert.Equal(t, "HIT", rec.Header().Get("X-Page-Cache"))
		assert.Contains(t, rec.Body.String(), "Ani")
	})
}
