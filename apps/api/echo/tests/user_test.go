package tests

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/alumni/apps/api/echo"
	"github.com/trezcool/alumni/core/profile"
	"github.com/trezcool/alumni/core/user"
	testutil "github.com/trezcool/alumni/tests"
)

func Test_userApi_query(t *testing.T) {
	f := setup(t)

	path := func(search string, isActive *bool, page, pageSize int, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		if page > 0 {
			v.Add("page", strconv.Itoa(page))
		}
		if pageSize > 0 {
			v.Add("page_size", strconv.Itoa(pageSize))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/api/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.id", pwd, user.RoleAdmin, true)
	ani := testutil.CreateUser(t, f.usrRepo, "Ani Wijaya", "ani@test.id", pwd, user.RoleMember, true)
	budi := testutil.CreateUser(t, f.usrRepo, "Budi Santoso", "budi@test.id", pwd, user.RoleMember, false)
	citra := testutil.CreateUser(t, f.usrRepo, "Citra Lestari", "citra@alumni.id", pwd, user.RoleMember, true)
	adminToken := getToken(t, f.conf, admin)

	page := func(count, page, pageSize int, users ...user.User) []byte {
		if users == nil {
			users = []user.User{}
		}
		return marchallObj(t, echoapi.PageResponse{Count: count, Page: page, PageSize: pageSize, Results: users})
	}

	runHTTPTests(t, f, []httpTest{
		{name: "Auth required", path: path("", nil, 0, 0), wantCode: http.StatusUnauthorized, wantData: f.errBody(t, "auth.unauthenticated")},
		{name: "Admin required", path: path("", nil, 0, 0), token: getToken(t, f.conf, ani), wantCode: http.StatusForbidden, wantData: f.errBody(t, "auth.forbidden")},
		{name: "All", path: path("", nil, 0, 0), token: adminToken, wantData: page(4, 1, 20, admin, ani, budi, citra)},
		{name: "Search", path: path("alumni", nil, 0, 0), token: adminToken, wantData: page(1, 1, 20, citra)},
		{name: "Inactive", path: path("", bPtr(false), 0, 0), token: adminToken, wantData: page(1, 1, 20, budi)},
		{name: "Role", path: path("", nil, 0, 0, user.RoleAdmin), token: adminToken, wantData: page(1, 1, 20, admin)},
		{name: "Active members", path: path("", bPtr(true), 0, 0, user.RoleMember), token: adminToken, wantData: page(2, 1, 20, ani, citra)},
		{name: "Paginated", path: path("", nil, 2, 2), token: adminToken, wantData: page(4, 2, 2, budi, citra)},
		{name: "Past the last page", path: path("", nil, 5, 2), token: adminToken, wantData: page(4, 5, 2)},
		{name: "Ordering", path: "/api/users?ordering=-name&page_size=1", token: adminToken, wantData: page(4, 1, 1, citra)},
		{name: "Roles", path: "/api/users/roles", token: adminToken, wantData: marchallObj(t, user.Roles)},
	})
}

func Test_userApi_register(t *testing.T) {
	f := setup(t)

	ui := testutil.CreateUniversity(t, f.uniRepo, "UNIVERSITAS INDONESIA", true)
	closed := testutil.CreateUniversity(t, f.uniRepo, "UNIVERSITAS LAMA", false)
	testutil.CreateUser(t, f.usrRepo, "Taken", "taken@test.id", pwd, user.RoleMember, true)

	body := func(email string, universityID int, role string) []byte {
		return marchallObj(t, echoapi.RegisterRequest{
			NewUser: user.NewUser{
				Name:            "  Dewi   Anggraini ",
				Email:           email,
				Password:        pwd,
				PasswordConfirm: pwd,
				Role:            role,
			},
			Phone:          "+6281234567890",
			UniversityID:   universityID,
			EntryYear:      2015,
			GraduationYear: 2019,
		})
	}
	path := "/api/auth/register"

	longPwd := "Aa1!" + strings.Repeat("x", 76)
	longPwdBody := marchallObj(t, echoapi.RegisterRequest{
		NewUser: user.NewUser{Name: "Dewi", Email: "dewi@test.id", Password: longPwd, PasswordConfirm: longPwd},
	})

	runHTTPTests(t, f, []httpTest{
		{name: "Malformed body", method: http.MethodPost, path: path, body: []byte(`{"name"`), wantCode: http.StatusBadRequest, wantData: f.errBody(t, "request.invalid")},
		{name: "Missing fields", method: http.MethodPost, path: path, body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{name: "Email taken", method: http.MethodPost, path: path, body: body("TAKEN@test.id", ui.ID, ""), wantCode: http.StatusBadRequest},
		{
			name: "80 bytes password", method: http.MethodPost, path: path, body: longPwdBody,
			wantCode: http.StatusBadRequest, wantData: f.fieldsBody(t, map[string]string{"password": "password must not be longer than 72 bytes"}),
		},
		{
			name: "Inactive university", method: http.MethodPost, path: path, body: body("dewi@test.id", closed.ID, ""),
			wantCode: http.StatusBadRequest, wantData: f.errBody(t, "profile.invalid_university"),
		},
	})

	t.Run("Failed profile rolls the account back", func(t *testing.T) {
		_, err := f.usrRepo.GetUserByEmail(context.Background(), "dewi@test.id")
		assert.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("Registered as a member with a Pending profile", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, path, body(" Dewi@Test.id ", ui.ID, user.RoleSuperAdmin))
		f.serve(req, rec)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp struct {
			echoapi.ActionResponse
			Data echoapi.RegisterResponse `json:"data"`
		}
		unmarshal(t, rec, &resp)
		assert.Equal(t, f.msg("account.registered"), resp.Message)
		assert.Equal(t, "Dewi Anggraini", resp.Data.User.Name)
		assert.Equal(t, "dewi@test.id", resp.Data.User.Email)
		assert.Equal(t, user.RoleMember, resp.Data.User.Role)
		assert.Equal(t, profile.StatusPending, resp.Data.Profile.Status)
		assert.Equal(t, ui.ID, resp.Data.Profile.UniversityID)

		_, err := f.profileRepo.GetProfileByUserID(context.Background(), resp.Data.User.ID)
		assert.NoError(t, err)
	})
}

func Test_userApi_login(t *testing.T) {
	f := setup(t)

	ani := testutil.CreateUser(t, f.usrRepo, "Ani", "ani@test.id", pwd, user.RoleMember, true)
	testutil.CreateUser(t, f.usrRepo, "Budi", "budi@test.id", pwd, user.RoleMember, false)

	body := func(email, password string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Email: email, Password: password})
	}
	path := "/api/auth/login"

	runHTTPTests(t, f, []httpTest{
		{name: "Invalid email", method: http.MethodPost, path: path, body: body("ani", pwd), wantCode: http.StatusBadRequest},
		{name: "Unknown email", method: http.MethodPost, path: path, body: body("nope@test.id", pwd), wantCode: http.StatusBadRequest, wantData: f.errBody(t, "auth.failed")},
		{name: "Wrong password", method: http.MethodPost, path: path, body: body("ani@test.id", "wrong"), wantCode: http.StatusBadRequest, wantData: f.errBody(t, "auth.failed")},
		{name: "Deactivated", method: http.MethodPost, path: path, body: body("budi@test.id", pwd), wantCode: http.StatusForbidden, wantData: f.errBody(t, "auth.deactivated")},
	})

	t.Run("Success", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, path, body(" ANI@test.id", pwd))
		f.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp echoapi.LoginResponse
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)

		req, rec = newAuthRequest(http.MethodGet, "/api/auth/me", resp.Token)
		f.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)

		var me user.User
		unmarshal(t, rec, &me)
		assert.Equal(t, ani.ID, me.ID)
		assert.False(t, me.LastLogin.IsZero())
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	f := setup(t)

	ani := testutil.CreateUser(t, f.usrRepo, "Ani", "ani@test.id", pwd, user.RoleMember, true)
	budi := testutil.CreateUser(t, f.usrRepo, "Budi", "budi@test.id", pwd, user.RoleMember, false)

	stale := time.Now().Add(-f.conf.Server.JWTRefreshExpirationDelta - time.Minute).Unix()
	staleToken, err := echoapi.GenerateToken(f.conf, echoapi.GetUserClaims(f.conf, ani, stale))
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	path := "/api/auth/token-refresh"
	runHTTPTests(t, f, []httpTest{
		{name: "Auth required", method: http.MethodPost, path: path, wantCode: http.StatusUnauthorized, wantData: f.errBody(t, "auth.unauthenticated")},
		{name: "Deactivated", method: http.MethodPost, path: path, token: getToken(t, f.conf, budi), wantCode: http.StatusForbidden, wantData: f.errBody(t, "auth.deactivated")},
		{name: "Refresh expired", method: http.MethodPost, path: path, token: staleToken, wantCode: http.StatusForbidden, wantData: f.errBody(t, "auth.refresh_expired")},
		{name: "Refreshed", method: http.MethodPost, path: path, token: getToken(t, f.conf, ani)},
	})
}

func Test_userApi_detail(t *testing.T) {
	f := setup(t)

	super := testutil.CreateUser(t, f.usrRepo, "Super", "super@test.id", pwd, user.RoleSuperAdmin, true)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.id", pwd, user.RoleAdmin, true)
	ani := testutil.CreateUser(t, f.usrRepo, "Ani", "ani@test.id", pwd, user.RoleMember, true)
	budi := testutil.CreateUser(t, f.usrRepo, "Budi", "budi@test.id", pwd, user.RoleMember, true)
	adminToken, aniToken := getToken(t, f.conf, admin), getToken(t, f.conf, ani)

	runHTTPTests(t, f, []httpTest{
		{name: "Self", path: "/api/users/" + ani.ID, token: aniToken, wantData: marchallObj(t, ani)},
		{name: "Somebody else", path: "/api/users/" + budi.ID, token: aniToken, wantCode: http.StatusNotFound, wantData: f.errBody(t, "user.not_found")},
		{name: "Admin", path: "/api/users/" + budi.ID, token: adminToken, wantData: marchallObj(t, budi)},
		{name: "Unknown", path: "/api/users/nope", token: adminToken, wantCode: http.StatusNotFound, wantData: f.errBody(t, "user.not_found")},
		{
			name: "Member cannot change its role", method: http.MethodPut, path: "/api/users/" + ani.ID, token: aniToken,
			body: []byte(`{"role": "admin"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "Admin cannot grant superadmin", method: http.MethodPut, path: "/api/users/" + budi.ID, token: adminToken,
			body: []byte(`{"role": "superadmin"}`), wantCode: http.StatusBadRequest,
		},
		{name: "Member cannot delete", method: http.MethodDelete, path: "/api/users/" + budi.ID, token: aniToken, wantCode: http.StatusNotFound},
		{name: "No self deletion", method: http.MethodDelete, path: "/api/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden, wantData: f.errBody(t, "auth.forbidden")},
		{name: "Higher role", method: http.MethodDelete, path: "/api/users/" + super.ID, token: adminToken, wantCode: http.StatusForbidden, wantData: f.errBody(t, "auth.forbidden")},
	})

	t.Run("Rename self", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/users/"+ani.ID, aniToken, []byte(`{"name": "  Ani   Wijaya "}`))
		f.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)

		var usr user.User
		unmarshal(t, rec, &usr)
		assert.Equal(t, "Ani Wijaya", usr.Name)
		assert.Equal(t, ani.Email, usr.Email)
	})

	t.Run("Delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/api/users/"+budi.ID, adminToken)
		f.serve(req, rec)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		_, err := f.usrRepo.GetUserByID(context.Background(), budi.ID)
		assert.ErrorIs(t, err, user.ErrNotFound)
	})
}
