package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/alumni/apps/api/echo"
	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/user"
	testutil "github.com/trezcool/alumni/tests"
)

func Test_eventApi_checkIn(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	evt := testutil.CreateEvent(t, f.eventRepo, "Reuni Akbar", time.Now().Add(time.Hour), 0, event.StatusOngoing)
	path := "/api/events/" + evt.ID + "/check-in"

	member := func(name, email, status string) (user.User, event.Participant) {
		usr := testutil.CreateUser(t, f.usrRepo, name, email, pwd, user.RoleMember, true)
		var p event.Participant
		if status != "" {
			p = testutil.CreateParticipant(t, f.eventRepo, evt.ID, usr.ID, status)
		}
		return usr, p
	}
	stranger, _ := member("Stranger", "stranger@test.id", "")
	waiting, waitingP := member("Waiting", "waiting@test.id", event.ParticipantWaitingList)
	cancelled, cancelledP := member("Cancelled", "cancelled@test.id", event.ParticipantCancelled)
	permitted, permittedP := member("Permitted", "permitted@test.id", event.ParticipantPermitted)
	ani, aniP := member("Ani", "ani@test.id", event.ParticipantRegistered)
	gone, goneP := member("Gone", "gone@test.id", event.ParticipantRegistered)
	gone.IsActive = false
	if _, err := f.usrRepo.UpdateUser(ctx, gone); err != nil {
		t.Fatalf("UpdateUser() failed: %v", err)
	}

	// a sanctioned participant has the sanction lifted by the check-in
	aniP.IsSanctioned = true
	if _, err := f.eventRepo.UpdateParticipant(ctx, aniP); err != nil {
		t.Fatalf("UpdateParticipant() failed: %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: f.errBody(t, "auth.unauthenticated")},
		{name: "Not registered", token: getToken(t, f.conf, stranger), wantCode: http.StatusNotFound, wantData: f.errBody(t, "checkin.not_registered")},
		{name: "Waiting List", token: getToken(t, f.conf, waiting), wantCode: http.StatusBadRequest, wantData: f.errBody(t, "checkin.waiting_list")},
		{name: "Cancelled", token: getToken(t, f.conf, cancelled), wantCode: http.StatusBadRequest, wantData: f.errBody(t, "checkin.cancelled")},
		{name: "Permitted", token: getToken(t, f.conf, permitted), wantCode: http.StatusBadRequest, wantData: f.errBody(t, "checkin.permitted")},
		{name: "Deactivated", token: getToken(t, f.conf, gone), wantCode: http.StatusForbidden, wantData: f.errBody(t, "auth.forbidden")},
		{name: "Unknown event", path: "/api/events/nope/check-in", token: getToken(t, f.conf, ani), wantCode: http.StatusNotFound, wantData: f.errBody(t, "checkin.not_registered")},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		if tests[i].path == "" {
			tests[i].path = path
		}
	}
	runHTTPTests(t, f, tests)

	t.Run("Rejected statuses are untouched", func(t *testing.T) {
		for _, orig := range []event.Participant{waitingP, cancelledP, permittedP, goneP} {
			p, err := f.eventRepo.GetParticipantByID(ctx, orig.ID)
			assert.NoError(t, err)
			assert.Equal(t, orig.Status, p.Status)
			assert.True(t, p.CheckedInAt.IsZero())
		}
		assert.Empty(t, f.pages.Revalidated())
	})

	var first echoapi.CheckInResponse
	t.Run("Check-in", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, getToken(t, f.conf, ani))
		f.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)

		unmarshal(t, rec, &first)
		assert.True(t, first.Success)
		assert.False(t, first.AlreadyCheckedIn)
		assert.False(t, first.CheckedInAt.IsZero())
		assert.Equal(t, f.msg("checkin.success"), first.Message)

		p, _ := f.eventRepo.GetParticipantByID(ctx, aniP.ID)
		assert.Equal(t, event.ParticipantCheckedIn, p.Status)
		assert.False(t, p.IsSanctioned)
		assert.Contains(t, f.pages.Revalidated(), core.PathAdminAttendance)
	})

	t.Run("Idempotent", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, getToken(t, f.conf, ani))
		f.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)

		var again echoapi.CheckInResponse
		unmarshal(t, rec, &again)
		assert.True(t, again.Success)
		assert.True(t, again.AlreadyCheckedIn)
		assert.True(t, first.CheckedInAt.Equal(again.CheckedInAt))
		assert.Equal(t, f.msg("checkin.already"), again.Message)
	})
}

func Test_eventApi_register(t *testing.T) {
	f := setup(t)

	evt := testutil.CreateEvent(t, f.eventRepo, "Seminar Karier", time.Now().Add(24*time.Hour), 1)
	closed := testutil.CreateEvent(t, f.eventRepo, "Reuni 2019", time.Now().Add(-24*time.Hour), 0, event.StatusCompleted)
	budi := testutil.CreateUser(t, f.usrRepo, "Budi", "budi@test.id", pwd, user.RoleMember, true)
	citra := testutil.CreateUser(t, f.usrRepo, "Citra", "citra@test.id", pwd, user.RoleMember, true)

	register := func(t *testing.T, eventID string, usr user.User) (int, echoapi.ActionResponse) {
		req, rec := newAuthRequest(http.MethodPost, "/api/events/"+eventID+"/register", getToken(t, f.conf, usr))
		f.serve(req, rec)
		var resp echoapi.ActionResponse
		unmarshal(t, rec, &resp)
		return rec.Code, resp
	}

	t.Run("Registered", func(t *testing.T) {
		code, resp := register(t, evt.ID, budi)
		assert.Equal(t, http.StatusCreated, code)
		assert.Equal(t, f.msg("registration.success"), resp.Message)
	})
	t.Run("Waiting List when full", func(t *testing.T) {
		code, resp := register(t, evt.ID, citra)
		assert.Equal(t, http.StatusCreated, code)
		assert.Equal(t, f.msg("registration.waiting_list"), resp.Message)
	})

	runHTTPTests(t, f, []httpTest{
		{
			name: "Already registered", method: http.MethodPost, path: "/api/events/" + evt.ID + "/register", token: getToken(t, f.conf, budi),
			wantCode: http.StatusConflict, wantData: f.errBody(t, "registration.exists"),
		},
		{
			name: "Registration closed", method: http.MethodPost, path: "/api/events/" + closed.ID + "/register", token: getToken(t, f.conf, budi),
			wantCode: http.StatusBadRequest, wantData: f.errBody(t, "registration.closed"),
		},
		{
			name: "Unknown event", method: http.MethodPost, path: "/api/events/nope/register", token: getToken(t, f.conf, budi),
			wantCode: http.StatusNotFound, wantData: f.errBody(t, "event.not_found"),
		},
	})

	t.Run("Cancel promotes the waiting list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/api/events/"+evt.ID+"/register", getToken(t, f.conf, budi))
		f.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)

		p, err := f.eventRepo.GetParticipant(context.Background(), evt.ID, citra.ID)
		assert.NoError(t, err)
		assert.Equal(t, event.ParticipantRegistered, p.Status)
	})
}

func Test_eventApi_manage(t *testing.T) {
	f := setup(t)

	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.id", pwd, user.RoleAdmin, true)
	member := testutil.CreateUser(t, f.usrRepo, "Member", "member@test.id", pwd, user.RoleMember, true)
	adminToken, memberToken := getToken(t, f.conf, admin), getToken(t, f.conf, member)

	newEvent := marchallObj(t, event.NewEvent{
		Title:    "  Reuni   Akbar 2024 ",
		StartsAt: time.Now().Add(48 * time.Hour),
		Capacity: 100,
	})

	runHTTPTests(t, f, []httpTest{
		{name: "Member cannot create", method: http.MethodPost, path: "/api/events", token: memberToken, body: newEvent, wantCode: http.StatusForbidden, wantData: f.errBody(t, "auth.forbidden")},
		{name: "Invalid event", method: http.MethodPost, path: "/api/events", token: adminToken, body: []byte(`{"capacity": 10}`), wantCode: http.StatusBadRequest},
	})

	var created struct {
		echoapi.ActionResponse
		Data event.Event `json:"data"`
	}
	t.Run("Create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/events", adminToken, newEvent)
		f.serve(req, rec)
		assert.Equal(t, http.StatusCreated, rec.Code)
		unmarshal(t, rec, &created)
		assert.Equal(t, "Reuni Akbar 2024", created.Data.Title)
		assert.Equal(t, "reuni-akbar-2024", created.Data.Slug)
		assert.Equal(t, event.StatusUpcoming, created.Data.Status)
		assert.Contains(t, f.publisher.Topics(), core.TopicEventCreated)
	})

	t.Run("Query", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/events?search=akbar&page_size=5", memberToken)
		f.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)

		var page struct {
			echoapi.PageResponse
			Results []event.Event `json:"results"`
		}
		unmarshal(t, rec, &page)
		assert.Equal(t, 1, page.Count)
		assert.Equal(t, 5, page.PageSize)
		if assert.Len(t, page.Results, 1) {
			assert.Equal(t, created.Data.ID, page.Results[0].ID)
		}
	})

	t.Run("Attendance", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/events/"+created.Data.ID+"/attendance", adminToken)
		f.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, event.Attendance{})}, rec)
	})

	t.Run("Delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/api/events/"+created.Data.ID, adminToken)
		f.serve(req, rec)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/api/events/"+created.Data.ID, memberToken)
		f.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: f.errBody(t, "event.not_found")}, rec)
	})
}
