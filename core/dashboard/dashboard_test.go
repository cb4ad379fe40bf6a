package dashboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/dashboard"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/profile"
	"github.com/trezcool/alumni/core/user"
	"github.com/trezcool/alumni/services/broker"
	cachesvc "github.com/trezcool/alumni/services/cache"
	emailsvc "github.com/trezcool/alumni/services/email"
	logsvc "github.com/trezcool/alumni/services/logger"
	inmemdb "github.com/trezcool/alumni/storage/database/inmem"
	testutil "github.com/trezcool/alumni/tests"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	db, _ := inmemdb.Open()
	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()
	publisher, pages := broker.NewMockPublisher(), cachesvc.NewMemoryCache(0)

	usrRepo := inmemdb.NewUserRepository(db)
	profileRepo := inmemdb.NewProfileRepository(db)
	eventRepo := inmemdb.NewEventRepository(db)
	profileSvc := profile.NewService(profile.Deps{
		Repo:         profileRepo,
		Universities: inmemdb.NewUniversityRepository(db),
		Users:        usrRepo,
		MailSvc:      emailsvc.NewConsoleServiceMock(conf, logger),
		Publisher:    publisher,
		Pages:        pages,
		Logger:       logger,
	})
	eventSvc := event.NewService(eventRepo, publisher, pages, logger)
	svc := dashboard.NewService(profileSvc, eventSvc)

	now := time.Now().UTC()
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.com", "", user.RoleAdmin, true)
	budi := testutil.CreateUser(t, usrRepo, "Budi", "budi@test.com", "", user.RoleMember, true)
	ani := testutil.CreateUser(t, usrRepo, "Ani", "ani@test.com", "", user.RoleMember, true)
	testutil.CreateProfile(t, profileRepo, profile.Profile{UserID: budi.ID, FullName: "Budi Santoso", Status: profile.StatusActive})

	past := testutil.CreateEvent(t, eventRepo, "Past", now.Add(-48*time.Hour), 0, event.StatusCompleted)
	soon := testutil.CreateEvent(t, eventRepo, "Soon", now.Add(24*time.Hour), 0)
	dropped := testutil.CreateEvent(t, eventRepo, "Dropped", now.Add(48*time.Hour), 0)
	testutil.CreateParticipant(t, eventRepo, past.ID, budi.ID, event.ParticipantRegistered)
	testutil.CreateParticipant(t, eventRepo, soon.ID, budi.ID, event.ParticipantRegistered)
	testutil.CreateParticipant(t, eventRepo, dropped.ID, budi.ID, event.ParticipantCancelled)
	_, err := eventSvc.SelfCheckIn(ctx, budi, past.ID)
	assert.NoError(t, err)

	t.Run("member", func(t *testing.T) {
		dash, err := svc.Member(ctx, budi)
		assert.NoError(t, err)
		assert.True(t, dash.HasProfile)
		assert.Equal(t, "Budi Santoso", dash.Profile.FullName)
		assert.Equal(t, event.Attendance{CheckedIn: 1, Rate: 100}, dash.Attendance)
		if assert.Len(t, dash.UpcomingEvents, 1) {
			assert.Equal(t, soon.ID, dash.UpcomingEvents[0].Event.ID)
		}
	})

	t.Run("member without profile", func(t *testing.T) {
		dash, err := svc.Member(ctx, ani)
		assert.NoError(t, err)
		assert.False(t, dash.HasProfile)
		assert.Empty(t, dash.UpcomingEvents)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := svc.Member(ctx, nil)
		assert.Equal(t, core.ErrUnauthenticated, err)
		_, err = svc.Admin(ctx, nil)
		assert.Equal(t, core.ErrUnauthenticated, err)
	})

	t.Run("admin", func(t *testing.T) {
		_, err := svc.Admin(ctx, budi)
		assert.Equal(t, core.ErrForbidden, err)

		stats, err := svc.Admin(ctx, admin)
		assert.NoError(t, err)
		assert.Equal(t, 1, stats.Profiles[profile.StatusActive])
		assert.Equal(t, 0, stats.Profiles[profile.StatusPending])
		assert.Equal(t, 2, stats.Events[event.StatusUpcoming])
		assert.Equal(t, 1, stats.Events[event.StatusCompleted])
		assert.Equal(t, event.Attendance{CheckedIn: 1, Rate: 100}, stats.Attendance)
	})
}
