package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/authz"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/user"
	"github.com/trezcool/alumni/services/broker"
	emailsvc "github.com/trezcool/alumni/services/email"
	logsvc "github.com/trezcool/alumni/services/logger"
	"github.com/trezcool/alumni/services/notify"
	inmemdb "github.com/trezcool/alumni/storage/database/inmem"
	testutil "github.com/trezcool/alumni/tests"
)

type notifications struct {
	mu   sync.Mutex
	list []core.Notification
}

func (n *notifications) render(notif core.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, notif)
}

func (n *notifications) all() []core.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.Notification(nil), n.list...)
}

type fixture struct {
	cli       *commandLine
	out       *bytes.Buffer
	usrRepo   user.Repository
	eventRepo event.Repository
	notifs    *notifications
}

func setup(t *testing.T) *fixture {
	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	f := &fixture{
		out:       new(bytes.Buffer),
		usrRepo:   inmemdb.NewUserRepository(db),
		eventRepo: inmemdb.NewEventRepository(db),
		notifs:    new(notifications),
	}
	f.cli = &commandLine{
		db:       new(sqlx.DB),
		validate: validator.New(),
		usrRepo:  f.usrRepo,
		usrSvc:   user.NewService(f.usrRepo, emailsvc.NewConsoleServiceMock(conf, logger), core.NopRevalidator{}, conf, logger),
		eventSvc: event.NewService(f.eventRepo, broker.NewMockPublisher(), core.NopRevalidator{}, logger),
		notifier: notify.NewQueue(f.notifs.render, 4),
		out:      f.out,
	}
	t.Cleanup(f.cli.notifier.Close)
	return f
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, f *fixture, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readPasswordFunc = func(int) ([]byte, error) { return []byte(tt.pwd), nil }

			err := f.cli.run(append([]string{"admin"}, tt.args...))
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
				if check != nil {
					check(t, tt)
				}
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	f := setup(t)

	var gotCommand string
	var gotArgs []string
	migrateFunc = func(_ context.Context, _ *sqlx.DB, command string, args ...string) error {
		gotCommand, gotArgs = command, args
		switch command {
		case "up", "down", "redo", "reset", "status", "version":
			return nil
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
			return nil
		}
		return fmt.Errorf("%q: no such command", command)
	}

	runCLITests(t, f, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
	}, nil)

	assert.Equal(t, "up-to", gotCommand)
	assert.Equal(t, []string{"2"}, gotArgs)

	t.Run("no database", func(t *testing.T) {
		f.cli.db = nil
		assert.ErrorIs(t, f.cli.run([]string{"admin", "migrate", "up"}), errNoDatabase)
	})
}

func Test_commandLine_addUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	existing := testutil.CreateUser(t, f.usrRepo, "Old Name", "budi@test.id", "Passw0rd!x", user.RoleMember, false)

	runCLITests(t, f, []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email but no name", args: []string{"adduser", "-email", "ani@test.id"}, pwd: "s3cret-pwd", wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Ani", "-email", "ani@test.id"}, wantErr: errHelp},
		{name: "invalid role", args: []string{"adduser", "-name", "Ani", "-email", "ani@test.id", "-role", "king"}, pwd: "s3cret-pwd", wantErrStr: `invalid role "king"`},
	}, nil)

	t.Run("create", func(t *testing.T) {
		readPasswordFunc = func(int) ([]byte, error) { return []byte("s3cret-pwd"), nil }
		err := f.cli.run([]string{"admin", "adduser", "-name", " Ani  Wijaya", "-email", "ANI@test.id", "-role", user.RoleSuperAdmin})
		assert.NoError(t, err)

		usr, err := f.usrRepo.GetUserByEmail(ctx, "ani@test.id")
		if assert.NoError(t, err) {
			assert.Equal(t, "Ani Wijaya", usr.Name)
			assert.Equal(t, user.RoleSuperAdmin, usr.Role)
			assert.True(t, usr.IsActive)
			assert.NoError(t, usr.CheckPassword("s3cret-pwd"))
		}
	})

	t.Run("update", func(t *testing.T) {
		readPasswordFunc = func(int) ([]byte, error) { return []byte("n3w-pwd"), nil }
		err := f.cli.run([]string{"admin", "adduser", "-name", "Budi", "-email", existing.Email, "-role", user.RoleAdmin})
		assert.NoError(t, err)

		usr, _ := f.usrRepo.GetUserByID(ctx, existing.ID)
		assert.Equal(t, "Budi", usr.Name)
		assert.Equal(t, user.RoleAdmin, usr.Role)
		assert.True(t, usr.IsActive)
		assert.NoError(t, usr.CheckPassword("n3w-pwd"))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	f := setup(t)

	usr := testutil.CreateUser(t, f.usrRepo, "User", "awe@test.id", "Passw0rd!x", user.RoleMember, true)

	runCLITests(t, f, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.id"}, wantErr: errHelp},
		{name: "password too short", args: []string{"resetpassword", "-email", usr.Email}, pwd: "abc", wantErr: user.ErrPasswordTooShort},
		{name: "password too long", args: []string{"resetpassword", "-email", usr.Email}, pwd: strings.Repeat("a", 80), wantErr: user.ErrPasswordTooLong},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.id"}, pwd: "lolilol", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, pwd: "lolilol"},
		{name: "reset, email case", args: []string{"resetpassword", "-email", "AWE@test.id"}, pwd: "lmaooo"},
	}, func(t *testing.T, tt cliTest) {
		refreshed, err := f.usrRepo.GetUserByID(context.Background(), usr.ID)
		if err != nil {
			t.Fatalf("GetUserByID() failed, %v", err)
		}
		assert.NoError(t, refreshed.CheckPassword(tt.pwd))
	})
}

type failingUserService struct {
	user.ServiceInterface
}

func (failingUserService) Delete(context.Context, ...string) error {
	return errors.New("connection reset")
}

func Test_commandLine_users(t *testing.T) {
	f := setup(t)

	ani := testutil.CreateUser(t, f.usrRepo, "Ani", "ani@test.id", "Passw0rd!x", user.RoleMember, true)
	budi := testutil.CreateUser(t, f.usrRepo, "Budi", "budi@test.id", "Passw0rd!x", user.RoleAdmin, true)
	testutil.CreateUser(t, f.usrRepo, "Citra", "citra@test.id", "Passw0rd!x", user.RoleMember, true)
	testutil.CreateEvent(t, f.eventRepo, "Reuni Akbar", time.Now().Add(time.Hour), 0)

	t.Run("list", func(t *testing.T) {
		f.out.Reset()
		assert.NoError(t, f.cli.run([]string{"admin", "users", "-size", "2"}))
		out := f.out.String()
		assert.Contains(t, out, "ani@test.id")
		assert.Contains(t, out, "budi@test.id")
		assert.NotContains(t, out, "citra@test.id")
		assert.Contains(t, out, "page 1, 2 of 3")
	})

	t.Run("filtered", func(t *testing.T) {
		f.out.Reset()
		assert.NoError(t, f.cli.run([]string{"admin", "users", "-role", user.RoleAdmin}))
		out := f.out.String()
		assert.Contains(t, out, budi.ID)
		assert.NotContains(t, out, ani.ID)
		assert.Contains(t, out, "page 1, 1 of 1")
	})

	t.Run("events", func(t *testing.T) {
		f.out.Reset()
		assert.NoError(t, f.cli.run([]string{"admin", "events", "-search", "akbar"}))
		assert.Contains(t, f.out.String(), "Reuni Akbar")
	})

	t.Run("delete: no ids", func(t *testing.T) {
		assert.ErrorIs(t, f.cli.run([]string{"admin", "deleteusers", "-id", " , "}), errHelp)
	})

	t.Run("delete failure is notified", func(t *testing.T) {
		svc := f.cli.usrSvc
		f.cli.usrSvc = failingUserService{svc}
		defer func() { f.cli.usrSvc = svc }()

		assert.Error(t, f.cli.run([]string{"admin", "deleteusers", "-id", ani.ID}))
		_, err := f.usrRepo.GetUserByID(context.Background(), ani.ID)
		assert.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		// unknown ids are not counted
		assert.NoError(t, f.cli.run([]string{"admin", "deleteusers", "-id", ani.ID + ",ghost," + budi.ID}))
		_, err := f.usrRepo.GetUserByID(context.Background(), ani.ID)
		assert.ErrorIs(t, err, user.ErrNotFound)
	})

	f.cli.notifier.Close()
	assert.Equal(t, []core.Notification{
		{Level: core.NotifyError, Message: msgDeleteFailed},
		{Level: core.NotifySuccess, Message: "2 user(s) deleted, 1 left"},
	}, f.notifs.all())
}

type failingEventService struct {
	event.ServiceInterface
}

func (failingEventService) Delete(context.Context, authz.Subject, ...string) error {
	return errors.New("connection reset")
}

func Test_commandLine_deleteEvents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	reuni := testutil.CreateEvent(t, f.eventRepo, "Reuni Akbar", time.Now().Add(time.Hour), 0)
	seminar := testutil.CreateEvent(t, f.eventRepo, "Seminar Karier", time.Now().Add(2*time.Hour), 0)

	t.Run("no ids", func(t *testing.T) {
		assert.ErrorIs(t, f.cli.run([]string{"admin", "deleteevents"}), errHelp)
	})

	t.Run("failure is rolled back and notified", func(t *testing.T) {
		svc := f.cli.eventSvc
		f.cli.eventSvc = failingEventService{svc}
		defer func() { f.cli.eventSvc = svc }()

		assert.Error(t, f.cli.run([]string{"admin", "deleteevents", "-id", reuni.ID}))
		_, err := f.eventRepo.GetEventByID(ctx, reuni.ID)
		assert.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		assert.NoError(t, f.cli.run([]string{"admin", "deleteevents", "-id", reuni.ID + ",nope"}))
		_, err := f.eventRepo.GetEventByID(ctx, reuni.ID)
		assert.ErrorIs(t, err, event.ErrNotFound)
		_, err = f.eventRepo.GetEventByID(ctx, seminar.ID)
		assert.NoError(t, err)
	})

	t.Run("listed after delete", func(t *testing.T) {
		f.out.Reset()
		assert.NoError(t, f.cli.run([]string{"admin", "events"}))
		assert.NotContains(t, f.out.String(), "Reuni Akbar")
		assert.Contains(t, f.out.String(), "Seminar Karier")
	})

	f.cli.notifier.Close()
	assert.Equal(t, []core.Notification{
		{Level: core.NotifyError, Message: msgDeleteEventsFailed},
		{Level: core.NotifySuccess, Message: "1 event(s) deleted, 1 left"},
	}, f.notifs.all())
}
