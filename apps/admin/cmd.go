package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/user"
	"github.com/trezcool/alumni/services/notify"
	"github.com/trezcool/alumni/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword      // mockable
	migrateFunc      = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sqlx.DB
	usrRepo  user.Repository
	usrSvc   user.ServiceInterface
	eventSvc event.ServiceInterface
	validate *validator.Validate
	notifier *notify.Queue
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                          - run a goose command: up, down, status, redo, version, ...")
	fmt.Fprintln(cli.out, "  adduser -name NAME -email EMAIL [-role ROLE]    - create or update a user; the password is prompted")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                      - reset a user's password; the password is prompted")
	fmt.Fprintln(cli.out, "  users [-search S] [-role R] [-page N] [-size N] - list users")
	fmt.Fprintln(cli.out, "  deleteusers -id ID[,ID...]                      - delete users")
	fmt.Fprintln(cli.out, "  events [-search S] [-page N] [-size N]          - list events")
	fmt.Fprintln(cli.out, "  deleteevents -id ID[,ID...]                     - delete events and their participants")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", user.RoleMember, "One of: "+strings.Join(user.AllRoles, ", "))

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	usersCmd := flag.NewFlagSet("users", flag.ContinueOnError)
	usersSearch := usersCmd.String("search", "", "Matches the name or the email.")
	usersRole := usersCmd.String("role", "", "Only list users with this role.")
	usersPage := usersCmd.Int("page", 1, "Page number.")
	usersSize := usersCmd.Int("size", 20, "Page size.")

	deleteUsersCmd := flag.NewFlagSet("deleteusers", flag.ContinueOnError)
	deleteUsersIDs := deleteUsersCmd.String("id", "", "Comma separated user IDs.")

	eventsCmd := flag.NewFlagSet("events", flag.ContinueOnError)
	eventsSearch := eventsCmd.String("search", "", "Matches the title, the location or the description.")
	eventsPage := eventsCmd.Int("page", 1, "Page number.")
	eventsSize := eventsCmd.Int("size", 20, "Page size.")

	deleteEventsCmd := flag.NewFlagSet("deleteevents", flag.ContinueOnError)
	deleteEventsIDs := deleteEventsCmd.String("id", "", "Comma separated event IDs.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, usersCmd, deleteUsersCmd, eventsCmd, deleteEventsCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(ctx, *addUserName, *addUserEmail, pwd, *addUserRole)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, pwd)

	case "users":
		if err := usersCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.listUsers(ctx, *usersSearch, *usersRole, *usersPage, *usersSize)

	case "deleteusers":
		if err := deleteUsersCmd.Parse(args[2:]); err != nil {
			return err
		}
		ids := splitIDs(*deleteUsersIDs)
		if len(ids) == 0 {
			deleteUsersCmd.Usage()
			return errHelp
		}
		return cli.deleteUsers(ctx, ids)

	case "events":
		if err := eventsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.listEvents(ctx, *eventsSearch, *eventsPage, *eventsSize)

	case "deleteevents":
		if err := deleteEventsCmd.Parse(args[2:]); err != nil {
			return err
		}
		ids := splitIDs(*deleteEventsIDs)
		if len(ids) == 0 {
			deleteEventsCmd.Usage()
			return errHelp
		}
		return cli.deleteEvents(ctx, ids)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword(cmd *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func printNotification(w io.Writer) notify.RenderFunc {
	return func(n core.Notification) {
		fmt.Fprintf(w, "[%s] %s\n", strings.ToUpper(n.Level), n.Message)
	}
}
