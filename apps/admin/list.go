package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/authz"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/listview"
	"github.com/trezcool/alumni/core/user"
)

const (
	msgDeleteFailed       = "Failed to delete the selected users, the list was restored."
	msgDeleteEventsFailed = "Failed to delete the selected events, the list was restored."
	dateLayout            = "2006-01-02 15:04"
)

// operator is the subject of the commands; whoever runs them owns the database.
type operator struct{}

func (operator) SubjectID() string   { return "" }
func (operator) SubjectRole() string { return authz.RoleSuperAdmin }
func (operator) SubjectActive() bool { return true }

func (cli *commandLine) usersView(filter *user.QueryFilter) *listview.ListView[user.User] {
	load := func(ctx context.Context, page core.Pagination) ([]user.User, int, error) {
		return cli.usrSvc.Query(ctx, filter, nil, &page)
	}
	return listview.New(func(u user.User) string { return u.ID }, load, cli.notifier, msgDeleteFailed)
}

func (cli *commandLine) listUsers(ctx context.Context, search, role string, page, size int) error {
	filter := &user.QueryFilter{Search: search}
	if role != "" {
		filter.Roles = []string{role}
	}
	filter.Clean()

	view := cli.usersView(filter)
	if err := view.Load(ctx, core.Pagination{Page: page, PageSize: size}); err != nil {
		return errors.Wrap(err, "loading users")
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tACTIVE\tCREATED")
	for _, u := range view.Items() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", u.ID, u.Name, u.Email, u.Role, u.IsActive, u.CreatedAt.Format(dateLayout))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	printPageFooter(cli, view.Page(), view.Total())
	return nil
}

// deleteUsers removes the users from the loaded list first, then from the store.
func (cli *commandLine) deleteUsers(ctx context.Context, ids []string) error {
	view := cli.usersView(new(user.QueryFilter))
	deleted, left, err := deleteFromView(ctx, view, ids, cli.usrSvc.Delete)
	if err != nil {
		return errors.Wrap(err, "deleting users")
	}
	cli.notifier.Notify(core.Notification{
		Level:   core.NotifySuccess,
		Message: fmt.Sprintf("%d user(s) deleted, %d left", deleted, left),
	})
	return nil
}

func (cli *commandLine) eventsView(filter *event.QueryFilter, failureMsg string) *listview.ListView[event.Event] {
	load := func(ctx context.Context, page core.Pagination) ([]event.Event, int, error) {
		return cli.eventSvc.Query(ctx, filter, nil, &page)
	}
	return listview.New(func(e event.Event) string { return e.ID }, load, cli.notifier, failureMsg)
}

func (cli *commandLine) deleteEvents(ctx context.Context, ids []string) error {
	view := cli.eventsView(new(event.QueryFilter), msgDeleteEventsFailed)
	del := func(ctx context.Context, ids ...string) error {
		return cli.eventSvc.Delete(ctx, operator{}, ids...)
	}
	deleted, left, err := deleteFromView(ctx, view, ids, del)
	if err != nil {
		return errors.Wrap(err, "deleting events")
	}
	cli.notifier.Notify(core.Notification{
		Level:   core.NotifySuccess,
		Message: fmt.Sprintf("%d event(s) deleted, %d left", deleted, left),
	})
	return nil
}

// deleteFromView deletes ids through the view, then reloads it so the counts come from the store:
// ids that matched nothing are not reported as deleted.
func deleteFromView[T any](ctx context.Context, view *listview.ListView[T], ids []string, del listview.DeleteFunc) (deleted, left int, err error) {
	if err = view.Load(ctx, core.Pagination{PageSize: core.MaxPageSize}); err != nil {
		return 0, 0, errors.Wrap(err, "loading list")
	}
	before := view.Total()
	if err = view.OptimisticDelete(ctx, ids, del); err != nil {
		return 0, 0, err
	}
	if err = view.Load(ctx, view.Page()); err != nil {
		return 0, 0, errors.Wrap(err, "reloading list")
	}
	left = view.Total()
	return before - left, left, nil
}

func (cli *commandLine) listEvents(ctx context.Context, search string, page, size int) error {
	view := cli.eventsView(&event.QueryFilter{Search: search}, msgDeleteEventsFailed)
	if err := view.Load(ctx, core.Pagination{Page: page, PageSize: size}); err != nil {
		return errors.Wrap(err, "loading events")
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTARTS\tSTATUS\tCAPACITY")
	for _, e := range view.Items() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", e.ID, e.Title, e.StartsAt.In(time.Local).Format(dateLayout), e.Status, e.Capacity)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	printPageFooter(cli, view.Page(), view.Total())
	return nil
}

func printPageFooter(cli *commandLine, page core.Pagination, total int) {
	fmt.Fprintf(cli.out, "page %d, %d of %d\n", page.Page, min(page.PageSize, max(total-page.Offset(), 0)), total)
}
