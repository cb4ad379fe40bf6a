package listview

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/alumni/core"
)

type item struct {
	ID   string
	Name string
}

type recorder struct {
	mu            sync.Mutex
	notifications []core.Notification
}

func (r *recorder) Notify(n core.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func newView(t *testing.T, notifier core.Notifier) *ListView[item] {
	all := []item{{"1", "Ade"}, {"2", "Budi"}, {"3", "Citra"}, {"4", "Dewi"}}
	load := func(_ context.Context, page core.Pagination) ([]item, int, error) {
		start, end := page.Window(len(all))
		return all[start:end], len(all), nil
	}
	lv := New(func(it item) string { return it.ID }, load, notifier, "delete failed")
	assert.NoError(t, lv.Load(context.Background(), core.Pagination{Page: 1, PageSize: 3}))
	return lv
}

func TestListView_Load(t *testing.T) {
	lv := newView(t, new(recorder))

	assert.Equal(t, []item{{"1", "Ade"}, {"2", "Budi"}, {"3", "Citra"}}, lv.Items())
	assert.Equal(t, 4, lv.Total())
	assert.Equal(t, core.Pagination{Page: 1, PageSize: 3}, lv.Page())

	assert.NoError(t, lv.Load(context.Background(), core.Pagination{Page: 2, PageSize: 3}))
	assert.Equal(t, []item{{"4", "Dewi"}}, lv.Items())
}

func TestListView_OptimisticDelete(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		notifier := new(recorder)
		lv := newView(t, notifier)

		var deleted []string
		err := lv.OptimisticDelete(context.Background(), []string{"2"}, func(_ context.Context, ids ...string) error {
			// the window is already updated when the store is called
			assert.Equal(t, []item{{"1", "Ade"}, {"3", "Citra"}}, lv.Items())
			deleted = ids
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, []string{"2"}, deleted)
		assert.Equal(t, []item{{"1", "Ade"}, {"3", "Citra"}}, lv.Items())
		assert.Equal(t, 3, lv.Total())
		assert.Empty(t, notifier.notifications)
	})

	t.Run("rollback on failure", func(t *testing.T) {
		notifier := new(recorder)
		lv := newView(t, notifier)
		before := lv.Items()

		failure := errors.New("connection reset")
		err := lv.OptimisticDelete(context.Background(), []string{"1", "3"}, func(context.Context, ...string) error {
			assert.Equal(t, []item{{"2", "Budi"}}, lv.Items())
			assert.Equal(t, 2, lv.Total())
			return failure
		})

		assert.Equal(t, failure, err)
		assert.Equal(t, before, lv.Items())
		assert.Equal(t, 4, lv.Total())
		if assert.Len(t, notifier.notifications, 1) {
			assert.Equal(t, core.Notification{Level: core.NotifyError, Message: "delete failed"}, notifier.notifications[0])
		}
	})

	t.Run("no ids", func(t *testing.T) {
		lv := newView(t, new(recorder))
		err := lv.OptimisticDelete(context.Background(), nil, func(context.Context, ...string) error {
			t.Fatal("delete must not be called")
			return nil
		})
		assert.NoError(t, err)
		assert.Len(t, lv.Items(), 3)
	})
}
