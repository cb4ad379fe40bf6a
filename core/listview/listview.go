// Package listview keeps a loaded window of a filtered, paginated list and applies deletions
// optimistically, rolling back to the previous window when the store refuses them.
package listview

import (
	"context"
	"sync"

	"github.com/trezcool/alumni/core"
)

// Loader fetches one page of the list and the total number of matching items.
type Loader[T any] func(ctx context.Context, page core.Pagination) ([]T, int, error)

// DeleteFunc deletes the items identified by ids from the store.
type DeleteFunc func(ctx context.Context, ids ...string) error

type ListView[T any] struct {
	idOf       func(T) string
	load       Loader[T]
	notifier   core.Notifier
	failureMsg string

	mu    sync.Mutex
	items []T
	total int
	page  core.Pagination
}

func New[T any](idOf func(T) string, load Loader[T], notifier core.Notifier, failureMsg string) *ListView[T] {
	return &ListView[T]{
		idOf:       idOf,
		load:       load,
		notifier:   notifier,
		failureMsg: failureMsg,
	}
}

// Load replaces the window with the requested page.
func (lv *ListView[T]) Load(ctx context.Context, page core.Pagination) error {
	page.Clean()
	items, total, err := lv.load(ctx, page)
	if err != nil {
		return err
	}

	lv.mu.Lock()
	defer lv.mu.Unlock()
	lv.items, lv.total, lv.page = items, total, page
	return nil
}

// Items returns a copy of the loaded window.
func (lv *ListView[T]) Items() []T {
	lv.mu.Lock()
	defer lv.mu.Unlock()
	return append([]T(nil), lv.items...)
}

func (lv *ListView[T]) Total() int {
	lv.mu.Lock()
	defer lv.mu.Unlock()
	return lv.total
}

func (lv *ListView[T]) Page() core.Pagination {
	lv.mu.Lock()
	defer lv.mu.Unlock()
	return lv.page
}

// OptimisticDelete removes the items from the window, then deletes them with deleteFn.
// When deleteFn fails the window is restored to its exact previous state and an error
// notification is emitted.
func (lv *ListView[T]) OptimisticDelete(ctx context.Context, ids []string, deleteFn DeleteFunc) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	lv.mu.Lock()
	snapshot, snapshotTotal := lv.items, lv.total
	kept := make([]T, 0, len(lv.items))
	for _, item := range lv.items {
		if _, ok := drop[lv.idOf(item)]; !ok {
			kept = append(kept, item)
		}
	}
	lv.items = kept
	lv.total -= len(snapshot) - len(kept)
	lv.mu.Unlock()

	if err := deleteFn(ctx, ids...); err != nil {
		lv.mu.Lock()
		lv.items, lv.total = snapshot, snapshotTotal
		lv.mu.Unlock()

		lv.notifier.Notify(core.Notification{Level: core.NotifyError, Message: lv.failureMsg})
		return err
	}
	return nil
}
