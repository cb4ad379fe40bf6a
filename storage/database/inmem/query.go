package inmemdb

import (
	"sort"
	"strings"
	"time"

	"github.com/trezcool/alumni/core"
)

// comparators maps an ordering field to a three-way comparison of two rows.
type comparators[T any] map[string]func(a, b T) int

// orderBy sorts rows by the known ordering fields, falling back to defaults when none applies.
func orderBy[T any](rows []T, ordering []core.DBOrdering, cmps comparators[T], defaults ...core.DBOrdering) {
	known := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if _, ok := cmps[ord.Field]; ok {
			known = append(known, ord)
		}
	}
	if len(known) == 0 {
		known = defaults
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range known {
			c := cmps[ord.Field](rows[i], rows[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func paginate[T any](rows []T, page *core.Pagination) []T {
	if page == nil {
		return rows
	}
	start, end := page.Window(len(rows))
	return rows[start:end]
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	}
	return 1
}

func cmpTime(a, b time.Time) int { return a.Compare(b) }

func inStrings(s string, list []string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
