// Package view turns a snapshot into the list a front end displays.
//
// Project is pure: it copies its input and never touches the store, so
// filtering and sorting can never lose data.
package view

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/mschirtzinger/stockroom/internal/types"
)

// Sort is a display order.
type Sort string

const (
	SortNone     Sort = "none"
	SortNameAsc  Sort = "name-asc"
	SortNameDesc Sort = "name-desc"
)

// ParseSort validates a user-supplied sort key. The empty string means
// SortNone.
func ParseSort(s string) (Sort, error) {
	switch Sort(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortNone:
		return SortNone, nil
	case SortNameAsc, "name", "asc":
		return SortNameAsc, nil
	case SortNameDesc, "desc":
		return SortNameDesc, nil
	default:
		return "", fmt.Errorf("%w: unknown sort %q (want none, name-asc or name-desc)", types.ErrInvalidArgument, s)
	}
}

// State is the front end's view state: a category filter and a sort key.
type State struct {
	// Filter is a case-insensitive substring of the category ("" = all)
	Filter string
	Sort   Sort
}

// Project returns the items matching st.Filter in st.Sort order. The
// input slice is not modified.
func Project(items []types.Item, st State) []types.Item {
	fold := cases.Fold()
	needle := fold.String(st.Filter)

	out := make([]types.Item, 0, len(items))
	for _, it := range items {
		if needle != "" && !strings.Contains(fold.String(it.Category), needle) {
			continue
		}
		out = append(out, it)
	}

	switch st.Sort {
	case SortNameAsc, SortNameDesc:
		// A Collator is not safe for concurrent use; one per call.
		c := collate.New(language.Und)
		desc := st.Sort == SortNameDesc
		sort.SliceStable(out, func(i, j int) bool {
			cmp := c.CompareString(out[i].Name, out[j].Name)
			if desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	return out
}
