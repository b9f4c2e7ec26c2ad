package view

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/stockroom/internal/types"
)

func sampleItems() []types.Item {
	return []types.Item{
		*types.NewSynced("1", types.Fields{Name: "hammer", Quantity: 5, Category: "Tools"}),
		*types.NewSynced("2", types.Fields{Name: "Apple", Quantity: 10, Category: "Food"}),
		*types.NewPending("temp-3", types.Fields{Name: "Saw", Quantity: 1, Category: "Power tools"}, types.PendingCreate),
		*types.NewSynced("4", types.Fields{Name: "Clamp", Quantity: 2, Category: "TOOLBOX"}),
	}
}

func names(items []types.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Name)
	}
	return out
}

func TestProject(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  []string
	}{
		{"no filter keeps order", State{}, []string{"hammer", "Apple", "Saw", "Clamp"}},
		{"filter is case-insensitive substring", State{Filter: "tool"}, []string{"hammer", "Saw", "Clamp"}},
		{"filter no match", State{Filter: "garden"}, []string{}},
		{"name ascending ignores case", State{Sort: SortNameAsc}, []string{"Apple", "Clamp", "hammer", "Saw"}},
		{"name descending", State{Sort: SortNameDesc}, []string{"Saw", "hammer", "Clamp", "Apple"}},
		{"filter then sort", State{Filter: "TOOL", Sort: SortNameDesc}, []string{"Saw", "hammer", "Clamp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := names(Project(sampleItems(), tt.state))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Project() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProject_DoesNotMutateInput(t *testing.T) {
	items := sampleItems()
	before := sampleItems()

	_ = Project(items, State{Filter: "tool", Sort: SortNameDesc})

	if diff := cmp.Diff(names(before), names(items)); diff != "" {
		t.Errorf("input changed by Project (-before +after):\n%s", diff)
	}

	// Clearing the filter gives back the full set.
	all := Project(items, State{})
	if len(all) != len(before) {
		t.Errorf("Project(no filter) returned %d items, want %d", len(all), len(before))
	}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		in      string
		want    Sort
		wantErr bool
	}{
		{"", SortNone, false},
		{"none", SortNone, false},
		{"name-asc", SortNameAsc, false},
		{"Name-Desc", SortNameDesc, false},
		{"desc", SortNameDesc, false},
		{"quantity", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSort(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSort(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, types.ErrInvalidArgument) {
			t.Errorf("ParseSort(%q) error = %v, want ErrInvalidArgument", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseSort(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
