package types

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestItem_Validate(t *testing.T) {
	tests := []struct {
		name    string
		item    Item
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid synced item",
			item:    *NewSynced("42", Fields{Name: "Hammer", Quantity: 5, Category: "Tools"}),
			wantErr: false,
		},
		{
			name:    "valid temp item",
			item:    *NewPending("temp-1", Fields{Name: "Hammer", Quantity: 5, Category: "Tools"}, PendingCreate),
			wantErr: false,
		},
		{
			name:    "missing id",
			item:    *NewSynced("", Fields{Name: "Hammer"}),
			wantErr: true,
			errMsg:  "id is required",
		},
		{
			name:    "missing name",
			item:    *NewSynced("1", Fields{Quantity: 1}),
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "negative quantity",
			item:    *NewSynced("1", Fields{Name: "Saw", Quantity: -1}),
			wantErr: true,
			errMsg:  "quantity must not be negative",
		},
		{
			name:    "name too long",
			item:    *NewSynced("1", Fields{Name: strings.Repeat("x", 201)}),
			wantErr: true,
			errMsg:  "name must be 200 characters or less",
		},
		{
			name:    "synced flag inconsistent",
			item:    Item{ID: "1", Fields: Fields{Name: "Saw"}, Synced: true, Pending: PendingUpdate},
			wantErr: true,
			errMsg:  "synced=true inconsistent",
		},
		{
			name:    "unknown pending op",
			item:    Item{ID: "1", Fields: Fields{Name: "Saw"}, Pending: "bogus"},
			wantErr: true,
			errMsg:  "unknown pending op",
		},
		{
			name:    "temp id marked synced",
			item:    *NewSynced("temp-9", Fields{Name: "Saw"}),
			wantErr: true,
			errMsg:  "must be pending create",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if !tt.wantErr {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.errMsg)
			}
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Validate() error = %v, want ErrInvalidArgument", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestItem_SetPending(t *testing.T) {
	it := NewSynced("1", Fields{Name: "Saw"})
	it.SetPending(PendingUpdate)
	if it.Synced {
		t.Error("Synced = true after SetPending(update), want false")
	}
	it.SetPending(PendingNone)
	if !it.Synced {
		t.Error("Synced = false after SetPending(none), want true")
	}
	it.SetPending(PendingDelete)
	if !it.IsTombstone() {
		t.Error("IsTombstone() = false, want true")
	}
}

func TestIsTempID(t *testing.T) {
	if !IsTempID("temp-1700000000000") {
		t.Error("IsTempID(temp-...) = false, want true")
	}
	if IsTempID("42") {
		t.Error("IsTempID(42) = true, want false")
	}
}

func TestTempIDMinter_StrictlyIncreasing(t *testing.T) {
	frozen := time.UnixMilli(1700000000000)
	m := &TempIDMinter{now: func() time.Time { return frozen }}

	first := m.Next()
	second := m.Next()
	if first != "temp-1700000000000" {
		t.Errorf("first id = %q, want temp-1700000000000", first)
	}
	if second != "temp-1700000000001" {
		t.Errorf("second id = %q, want temp-1700000000001", second)
	}

	// Clock stepping backwards must not produce a duplicate.
	m.now = func() time.Time { return frozen.Add(-time.Hour) }
	if third := m.Next(); third != "temp-1700000000002" {
		t.Errorf("third id = %q, want temp-1700000000002", third)
	}
}

func TestTempIDMinter_Unique(t *testing.T) {
	m := NewTempIDMinter()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := m.Next()
		if seen[id] {
			t.Fatalf("duplicate temp id %s", id)
		}
		seen[id] = true
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsRetryable(errors.Join(errors.New("dial tcp"), ErrRemoteUnavailable)) {
		t.Error("IsRetryable(remote unavailable) = false, want true")
	}
	if IsRetryable(ErrNotFound) {
		t.Error("IsRetryable(not found) = true, want false")
	}
	if !IsUserError(ErrInvalidArgument) {
		t.Error("IsUserError(invalid argument) = false, want true")
	}
	if !IsUserError(fmt.Errorf("create: %w", ErrRejected)) || IsRetryable(ErrRejected) {
		t.Error("ErrRejected should be a user error and not retryable")
	}
	if IsUserError(nil) {
		t.Error("IsUserError(nil) = true, want false")
	}
}
