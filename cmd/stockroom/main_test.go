package main

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/pflag"

	"github.com/mschirtzinger/stockroom/internal/types"
)

func itemFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("name", "", "")
	flags.Int("qty", 0, "")
	flags.String("category", "", "")
	flags.Bool("interactive", false, "")
	if err := flags.Parse(args); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	return flags
}

func TestFieldsFromFlags(t *testing.T) {
	base := types.Fields{Name: "Hammer", Quantity: 5, Category: "Tools"}

	tests := []struct {
		name    string
		flags   []string
		args    []string
		want    types.Fields
		wantErr bool
	}{
		{
			name: "unchanged flags keep base",
			want: base,
		},
		{
			name:  "changed flags override",
			flags: []string{"--qty", "0", "--category", " Garage "},
			want:  types.Fields{Name: "Hammer", Quantity: 0, Category: "Garage"},
		},
		{
			name: "positional name",
			args: []string{"  Saw "},
			want: types.Fields{Name: "Saw", Quantity: 5, Category: "Tools"},
		},
		{
			name:  "name flag wins over positional",
			flags: []string{"--name", "Drill"},
			args:  []string{"Saw"},
			want:  types.Fields{Name: "Drill", Quantity: 5, Category: "Tools"},
		},
		{
			name:    "negative quantity",
			flags:   []string{"--qty", "-1"},
			wantErr: true,
		},
		{
			name:    "blank name",
			flags:   []string{"--name", "   "},
			wantErr: true,
		},
		{
			name:  "interactive skips validation",
			flags: []string{"--name", "", "--interactive"},
			want:  types.Fields{Name: "", Quantity: 5, Category: "Tools"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fieldsFromFlags(itemFlags(t, tt.flags...), base, tt.args)
			if tt.wantErr {
				if !errors.Is(err, types.ErrInvalidArgument) {
					t.Fatalf("fieldsFromFlags() error = %v, want ErrInvalidArgument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("fieldsFromFlags() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("fieldsFromFlags() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStorageUsage(t *testing.T) {
	const mb = 1024 * 1024

	tests := []struct {
		name      string
		size      int64
		maxMB     int
		wantUsage float64
		wantWarn  bool
	}{
		{"disabled", 100 * mb, 0, 0, false},
		{"empty", 0, 50, 0, false},
		{"half", 25 * mb, 50, 0.5, false},
		{"at threshold", 40 * mb, 50, 0.8, false},
		{"over threshold", 45 * mb, 50, 0.9, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage, warn := storageUsage(tt.size, tt.maxMB)
			if usage != tt.wantUsage || warn != tt.wantWarn {
				t.Errorf("storageUsage(%d, %d) = (%v, %v), want (%v, %v)",
					tt.size, tt.maxMB, usage, warn, tt.wantUsage, tt.wantWarn)
			}
		})
	}
}

func TestUnconfiguredGateway_IsUnavailable(t *testing.T) {
	ctx := context.Background()
	gw := unconfiguredGateway{}

	if _, err := gw.Create(ctx, types.Fields{Name: "x"}); !types.IsRetryable(err) {
		t.Errorf("Create() error = %v, want retryable", err)
	}
	if _, err := gw.List(ctx); !types.IsRetryable(err) {
		t.Errorf("List() error = %v, want retryable", err)
	}
	if err := gw.Update(ctx, "1", types.Fields{Name: "x"}); !types.IsRetryable(err) {
		t.Errorf("Update() error = %v, want retryable", err)
	}
	if err := gw.Delete(ctx, "1"); !types.IsRetryable(err) {
		t.Errorf("Delete() error = %v, want retryable", err)
	}
}
