package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/mschirtzinger/stockroom/internal/types"
)

// ItemForm builds an interactive form editing f in place. Field
// validation mirrors types.Fields.Validate so the form never submits a
// record the store would reject.
func ItemForm(title string, f *types.Fields) (*huh.Form, *string) {
	qty := strconv.Itoa(f.Quantity)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Value(&f.Name).
				Validate(validateName),
			huh.NewInput().
				Title("Quantity").
				Value(&qty).
				Validate(validateQuantity),
			huh.NewInput().
				Title("Category").
				Value(&f.Category).
				Validate(validateCategory),
		).Title(title),
	)
	return form, &qty
}

// RunItemForm shows the form and returns the submitted fields.
func RunItemForm(title string, initial types.Fields) (types.Fields, error) {
	f := initial
	form, qty := ItemForm(title, &f)
	if err := form.Run(); err != nil {
		return types.Fields{}, fmt.Errorf("form cancelled: %w", err)
	}

	n, err := ParseQuantity(*qty)
	if err != nil {
		return types.Fields{}, err
	}
	f.Quantity = n
	f.Name = strings.TrimSpace(f.Name)
	f.Category = strings.TrimSpace(f.Category)
	return f, f.Validate()
}

// ParseQuantity parses a non-negative integer quantity.
func ParseQuantity(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: quantity must be a whole number (got %q)", types.ErrInvalidArgument, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: quantity must not be negative (got %d)", types.ErrInvalidArgument, n)
	}
	return n, nil
}

func validateName(s string) error {
	return types.Fields{Name: strings.TrimSpace(s)}.Validate()
}

func validateQuantity(s string) error {
	_, err := ParseQuantity(s)
	return err
}

func validateCategory(s string) error {
	return types.Fields{Name: "x", Category: strings.TrimSpace(s)}.Validate()
}
