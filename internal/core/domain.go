// Package core provides the expense tracking domain model: events, expenses,
// the closed category and currency enumerations, validation, and the codec
// to and from remote document fields. Amounts are held as exact decimals;
// rounding to two fractional digits happens only when formatting for display.
package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CategoryTravel        Category = "Travel"
	CategoryFood          Category = "Food"
	CategoryHousing       Category = "Housing"
	CategoryShopping      Category = "Shopping"
	CategoryEntertainment Category = "Entertainment"
	CategoryOther         Category = "Other"
)

const (
	// MinNameLen applies to event names and expense descriptions.
	MinNameLen = 2

	// MaxImageBytes bounds inline data-encoded event images.
	MaxImageBytes = 500 * 1024
)

type (
	Category string

	// Event is a user-defined spending context (trip, project) owning zero
	// or more expenses. OwnerID is set at creation, immutable, and is the
	// sole visibility filter key.
	Event struct {
		ID          string
		OwnerID     string
		Name        string
		Description string
		Currency    string
		ImageURL    string
	}

	// Expense is a single dated, categorized transaction under one event.
	// It carries no currency of its own; it inherits the parent event's.
	Expense struct {
		ID            string
		ParentEventID string
		Description   string
		Amount        decimal.Decimal
		Category      Category
		Date          time.Time
		CreatedBy     string
	}
)

// minAmount is the smallest accepted expense amount (0.01).
var minAmount = decimal.New(1, -2)

// Categories returns the closed category enumeration in display order.
func Categories() []Category {
	return []Category{
		CategoryTravel,
		CategoryFood,
		CategoryHousing,
		CategoryShopping,
		CategoryEntertainment,
		CategoryOther,
	}
}

// ValidCategory reports whether c is one of the closed enumeration.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryTravel, CategoryFood, CategoryHousing,
		CategoryShopping, CategoryEntertainment, CategoryOther:
		return true
	}
	return false
}

func (e Event) Validate() error {
	if len(strings.TrimSpace(e.Name)) < MinNameLen {
		return newValidationError("name", "must be at least 2 characters")
	}
	if e.Currency != "" && !ValidCurrency(e.Currency) {
		return newValidationError("currency", "unknown currency code")
	}
	if len(e.ImageURL) > MaxImageBytes {
		return newValidationError("imageUrl", "encoded image exceeds 500KB")
	}
	return nil
}

func (x Expense) Validate() error {
	if len(strings.TrimSpace(x.Description)) < MinNameLen {
		return newValidationError("description", "must be at least 2 characters")
	}
	if x.Amount.LessThan(minAmount) {
		return newValidationError("amount", "must be at least 0.01")
	}
	if !ValidCategory(x.Category) {
		return newValidationError("category", "unknown category")
	}
	if x.Date.IsZero() {
		return newValidationError("date", "must be a valid calendar date")
	}
	return nil
}
