package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Document field names as stored in the remote collections.
const (
	FieldOwnerID     = "userId"
	FieldName        = "name"
	FieldDescription = "description"
	FieldCurrency    = "currency"
	FieldImageURL    = "imageUrl"
	FieldAmount      = "amount"
	FieldCategory    = "category"
	FieldDate        = "date"
	FieldCreatedBy   = "createdBy"
)

// Fields flattens the event into remote document fields. The ID is not a
// field; the store assigns and carries it separately.
func (e Event) Fields() map[string]any {
	return map[string]any{
		FieldOwnerID:     e.OwnerID,
		FieldName:        e.Name,
		FieldDescription: e.Description,
		FieldCurrency:    e.Currency,
		FieldImageURL:    e.ImageURL,
	}
}

// EventFromFields rebuilds an event from a remote document. Unknown or
// missing fields read as zero values; an unset currency falls back to the
// default code.
func EventFromFields(id string, f map[string]any) Event {
	e := Event{
		ID:          id,
		OwnerID:     stringField(f, FieldOwnerID),
		Name:        stringField(f, FieldName),
		Description: stringField(f, FieldDescription),
		Currency:    stringField(f, FieldCurrency),
		ImageURL:    stringField(f, FieldImageURL),
	}
	if e.Currency == "" {
		e.Currency = DefaultCurrency
	}
	return e
}

// Fields flattens the expense into remote document fields. The amount is
// serialized as a decimal string to avoid binary floating point drift; the
// date as RFC 3339.
func (x Expense) Fields() map[string]any {
	return map[string]any{
		FieldDescription: x.Description,
		FieldAmount:      x.Amount.String(),
		FieldCategory:    string(x.Category),
		FieldDate:        x.Date.Format(time.RFC3339),
		FieldCreatedBy:   x.CreatedBy,
	}
}

// ExpenseFromFields rebuilds an expense from a remote document. Amounts are
// accepted as decimal strings or raw numbers (older documents stored plain
// numbers).
func ExpenseFromFields(eventID, id string, f map[string]any) (Expense, error) {
	x := Expense{
		ID:            id,
		ParentEventID: eventID,
		Description:   stringField(f, FieldDescription),
		Category:      Category(stringField(f, FieldCategory)),
		CreatedBy:     stringField(f, FieldCreatedBy),
	}

	switch v := f[FieldAmount].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return Expense{}, fmt.Errorf("expense %s: parse amount %q: %w", id, v, err)
		}
		x.Amount = d
	case float64:
		x.Amount = decimal.NewFromFloat(v)
	case int64:
		x.Amount = decimal.NewFromInt(v)
	case nil:
		return Expense{}, fmt.Errorf("expense %s: missing amount", id)
	default:
		return Expense{}, fmt.Errorf("expense %s: unsupported amount type %T", id, v)
	}

	raw := stringField(f, FieldDate)
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return Expense{}, fmt.Errorf("expense %s: parse date %q: %w", id, raw, err)
	}
	x.Date = t

	return x, nil
}

func stringField(f map[string]any, key string) string {
	if v, ok := f[key].(string); ok {
		return v
	}
	return ""
}
