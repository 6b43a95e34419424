package services

import (
	"time"

	"finflow/internal/core"
)

// dateLayouts are the accepted input forms for expense dates. Backdated and
// future dates are allowed without restriction.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &core.ValidationError{Field: "date", Reason: "must be a valid calendar date"}
}
