package recovery

import (
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/model"
)

const dateLayout = "2006-01-02"

// ParseFilter builds a filter from raw query values. Blank values are
// ignored; dates use YYYY-MM-DD.
func ParseFilter(status, dateFrom, dateTo string) (model.Filter, error) {
	var f model.Filter

	status = strings.TrimSpace(status)
	if status != "" {
		if !model.ValidStatus(status) {
			return f, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
		}
		f.Status = status
	}

	var err error
	if f.DateFrom, err = parseDate(dateFrom); err != nil {
		return f, err
	}
	if f.DateTo, err = parseDate(dateTo); err != nil {
		return f, err
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return f, fmt.Errorf("%w: date_to is before date_from", ErrInvalidInput)
	}
	return f, nil
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidInput, s)
	}
	return &t, nil
}
