package recovery

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/auth"
	"github.com/dukerupert/mailbeforecart/internal/model"
)

var csvHeader = []string{"Email", "Product ID", "Product Name", "Date Created", "Status", "Reminder Sent"}

const csvTimeLayout = "2006-01-02 15:04:05"

// csvText keeps shopper-supplied text from being read as a spreadsheet
// formula.
func csvText(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

// ExportFilename names the download for an export taken at now.
func ExportFilename(f model.Filter, now time.Time) string {
	date := now.UTC().Format(dateLayout)
	if f.Empty() {
		return "abandoned_cart_emails_" + date + ".csv"
	}
	return "abandoned_cart_emails_filtered_" + date + ".csv"
}

// ExportCSV writes every record matching f, newest first, and returns the
// number of data rows written.
func (s *Service) ExportCSV(ctx context.Context, f model.Filter, w io.Writer) (int, error) {
	if !auth.IsAdmin(ctx) {
		return 0, ErrUnauthorized
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	n := 0
	var writeErr error
	err := s.carts.EachFiltered(ctx, f, func(r model.CartRecord) error {
		reminded := "No"
		if r.ReminderSent {
			reminded = "Yes"
		}
		writeErr = cw.Write([]string{
			csvText(r.Email),
			strconv.FormatInt(r.ProductID, 10),
			csvText(r.ProductName),
			r.CreatedAt.UTC().Format(csvTimeLayout),
			r.Status,
			reminded,
		})
		if writeErr != nil {
			return writeErr
		}
		n++
		return nil
	})
	if writeErr != nil {
		return n, fmt.Errorf("write csv: %w", writeErr)
	}
	if err != nil {
		return n, fmt.Errorf("%w: export: %v", ErrPersistence, err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flush csv: %w", err)
	}
	return n, nil
}
