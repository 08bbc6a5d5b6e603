package supabase

import (
	"errors"
	"time"

	"github.com/finbooks/finbooks-go/internal/domain"
)

// isDomainErr reports whether err is a business-level outcome rather
// than a backend failure.
func isDomainErr(err error) bool {
	if err == nil {
		return false
	}
	var (
		notFound  *domain.ErrNotFound
		duplicate *domain.ErrDuplicateName
	)
	return errors.As(err, &notFound) || errors.As(err, &duplicate)
}

// parseTimestamp accepts the timestamp formats PostgREST emits:
// RFC3339 for timestamptz columns, plain dates for date columns.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
