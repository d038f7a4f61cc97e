package enumerate

import (
	"fmt"
	"time"

	"github.com/IBM/fp-go/v2/array"
	F "github.com/IBM/fp-go/v2/function"

	"github.com/datapipes/nyc-taxi-ingest/internal/models"
)

// BaseURLPattern is the release page all monthly archives live under.
// The single %s is the taxi category.
const BaseURLPattern = "https://github.com/DataTalksClub/nyc-tlc-data/releases/download/%s/"

// ParseMonth parses a YYYY-MM value into the first instant of that month (UTC).
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return t, nil
}

// Months enumerates every month-start from start to end inclusive, stepping
// one calendar month. Day-of-month on the inputs is ignored. start > end
// yields an empty slice, not an error.
func Months(start, end time.Time) []time.Time {
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	var months []time.Time
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

// FileNames produces the expected archive name for every month in the closed
// range, in ascending order: {category}_tripdata_{YYYY}-{MM}.csv.gz.
// Pure and deterministic.
func FileNames(category string, start, end time.Time) []string {
	return F.Pipe1(
		Months(start, end),
		array.Map(func(m time.Time) string {
			return fmt.Sprintf("%s_tripdata_%s.csv.gz", category, m.Format("2006-01"))
		}),
	)
}

// FileRefs resolves every expected archive name against the category's
// release URL.
func FileRefs(category string, start, end time.Time) []models.FileRef {
	base := fmt.Sprintf(BaseURLPattern, category)
	return F.Pipe1(
		FileNames(category, start, end),
		array.Map(func(name string) models.FileRef {
			return models.FileRef{Name: name, URL: base + name}
		}),
	)
}
