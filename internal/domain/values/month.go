package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Month is a calendar-month bucket (year plus month). It is the single
// grouping unit shared by normalization and trend analysis so that every
// component agrees on where a month boundary falls.
type Month struct {
	year  int
	month time.Month
}

// NewMonth creates a Month bucket for the given year and month
func NewMonth(year int, month time.Month) (Month, error) {
	if month < time.January || month > time.December {
		return Month{}, fmt.Errorf("invalid month: %d", int(month))
	}
	if year < 1970 || year > 9999 {
		return Month{}, fmt.Errorf("year out of range: %d", year)
	}
	return Month{year: year, month: month}, nil
}

// MustNewMonth creates a Month and panics on error (for constants/tests)
func MustNewMonth(year int, month time.Month) Month {
	m, err := NewMonth(year, month)
	if err != nil {
		panic(err)
	}
	return m
}

// MonthOf buckets an instant into the calendar month containing it,
// evaluated in the given location. A ticket created on a month boundary
// belongs to the month containing its creation instant.
func MonthOf(t time.Time, loc *time.Location) Month {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return Month{year: lt.Year(), month: lt.Month()}
}

// ParseMonth parses the canonical "2006-01" form
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month format %q: %w", s, err)
	}
	return Month{year: t.Year(), month: t.Month()}, nil
}

// Year returns the calendar year
func (m Month) Year() int {
	return m.year
}

// Month returns the calendar month
func (m Month) Month() time.Month {
	return m.month
}

// IsZero reports whether the bucket was never initialized
func (m Month) IsZero() bool {
	return m.year == 0 && m.month == 0
}

// String returns the canonical "2006-01" form
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.year, int(m.month))
}

// LabelCJK returns the month label used in report narrative, e.g. "2025年3月"
func (m Month) LabelCJK() string {
	return fmt.Sprintf("%d年%d月", m.year, int(m.month))
}

// Start returns the first instant of the month in the given location
func (m Month) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(m.year, m.month, 1, 0, 0, 0, 0, loc)
}

// NextStart returns the first instant of the following month in the given
// location, which is the exclusive upper bound of this bucket
func (m Month) NextStart(loc *time.Location) time.Time {
	return m.Add(1).Start(loc)
}

// Add returns the bucket n months later (n may be negative)
func (m Month) Add(n int) Month {
	idx := m.year*12 + int(m.month) - 1 + n
	return Month{year: idx / 12, month: time.Month(idx%12 + 1)}
}

// Compare returns -1, 0, or 1 ordering buckets chronologically
func (m Month) Compare(other Month) int {
	a := m.year*12 + int(m.month)
	b := other.year*12 + int(other.month)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Before reports whether m is chronologically before other
func (m Month) Before(other Month) bool {
	return m.Compare(other) < 0
}

// After reports whether m is chronologically after other
func (m Month) After(other Month) bool {
	return m.Compare(other) > 0
}

// Equal reports whether the buckets are the same calendar month
func (m Month) Equal(other Month) bool {
	return m.year == other.year && m.month == other.month
}

// MonthsBetween returns the signed month distance from one bucket to
// another: 0 for the same month, positive when to is later.
func MonthsBetween(from, to Month) int {
	return (to.year-from.year)*12 + int(to.month) - int(from.month)
}

// MonthRange returns every bucket from from to to inclusive, ascending.
// The result is empty when from is after to.
func MonthRange(from, to Month) []Month {
	n := MonthsBetween(from, to)
	if n < 0 {
		return nil
	}
	months := make([]Month, 0, n+1)
	for i := 0; i <= n; i++ {
		months = append(months, from.Add(i))
	}
	return months
}

// JSON marshaling
func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// JSON unmarshaling
func (m *Month) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Database scanning (implements sql.Scanner)
func (m *Month) Scan(value interface{}) error {
	if value == nil {
		*m = Month{}
		return nil
	}
	switch v := value.(type) {
	case string:
		parsed, err := ParseMonth(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case []byte:
		return m.Scan(string(v))
	case time.Time:
		*m = MonthOf(v, time.UTC)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Month", value)
	}
}

// Database value (implements driver.Valuer)
func (m Month) Value() (driver.Value, error) {
	if m.IsZero() {
		return nil, nil
	}
	return m.String(), nil
}
