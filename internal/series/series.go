// Package series provides the in-memory representation of one instrument's
// field time series: a date-indexed table with a fixed column set and
// nullable cells.
package series

import (
	"slices"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/histcache/pkg/errors"
)

// Row holds the values observed on a single date. Values are aligned with
// the series field order; a None cell is a missing observation.
type Row struct {
	Date   time.Time
	Values []optional.Option[float64]
}

// Series is a time-ordered sequence of rows for one instrument. The column
// set is fixed at construction and rows are strictly increasing in date.
type Series struct {
	fields []string
	rows   []Row
}

// New creates an empty series with the given column set.
func New(fields []string) *Series {
	return &Series{
		fields: slices.Clone(fields),
		rows:   nil,
	}
}

// Fields returns the column names in their fixed order.
func (s *Series) Fields() []string {
	return slices.Clone(s.fields)
}

// Len returns the number of rows.
func (s *Series) Len() int {
	return len(s.rows)
}

// Rows returns the underlying rows. Callers must not modify the result.
func (s *Series) Rows() []Row {
	return s.rows
}

// LatestDate returns the date of the last row. The second return value is
// false for an empty series.
func (s *Series) LatestDate() (time.Time, bool) {
	if len(s.rows) == 0 {
		return time.Time{}, false
	}

	return s.rows[len(s.rows)-1].Date, true
}

// FieldIndex returns the position of a column, or -1 if the series does not
// hold it.
func (s *Series) FieldIndex(name string) int {
	return slices.Index(s.fields, name)
}

// Value returns the cell for the given row index and column name.
func (s *Series) Value(i int, field string) optional.Option[float64] {
	idx := s.FieldIndex(field)
	if idx < 0 || i < 0 || i >= len(s.rows) {
		return optional.None[float64]()
	}

	return s.rows[i].Values[idx]
}

// AddRow appends one row. The value count must match the column set and the
// date must be strictly after the current last row.
func (s *Series) AddRow(date time.Time, values []optional.Option[float64]) error {
	if len(values) != len(s.fields) {
		return errors.Newf(errors.ErrCodeColumnMismatch, "row has %d values, series has %d fields", len(values), len(s.fields))
	}

	if last, ok := s.LatestDate(); ok && !date.After(last) {
		return errors.Newf(errors.ErrCodeOutOfOrderDate, "row date %s is not after latest date %s",
			date.Format(time.DateOnly), last.Format(time.DateOnly))
	}

	s.rows = append(s.rows, Row{Date: date, Values: slices.Clone(values)})

	return nil
}

// Append concatenates another series onto this one, preserving order. The
// column sets must be identical and the first appended row must fall after
// the current last row.
func (s *Series) Append(other *Series) error {
	if !slices.Equal(s.fields, other.fields) {
		return errors.Newf(errors.ErrCodeColumnMismatch, "cannot append series with fields %v to series with fields %v",
			other.fields, s.fields)
	}

	last, ok := s.LatestDate()
	for _, row := range other.rows {
		if ok && !row.Date.After(last) {
			return errors.Newf(errors.ErrCodeOutOfOrderDate, "row date %s is not after latest date %s",
				row.Date.Format(time.DateOnly), last.Format(time.DateOnly))
		}

		last, ok = row.Date, true
	}

	for _, row := range other.rows {
		s.rows = append(s.rows, Row{Date: row.Date, Values: slices.Clone(row.Values)})
	}

	return nil
}

// ForwardFill replaces each missing cell with the last observed value of the
// same column. Cells before a column's first observation stay missing.
func (s *Series) ForwardFill() {
	last := make([]optional.Option[float64], len(s.fields))

	for i := range s.rows {
		for j, v := range s.rows[i].Values {
			if v.IsSome() {
				last[j] = v
			} else if last[j].IsSome() {
				s.rows[i].Values[j] = last[j]
			}
		}
	}
}

// DropMissing removes every row that still holds at least one missing cell.
func (s *Series) DropMissing() {
	kept := s.rows[:0]

	for _, row := range s.rows {
		complete := true

		for _, v := range row.Values {
			if v.IsNone() {
				complete = false

				break
			}
		}

		if complete {
			kept = append(kept, row)
		}
	}

	s.rows = kept
}
