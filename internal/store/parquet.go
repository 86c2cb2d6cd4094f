// Package store persists instrument time series as one Parquet file per
// identifier under a base directory. File presence is the "cached" signal;
// every write replaces the whole file.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/rxtech-lab/histcache/internal/logger"
	"github.com/rxtech-lab/histcache/internal/series"
	"github.com/rxtech-lab/histcache/pkg/errors"
)

const (
	dateColumn = "date"
	entryTable = "cache_entry"
	fileExt    = ".parquet"
)

// ParquetStore reads and writes per-instrument Parquet files through an
// in-memory DuckDB connection.
type ParquetStore struct {
	baseDir string
	logger  *logger.Logger
	sq      squirrel.StatementBuilderType
}

// NewParquetStore creates a store rooted at baseDir. The directory is
// created lazily on the first write.
func NewParquetStore(baseDir string, log *logger.Logger) *ParquetStore {
	return &ParquetStore{
		baseDir: baseDir,
		logger:  log,
		sq:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

// Path returns the Parquet file location for one identifier.
func (s *ParquetStore) Path(ric string) string {
	return filepath.Join(s.baseDir, ric+fileExt)
}

// Exists reports whether a cache entry is present for the identifier.
func (s *ParquetStore) Exists(ric string) bool {
	_, err := os.Stat(s.Path(ric))

	return err == nil
}

// List returns the identifiers that currently have a cache entry.
func (s *ParquetStore) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.baseDir, "*"+fileExt))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to list cache entries", err)
	}

	rics := make([]string, 0, len(matches))
	for _, m := range matches {
		rics = append(rics, strings.TrimSuffix(filepath.Base(m), fileExt))
	}

	return rics, nil
}

func (s *ParquetStore) open() (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to open DuckDB connection", err)
	}

	return db, nil
}

func readParquet(path string) string {
	return fmt.Sprintf("read_parquet('%s')", strings.ReplaceAll(path, "'", "''"))
}

// Read loads the full cache entry for one identifier.
func (s *ParquetStore) Read(ric string) (*series.Series, error) {
	if !s.Exists(ric) {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no cache entry for %s", ric)
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query, _, err := s.sq.Select("*").From(readParquet(s.Path(ric))).OrderBy(dateColumn).ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build read query", err)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreReadFailed, err, "failed to read cache entry for %s", ric)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreReadFailed, "failed to resolve cache entry columns", err)
	}

	if len(cols) == 0 || cols[0] != dateColumn {
		return nil, errors.Newf(errors.ErrCodeStoreReadFailed, "cache entry for %s has no %s column", ric, dateColumn)
	}

	fields := cols[1:]
	ser := series.New(fields)

	for rows.Next() {
		var date time.Time

		values := make([]sql.NullFloat64, len(fields))
		dest := make([]any, 0, len(cols))
		dest = append(dest, &date)

		for i := range values {
			dest = append(dest, &values[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStoreReadFailed, err, "failed to scan cache entry row for %s", ric)
		}

		cells := make([]optional.Option[float64], len(fields))

		for i, v := range values {
			if v.Valid {
				cells[i] = optional.Some(v.Float64)
			} else {
				cells[i] = optional.None[float64]()
			}
		}

		if err := ser.AddRow(date, cells); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStoreReadFailed, err, "cache entry for %s violates date ordering", ric)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreReadFailed, err, "failed to iterate cache entry rows for %s", ric)
	}

	return ser, nil
}

// Write replaces the cache entry for one identifier with the given series.
func (s *ParquetStore) Write(ric string, ser *series.Series) error {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return errors.Wrapf(errors.ErrCodeStoreWriteFailed, err, "failed to create store directory %s", s.baseDir)
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	fields := ser.Fields()

	colDefs := make([]string, 0, len(fields)+1)
	colDefs = append(colDefs, fmt.Sprintf("%q DATE", dateColumn))

	for _, f := range fields {
		colDefs = append(colDefs, fmt.Sprintf("%q DOUBLE", f))
	}

	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)", entryTable, strings.Join(colDefs, ", "))
	if _, err := db.Exec(createStmt); err != nil {
		return errors.Wrapf(errors.ErrCodeStoreWriteFailed, err, "failed to create staging table for %s", ric)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to begin transaction", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(fields)+1), ", ")

	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s VALUES (%s)", entryTable, placeholders))
	if err != nil {
		tx.Rollback()

		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to prepare insert statement", err)
	}
	defer stmt.Close()

	for _, row := range ser.Rows() {
		args := make([]any, 0, len(fields)+1)
		args = append(args, row.Date)

		for _, v := range row.Values {
			if v.IsSome() {
				args = append(args, v.Unwrap())
			} else {
				args = append(args, nil)
			}
		}

		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()

			return errors.Wrapf(errors.ErrCodeStoreWriteFailed, err, "failed to stage row for %s", ric)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to commit staged rows", err)
	}

	copyStmt := fmt.Sprintf("COPY %s TO '%s' (FORMAT PARQUET)", entryTable, strings.ReplaceAll(s.Path(ric), "'", "''"))
	if _, err := db.Exec(copyStmt); err != nil {
		return errors.Wrapf(errors.ErrCodeStoreWriteFailed, err, "failed to export cache entry for %s", ric)
	}

	s.logger.Debug("wrote cache entry",
		zap.String("ric", ric),
		zap.Int("rows", ser.Len()),
		zap.Strings("fields", fields))

	return nil
}

// Fields returns the column names of a cache entry, excluding the date
// column, in their stored order.
func (s *ParquetStore) Fields(ric string) ([]string, error) {
	if !s.Exists(ric) {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no cache entry for %s", ric)
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query, _, err := s.sq.Select("*").From(readParquet(s.Path(ric))).Limit(0).ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build fields query", err)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreReadFailed, err, "failed to read cache entry schema for %s", ric)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreReadFailed, "failed to resolve cache entry columns", err)
	}

	fields := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != dateColumn {
			fields = append(fields, c)
		}
	}

	return fields, nil
}

// LatestDate returns the date of the last row in a cache entry.
func (s *ParquetStore) LatestDate(ric string) (time.Time, error) {
	if !s.Exists(ric) {
		return time.Time{}, errors.Newf(errors.ErrCodeDataNotFound, "no cache entry for %s", ric)
	}

	db, err := s.open()
	if err != nil {
		return time.Time{}, err
	}
	defer db.Close()

	query, _, err := s.sq.Select(fmt.Sprintf("max(%s)", dateColumn)).From(readParquet(s.Path(ric))).ToSql()
	if err != nil {
		return time.Time{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build latest date query", err)
	}

	var latest sql.NullTime
	if err := db.QueryRow(query).Scan(&latest); err != nil {
		return time.Time{}, errors.Wrapf(errors.ErrCodeStoreReadFailed, err, "failed to read latest date for %s", ric)
	}

	if !latest.Valid {
		return time.Time{}, errors.Newf(errors.ErrCodeDataNotFound, "cache entry for %s is empty", ric)
	}

	return latest.Time, nil
}
