// Package cache implements the instrument time-series cache manager: it
// resolves instrument lists, populates per-instrument Parquet cache entries
// from a vendor binding, refreshes them incrementally and loads them back
// for analysis.
package cache

import (
	"context"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rxtech-lab/histcache/internal/logger"
	"github.com/rxtech-lab/histcache/internal/naming"
	"github.com/rxtech-lab/histcache/internal/series"
	"github.com/rxtech-lab/histcache/internal/store"
	"github.com/rxtech-lab/histcache/pkg/errors"
	"github.com/rxtech-lab/histcache/pkg/provider"
)

// OnProgress reports batch progress: instruments processed so far out of the
// batch total, plus the identifier currently being worked on.
type OnProgress func(current, total int, ric string)

// Manager owns one cache store and one vendor binding. All operations are
// synchronous and single-threaded; the store must not be shared across
// concurrent processes.
type Manager struct {
	config     Config
	provider   provider.Provider
	store      *store.ParquetStore
	naming     *naming.Lookup
	logger     *logger.Logger
	validate   *validator.Validate
	onProgress OnProgress
}

// NewManager builds the vendor binding, store and lookups from the
// configuration.
func NewManager(config Config, log *logger.Logger, onProgress OnProgress) (*Manager, error) {
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	vendor, err := provider.New(config.Provider)
	if err != nil {
		return nil, err
	}

	return NewManagerWithProvider(config, vendor, log, onProgress)
}

// NewManagerWithProvider injects an already-built vendor binding. The
// provider section of the configuration is ignored.
func NewManagerWithProvider(config Config, vendor provider.Provider, log *logger.Logger, onProgress OnProgress) (*Manager, error) {
	config.applyDefaults()

	if config.DataDir == "" || config.NamingDir == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "data_dir and naming_dir are required")
	}

	lookup, err := naming.NewLookup(config.NamingDir)
	if err != nil {
		return nil, err
	}

	return &Manager{
		config:     config,
		provider:   vendor,
		store:      store.NewParquetStore(config.DataDir, log),
		naming:     lookup,
		logger:     log,
		validate:   validator.New(),
		onProgress: onProgress,
	}, nil
}

// Resolve returns the ordered instrument list for a named index.
func (m *Manager) Resolve(index string) ([]string, error) {
	return m.naming.Resolve(index)
}

// AvailableFields returns all field names the lookup can map to vendor codes.
func (m *Manager) AvailableFields() []string {
	return m.naming.Available()
}

// Store returns the ParquetStore backing this manager.
func (m *Manager) Store() *store.ParquetStore {
	return m.store
}

func (m *Manager) progress(current, total int, ric string) {
	if m.onProgress != nil {
		m.onProgress(current, total, ric)
	}
}

// InitParams describes a cold-start population batch.
type InitParams struct {
	RICs   []string  `validate:"required,min=1"`
	Fields []string  `validate:"required,min=1"`
	Start  time.Time `validate:"required"`
	End    time.Time `validate:"required,gtfield=Start"`
}

// Init creates cache entries for every instrument that does not have one
// yet. Instruments whose fetched result misses a requested field are
// reported and left un-cached; per-instrument fetch failures are recorded
// without aborting the batch. No session is opened when every instrument is
// already cached.
func (m *Manager) Init(ctx context.Context, params InitParams) (*Report, error) {
	if err := m.validate.Struct(params); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid init parameters", err)
	}

	fields, err := m.naming.Fields(params.Fields)
	if err != nil {
		return nil, err
	}

	report := newReport()

	var pending []string

	for _, ric := range params.RICs {
		if m.store.Exists(ric) {
			m.logger.Debug("cache entry already exists", zap.String("ric", ric))
			report.add(Result{RIC: ric, Status: StatusExists})

			continue
		}

		pending = append(pending, ric)
	}

	if len(pending) == 0 {
		return report, nil
	}

	m.logger.Info("starting init batch",
		zap.String("batch_id", report.BatchID),
		zap.Int("instruments", len(pending)),
		zap.Strings("fields", params.Fields))

	if err := m.provider.OpenSession(ctx); err != nil {
		return nil, err
	}

	defer func() {
		if err := m.provider.CloseSession(); err != nil {
			m.logger.Warn("failed to close vendor session", zap.Error(err))
		}
	}()

	for i, ric := range pending {
		m.progress(i, len(pending), ric)

		ser, err := m.provider.GetHistory(ctx, ric, fields, params.Start, params.End)
		if err != nil {
			m.logger.Warn("history fetch failed", zap.String("ric", ric), zap.Error(err))
			report.add(Result{RIC: ric, Status: StatusFailed, Err: err})

			continue
		}

		missing := missingNames(params.Fields, ser.Fields())
		if len(missing) > 0 {
			m.logger.Warn("requested fields missing from vendor result",
				zap.String("ric", ric),
				zap.Strings("missing", missing))
			report.add(Result{RIC: ric, Status: StatusMissingFields, MissingFields: missing})

			continue
		}

		if err := m.store.Write(ric, ser); err != nil {
			report.add(Result{RIC: ric, Status: StatusFailed, Err: err})

			continue
		}

		report.add(Result{RIC: ric, Status: StatusCreated, RowsWritten: ser.Len()})
	}

	m.progress(len(pending), len(pending), "")

	m.logger.Info("init batch finished",
		zap.String("batch_id", report.BatchID),
		zap.Int("created", report.Count(StatusCreated)),
		zap.Int("missing_fields", report.Count(StatusMissingFields)),
		zap.Int("failed", report.Count(StatusFailed)))

	return report, nil
}

// UpdateParams describes an incremental refresh batch.
type UpdateParams struct {
	RICs []string  `validate:"required,min=1"`
	End  time.Time `validate:"required"`
}

// Update appends the date range since each instrument's latest cached row,
// through the new end date. The field set is per cache entry. A cached
// column with no vendor code aborts the whole batch before any session is
// opened, unless the field policy is set to skip the offending instrument.
// Entries already covering the end date are left untouched.
func (m *Manager) Update(ctx context.Context, params UpdateParams) (*Report, error) {
	if err := m.validate.Struct(params); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid update parameters", err)
	}

	report := newReport()

	type job struct {
		ric    string
		fields []naming.Field
	}

	var jobs []job

	for _, ric := range params.RICs {
		cols, err := m.store.Fields(ric)
		if err != nil {
			report.add(Result{RIC: ric, Status: StatusFailed, Err: err})

			continue
		}

		fields, err := m.naming.Fields(cols)
		if err != nil {
			if m.config.FieldPolicy == FieldPolicySkip {
				m.logger.Warn("skipping instrument with unmapped cached field",
					zap.String("ric", ric), zap.Error(err))
				report.add(Result{RIC: ric, Status: StatusSkipped, Err: err})

				continue
			}

			return nil, errors.Wrapf(errors.ErrCodeUnknownField, err,
				"aborting update: cache entry for %s holds a field with no vendor code", ric)
		}

		jobs = append(jobs, job{ric: ric, fields: fields})
	}

	if len(jobs) == 0 {
		return report, nil
	}

	m.logger.Info("starting update batch",
		zap.String("batch_id", report.BatchID),
		zap.Int("instruments", len(jobs)),
		zap.Time("end", params.End))

	if err := m.provider.OpenSession(ctx); err != nil {
		return nil, err
	}

	defer func() {
		if err := m.provider.CloseSession(); err != nil {
			m.logger.Warn("failed to close vendor session", zap.Error(err))
		}
	}()

	for i, j := range jobs {
		m.progress(i, len(jobs), j.ric)
		report.add(m.updateOne(ctx, j.ric, j.fields, params.End))
	}

	m.progress(len(jobs), len(jobs), "")

	m.logger.Info("update batch finished",
		zap.String("batch_id", report.BatchID),
		zap.Int("updated", report.Count(StatusUpdated)),
		zap.Int("current", report.Count(StatusCurrent)),
		zap.Int("failed", report.Count(StatusFailed)))

	return report, nil
}

func (m *Manager) updateOne(ctx context.Context, ric string, fields []naming.Field, end time.Time) Result {
	latest, err := m.store.LatestDate(ric)
	if err != nil {
		return Result{RIC: ric, Status: StatusFailed, Err: err}
	}

	if !latest.Before(end) {
		m.logger.Debug("cache entry already current",
			zap.String("ric", ric), zap.Time("latest", latest))

		return Result{RIC: ric, Status: StatusCurrent}
	}

	// Start the day after the last cached row so the boundary row is not
	// duplicated across the old and appended data.
	start := latest.AddDate(0, 0, 1)

	delta, err := m.provider.GetHistory(ctx, ric, fields, start, end)
	if err != nil {
		m.logger.Warn("delta fetch failed", zap.String("ric", ric), zap.Error(err))

		return Result{RIC: ric, Status: StatusFailed, Err: err}
	}

	if delta.Len() == 0 {
		// No trading days in the delta range; nothing to append.
		return Result{RIC: ric, Status: StatusCurrent}
	}

	existing, err := m.store.Read(ric)
	if err != nil {
		return Result{RIC: ric, Status: StatusFailed, Err: err}
	}

	if err := existing.Append(delta); err != nil {
		return Result{RIC: ric, Status: StatusFailed, Err: err}
	}

	if err := m.store.Write(ric, existing); err != nil {
		return Result{RIC: ric, Status: StatusFailed, Err: err}
	}

	return Result{RIC: ric, Status: StatusUpdated, RowsWritten: delta.Len()}
}

// LoadParams describes a read of cached series.
type LoadParams struct {
	RICs []string `validate:"required,min=1"`
	// Preprocess forward-fills gaps and drops rows that still hold missing
	// values afterwards.
	Preprocess bool
}

// Load reads cache entries back into memory, keyed by identifier.
// Instruments without a cache entry are logged and omitted from the result,
// never an error.
func (m *Manager) Load(params LoadParams) (map[string]*series.Series, error) {
	if err := m.validate.Struct(params); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid load parameters", err)
	}

	result := make(map[string]*series.Series, len(params.RICs))

	for _, ric := range params.RICs {
		if !m.store.Exists(ric) {
			m.logger.Warn("no cache entry", zap.String("ric", ric))

			continue
		}

		ser, err := m.store.Read(ric)
		if err != nil {
			return nil, err
		}

		if params.Preprocess {
			ser.ForwardFill()
			ser.DropMissing()
		}

		result[ric] = ser
	}

	return result, nil
}

func missingNames(requested, got []string) []string {
	var missing []string

	for _, name := range requested {
		if !slices.Contains(got, name) {
			missing = append(missing, name)
		}
	}

	return missing
}
