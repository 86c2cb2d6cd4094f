package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/histcache/internal/logger"
	"github.com/rxtech-lab/histcache/internal/naming"
	"github.com/rxtech-lab/histcache/internal/series"
	"github.com/rxtech-lab/histcache/pkg/errors"
)

// fakeProvider is a scripted vendor binding. Its fetch hook receives the
// requested field set and date range and returns whatever the test wants.
type fakeProvider struct {
	fetch      func(ric string, fields []naming.Field, start, end time.Time) (*series.Series, error)
	openCalls  int
	closeCalls int
	open       bool
	fetched    []string
	lastStart  time.Time
	lastEnd    time.Time
}

func (f *fakeProvider) OpenSession(ctx context.Context) error {
	f.openCalls++
	f.open = true

	return nil
}

func (f *fakeProvider) CloseSession() error {
	f.closeCalls++
	f.open = false

	return nil
}

func (f *fakeProvider) GetHistory(ctx context.Context, ric string, fields []naming.Field, start, end time.Time) (*series.Series, error) {
	if !f.open {
		return nil, errors.New(errors.ErrCodeSessionNotOpen, "session not open")
	}

	f.fetched = append(f.fetched, ric)
	f.lastStart, f.lastEnd = start, end

	return f.fetch(ric, fields, start, end)
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

// dailySeries builds one row per calendar day over [from, to] with every
// cell populated.
func dailySeries(names []string, from, to time.Time) *series.Series {
	ser := series.New(names)

	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		cells := make([]optional.Option[float64], len(names))
		for i := range cells {
			cells[i] = optional.Some(100 + float64(d.Day()))
		}

		if err := ser.AddRow(d, cells); err != nil {
			panic(err)
		}
	}

	return ser
}

func fieldNames(fields []naming.Field) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}

	return names
}

type ManagerTestSuite struct {
	suite.Suite
	provider *fakeProvider
	manager  *Manager
	config   Config
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

func (suite *ManagerTestSuite) SetupTest() {
	namingDir := suite.T().TempDir()

	fields := `{"close": "TRDPRC_1", "volume": "ACVOL_UNS"}`
	suite.Require().NoError(os.WriteFile(filepath.Join(namingDir, "fields.json"), []byte(fields), 0644))

	rics := `["AAPL.O", "MSFT.O"]`
	suite.Require().NoError(os.WriteFile(filepath.Join(namingDir, "rics_sp500.json"), []byte(rics), 0644))

	suite.config = Config{
		DataDir:   filepath.Join(suite.T().TempDir(), "data"),
		NamingDir: namingDir,
	}

	suite.provider = &fakeProvider{
		fetch: func(ric string, fields []naming.Field, start, end time.Time) (*series.Series, error) {
			return dailySeries(fieldNames(fields), start, end), nil
		},
	}

	suite.newManager()
}

func (suite *ManagerTestSuite) newManager() {
	manager, err := NewManagerWithProvider(suite.config, suite.provider, logger.NewNopLogger(), nil)
	suite.Require().NoError(err)
	suite.manager = manager
}

// seedEntry writes a populated cache entry directly through the store.
func (suite *ManagerTestSuite) seedEntry(ric string, names []string, from, to time.Time) {
	suite.Require().NoError(suite.manager.Store().Write(ric, dailySeries(names, from, to)))
}

func (suite *ManagerTestSuite) initParams(rics ...string) InitParams {
	return InitParams{
		RICs:   rics,
		Fields: []string{"close", "volume"},
		Start:  day(1),
		End:    day(3),
	}
}

func (suite *ManagerTestSuite) TestResolve() {
	rics, err := suite.manager.Resolve("sp500")
	suite.NoError(err)
	suite.Equal([]string{"AAPL.O", "MSFT.O"}, rics)
}

func (suite *ManagerTestSuite) TestResolveUnknownIndex() {
	_, err := suite.manager.Resolve("ftse100")
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeDataNotFound))
}

func (suite *ManagerTestSuite) TestInitCreatesEntries() {
	report, err := suite.manager.Init(context.Background(), suite.initParams("AAPL.O", "MSFT.O"))
	suite.Require().NoError(err)

	suite.Equal(2, report.Count(StatusCreated))
	suite.True(suite.manager.Store().Exists("AAPL.O"))
	suite.True(suite.manager.Store().Exists("MSFT.O"))

	// One session for the whole batch, closed afterwards
	suite.Equal(1, suite.provider.openCalls)
	suite.Equal(1, suite.provider.closeCalls)
}

func (suite *ManagerTestSuite) TestInitIdempotent() {
	_, err := suite.manager.Init(context.Background(), suite.initParams("AAPL.O", "MSFT.O"))
	suite.Require().NoError(err)

	before, err := os.ReadFile(suite.manager.Store().Path("AAPL.O"))
	suite.Require().NoError(err)

	report, err := suite.manager.Init(context.Background(), suite.initParams("AAPL.O", "MSFT.O"))
	suite.Require().NoError(err)

	suite.Equal(2, report.Count(StatusExists))
	suite.Equal(0, report.Count(StatusCreated))

	// No session for an all-cached batch
	suite.Equal(1, suite.provider.openCalls)

	after, err := os.ReadFile(suite.manager.Store().Path("AAPL.O"))
	suite.Require().NoError(err)
	suite.Equal(before, after)
}

func (suite *ManagerTestSuite) TestInitMissingFieldSkipsInstrument() {
	suite.provider.fetch = func(ric string, fields []naming.Field, start, end time.Time) (*series.Series, error) {
		if ric == "AAPL.O" {
			// Vendor served only the close column
			return dailySeries([]string{"close"}, start, end), nil
		}

		return dailySeries(fieldNames(fields), start, end), nil
	}

	report, err := suite.manager.Init(context.Background(), suite.initParams("AAPL.O", "MSFT.O"))
	suite.Require().NoError(err)

	suite.Equal([]string{"AAPL.O"}, report.ByStatus(StatusMissingFields))
	suite.Equal([]string{"MSFT.O"}, report.ByStatus(StatusCreated))
	suite.False(suite.manager.Store().Exists("AAPL.O"))

	for _, result := range report.Results {
		if result.RIC == "AAPL.O" {
			suite.Equal([]string{"volume"}, result.MissingFields)
		}
	}
}

func (suite *ManagerTestSuite) TestInitFetchFailureDoesNotAbortBatch() {
	suite.provider.fetch = func(ric string, fields []naming.Field, start, end time.Time) (*series.Series, error) {
		if ric == "AAPL.O" {
			return nil, errors.New(errors.ErrCodeHistoryFetchFailed, "vendor unavailable")
		}

		return dailySeries(fieldNames(fields), start, end), nil
	}

	report, err := suite.manager.Init(context.Background(), suite.initParams("AAPL.O", "MSFT.O"))
	suite.Require().NoError(err)

	suite.Equal([]string{"AAPL.O"}, report.ByStatus(StatusFailed))
	suite.Equal([]string{"MSFT.O"}, report.ByStatus(StatusCreated))

	// Session is closed even with failures in the batch
	suite.Equal(1, suite.provider.closeCalls)
}

func (suite *ManagerTestSuite) TestInitUnknownRequestedField() {
	params := suite.initParams("AAPL.O")
	params.Fields = []string{"close", "bid"}

	_, err := suite.manager.Init(context.Background(), params)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownField))
	suite.Equal(0, suite.provider.openCalls)
}

func (suite *ManagerTestSuite) TestUpdateAppendsDelta() {
	suite.seedEntry("AAPL.O", []string{"close", "volume"}, day(1), day(3))

	report, err := suite.manager.Update(context.Background(), UpdateParams{RICs: []string{"AAPL.O"}, End: day(5)})
	suite.Require().NoError(err)

	suite.Equal([]string{"AAPL.O"}, report.ByStatus(StatusUpdated))

	// Delta starts the day after the latest cached row
	suite.Equal(day(4), suite.provider.lastStart)
	suite.Equal(day(5), suite.provider.lastEnd)

	got, err := suite.manager.Store().Read("AAPL.O")
	suite.Require().NoError(err)
	suite.Equal(5, got.Len())

	// Pre-update rows are unaltered
	suite.Equal(day(1), got.Rows()[0].Date)
	suite.Equal(101.0, got.Value(0, "close").Unwrap())

	latest, _ := got.LatestDate()
	suite.Equal(day(5), latest)
}

func (suite *ManagerTestSuite) TestUpdateNoOpLeavesFileUntouched() {
	suite.seedEntry("AAPL.O", []string{"close"}, day(1), day(5))

	before, err := os.ReadFile(suite.manager.Store().Path("AAPL.O"))
	suite.Require().NoError(err)

	report, err := suite.manager.Update(context.Background(), UpdateParams{RICs: []string{"AAPL.O"}, End: day(5)})
	suite.Require().NoError(err)
	suite.Equal([]string{"AAPL.O"}, report.ByStatus(StatusCurrent))
	suite.Empty(suite.provider.fetched)

	after, err := os.ReadFile(suite.manager.Store().Path("AAPL.O"))
	suite.Require().NoError(err)
	suite.Equal(before, after)
}

func (suite *ManagerTestSuite) TestUpdateEmptyDeltaIsCurrent() {
	suite.seedEntry("AAPL.O", []string{"close"}, day(1), day(5))

	suite.provider.fetch = func(ric string, fields []naming.Field, start, end time.Time) (*series.Series, error) {
		// No trading days in the delta range
		return series.New(fieldNames(fields)), nil
	}

	report, err := suite.manager.Update(context.Background(), UpdateParams{RICs: []string{"AAPL.O"}, End: day(7)})
	suite.Require().NoError(err)
	suite.Equal([]string{"AAPL.O"}, report.ByStatus(StatusCurrent))
}

func (suite *ManagerTestSuite) TestUpdateUnknownCachedFieldAborts() {
	suite.seedEntry("AAPL.O", []string{"spread"}, day(1), day(3))
	suite.seedEntry("MSFT.O", []string{"close"}, day(1), day(3))

	_, err := suite.manager.Update(context.Background(), UpdateParams{RICs: []string{"AAPL.O", "MSFT.O"}, End: day(5)})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownField))

	// Fail-fast: no session was opened, nothing was fetched
	suite.Equal(0, suite.provider.openCalls)
	suite.Empty(suite.provider.fetched)
}

func (suite *ManagerTestSuite) TestUpdateUnknownCachedFieldSkipPolicy() {
	suite.config.FieldPolicy = FieldPolicySkip
	suite.newManager()

	suite.seedEntry("AAPL.O", []string{"spread"}, day(1), day(3))
	suite.seedEntry("MSFT.O", []string{"close"}, day(1), day(3))

	report, err := suite.manager.Update(context.Background(), UpdateParams{RICs: []string{"AAPL.O", "MSFT.O"}, End: day(5)})
	suite.Require().NoError(err)

	suite.Equal([]string{"AAPL.O"}, report.ByStatus(StatusSkipped))
	suite.Equal([]string{"MSFT.O"}, report.ByStatus(StatusUpdated))
}

func (suite *ManagerTestSuite) TestUpdateMissingEntryIsReported() {
	suite.seedEntry("MSFT.O", []string{"close"}, day(1), day(3))

	report, err := suite.manager.Update(context.Background(), UpdateParams{RICs: []string{"AAPL.O", "MSFT.O"}, End: day(5)})
	suite.Require().NoError(err)

	suite.Equal([]string{"AAPL.O"}, report.ByStatus(StatusFailed))
	suite.Equal([]string{"MSFT.O"}, report.ByStatus(StatusUpdated))
}

func (suite *ManagerTestSuite) TestLoadRaw() {
	seeded := series.New([]string{"close"})
	suite.Require().NoError(seeded.AddRow(day(1), []optional.Option[float64]{optional.Some[float64](100)}))
	suite.Require().NoError(seeded.AddRow(day(2), []optional.Option[float64]{optional.None[float64]()}))
	suite.Require().NoError(seeded.AddRow(day(3), []optional.Option[float64]{optional.Some[float64](102)}))
	suite.Require().NoError(suite.manager.Store().Write("AAPL.O", seeded))

	result, err := suite.manager.Load(LoadParams{RICs: []string{"AAPL.O"}})
	suite.Require().NoError(err)
	suite.Len(result, 1)

	// Raw load preserves the gap
	suite.True(result["AAPL.O"].Value(1, "close").IsNone())
}

func (suite *ManagerTestSuite) TestLoadPreprocessed() {
	seeded := series.New([]string{"close"})
	suite.Require().NoError(seeded.AddRow(day(1), []optional.Option[float64]{optional.None[float64]()}))
	suite.Require().NoError(seeded.AddRow(day(2), []optional.Option[float64]{optional.Some[float64](101)}))
	suite.Require().NoError(seeded.AddRow(day(3), []optional.Option[float64]{optional.None[float64]()}))
	suite.Require().NoError(suite.manager.Store().Write("AAPL.O", seeded))

	result, err := suite.manager.Load(LoadParams{RICs: []string{"AAPL.O"}, Preprocess: true})
	suite.Require().NoError(err)

	got := result["AAPL.O"]
	suite.Require().NotNil(got)

	// Leading missing row dropped, trailing gap forward-filled
	suite.Equal(2, got.Len())
	suite.Equal(day(2), got.Rows()[0].Date)
	suite.Equal(101.0, got.Value(1, "close").Unwrap())
}

func (suite *ManagerTestSuite) TestLoadMissingEntryOmitted() {
	suite.seedEntry("MSFT.O", []string{"close"}, day(1), day(3))

	result, err := suite.manager.Load(LoadParams{RICs: []string{"AAPL.O", "MSFT.O"}})
	suite.Require().NoError(err)

	suite.Len(result, 1)
	suite.NotContains(result, "AAPL.O")
	suite.Contains(result, "MSFT.O")
}
