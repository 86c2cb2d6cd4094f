package provider

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/rxtech-lab/histcache/internal/naming"
	"github.com/rxtech-lab/histcache/internal/series"
	"github.com/rxtech-lab/histcache/pkg/errors"
)

// PolygonClient serves daily aggregates through the Polygon.io REST API. It
// understands only the vendor field codes that map onto aggregate columns;
// anything else is absent from its results.
type PolygonClient struct {
	client *polygon.Client
	open   bool
}

// aggColumns maps vendor field codes to daily aggregate columns.
var aggColumns = map[string]func(models.Agg) float64{
	"OPEN_PRC":  func(a models.Agg) float64 { return a.Open },
	"HIGH_1":    func(a models.Agg) float64 { return a.High },
	"LOW_1":     func(a models.Agg) float64 { return a.Low },
	"TRDPRC_1":  func(a models.Agg) float64 { return a.Close },
	"ACVOL_UNS": func(a models.Agg) float64 { return a.Volume },
}

// NewPolygonClient creates the polygon binding.
func NewPolygonClient(apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "polygon binding requires an API key")
	}

	return &PolygonClient{
		client: polygon.New(apiKey),
	}, nil
}

// OpenSession implements Provider. The REST client is connectionless, so the
// session only gates GetHistory the way the stateful bindings do.
func (c *PolygonClient) OpenSession(ctx context.Context) error {
	c.open = true

	return nil
}

// CloseSession implements Provider.
func (c *PolygonClient) CloseSession() error {
	c.open = false

	return nil
}

// GetHistory implements Provider.
func (c *PolygonClient) GetHistory(ctx context.Context, ric string, fields []naming.Field, start, end time.Time) (*series.Series, error) {
	if !c.open {
		return nil, errors.New(errors.ErrCodeSessionNotOpen, "polygon session is not open")
	}

	present := make([]naming.Field, 0, len(fields))
	names := make([]string, 0, len(fields))

	for _, f := range fields {
		if _, ok := aggColumns[f.Code]; ok {
			present = append(present, f)
			names = append(names, f.Name)
		}
	}

	ser := series.New(names)

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     ric,
		Multiplier: 1,
		Timespan:   models.Day,
		From:       models.Millis(start),
		To:         models.Millis(end),
	}.WithOrder(models.Asc).WithLimit(50000)

	iter := c.client.ListAggs(ctx, params)

	for iter.Next() {
		agg := iter.Item()
		date := time.Time(agg.Timestamp).UTC().Truncate(24 * time.Hour)

		cells := make([]optional.Option[float64], len(present))
		for i, f := range present {
			cells[i] = optional.Some(aggColumns[f.Code](agg))
		}

		if err := ser.AddRow(date, cells); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeHistoryParseFailed, err, "polygon aggregates for %s are not a valid daily series", ric)
		}
	}

	if iter.Err() != nil {
		return nil, errors.Wrapf(errors.ErrCodeHistoryFetchFailed, iter.Err(), "history fetch failed for %s", ric)
	}

	return ser, nil
}
