// Package provider abstracts the market-data vendor SDK boundary behind a
// single session-scoped interface. Concrete bindings are selected by
// configuration instead of maintaining parallel copies per SDK version.
package provider

import (
	"context"
	"time"

	"github.com/rxtech-lab/histcache/internal/naming"
	"github.com/rxtech-lab/histcache/internal/series"
	"github.com/rxtech-lab/histcache/pkg/errors"
)

// Type selects a concrete vendor binding.
type Type string

const (
	// TypeRefinitiv is the cloud Refinitiv Data Platform binding.
	TypeRefinitiv Type = "refinitiv"
	// TypeRefinitivDesktop is the local Workspace/Eikon session proxy binding.
	TypeRefinitivDesktop Type = "refinitiv-desktop"
	// TypePolygon serves daily aggregates through the Polygon.io REST client.
	TypePolygon Type = "polygon"
)

// Provider is the boundary to a market-data vendor. One session is opened
// per batch of fetches and closed afterwards; GetHistory is only valid
// between OpenSession and CloseSession.
type Provider interface {
	// OpenSession establishes a vendor session for a batch of fetches.
	OpenSession(ctx context.Context) error
	// GetHistory fetches the requested fields for one instrument over
	// [start, end]. Result columns are keyed by the short field name;
	// fields the vendor cannot serve are absent rather than an error.
	GetHistory(ctx context.Context, ric string, fields []naming.Field, start, end time.Time) (*series.Series, error)
	// CloseSession releases the vendor session.
	CloseSession() error
}

// Config carries the settings for every supported binding; only the fields
// of the selected binding are read.
type Config struct {
	Type Type `yaml:"type" validate:"required,oneof=refinitiv refinitiv-desktop polygon"`
	// BaseURL overrides the vendor endpoint. Mostly useful for tests and
	// on-prem gateways; empty selects the binding's default.
	BaseURL string `yaml:"base_url"`
	// AppKey authenticates both Refinitiv bindings.
	AppKey string `yaml:"app_key"`
	// Username and Password are the platform (machine account) credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// PolygonAPIKey authenticates the polygon binding.
	PolygonAPIKey string `yaml:"polygon_api_key"`
}

// New creates a vendor binding from the given configuration.
func New(config Config) (Provider, error) {
	switch config.Type {
	case TypeRefinitiv:
		return NewRefinitivClient(config.AppKey, config.Username, config.Password, config.BaseURL)
	case TypeRefinitivDesktop:
		return NewDesktopClient(config.AppKey, config.BaseURL)
	case TypePolygon:
		return NewPolygonClient(config.PolygonAPIKey)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported vendor binding: %s", config.Type)
	}
}
