package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rxtech-lab/histcache/internal/naming"
	"github.com/rxtech-lab/histcache/internal/series"
	"github.com/rxtech-lab/histcache/pkg/errors"
)

const (
	defaultDesktopURL        = "http://localhost:9000"
	desktopStatusPath        = "/api/status"
	desktopHistoryPathFormat = "/api/rdp/data/historical-pricing/v1/views/interday-summaries/%s"
)

// DesktopClient binds to the session proxy a running Workspace/Eikon desktop
// exposes on localhost. Every request authenticates with the application key
// header; opening a session is a handshake that verifies the proxy is up.
type DesktopClient struct {
	http *resty.Client
	open bool
}

// NewDesktopClient creates the desktop binding. An empty baseURL selects the
// default local proxy address.
func NewDesktopClient(appKey, baseURL string) (Provider, error) {
	if appKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "desktop binding requires an app key")
	}

	if baseURL == "" {
		baseURL = defaultDesktopURL
	}

	return &DesktopClient{
		http: resty.New().SetBaseURL(baseURL).SetHeader("AppKey", appKey),
	}, nil
}

// OpenSession verifies the desktop proxy is reachable.
func (c *DesktopClient) OpenSession(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get(desktopStatusPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSessionOpenFailed, "desktop session proxy is not reachable", err)
	}

	if resp.IsError() {
		return errors.Newf(errors.ErrCodeSessionOpenFailed, "desktop session handshake returned %s", resp.Status())
	}

	c.open = true

	return nil
}

// CloseSession implements Provider. The desktop owns the real session; the
// binding only tracks whether the handshake happened.
func (c *DesktopClient) CloseSession() error {
	c.open = false

	return nil
}

// GetHistory implements Provider. The proxy serves the same historical
// pricing shape as the platform, so parsing is shared.
func (c *DesktopClient) GetHistory(ctx context.Context, ric string, fields []naming.Field, start, end time.Time) (*series.Series, error) {
	if !c.open {
		return nil, errors.New(errors.ErrCodeSessionNotOpen, "desktop session is not open")
	}

	var envelopes []historyEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(historyQuery(fields, start, end)).
		SetResult(&envelopes).
		Get(fmt.Sprintf(desktopHistoryPathFormat, url.PathEscape(ric)))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeHistoryFetchFailed, err, "history fetch failed for %s", ric)
	}

	if resp.IsError() {
		return nil, errors.Newf(errors.ErrCodeHistoryFetchFailed, "history request for %s returned %s", ric, resp.Status())
	}

	return parseHistory(ric, fields, envelopes)
}
