package provider

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/histcache/internal/naming"
	"github.com/rxtech-lab/histcache/internal/series"
	"github.com/rxtech-lab/histcache/pkg/errors"
)

const (
	defaultPlatformURL = "https://api.refinitiv.com"
	tokenPath          = "/auth/oauth2/v1/token"
	historyPathFormat  = "/data/historical-pricing/v1/views/interday-summaries/%s"
	dailyInterval      = "P1D"
)

// RefinitivClient binds to the cloud Refinitiv Data Platform. A session is
// an OAuth2 password-grant bearer token held for the duration of a batch.
type RefinitivClient struct {
	http     *resty.Client
	appKey   string
	username string
	password string
	token    string
	open     bool
}

// NewRefinitivClient creates the platform binding. An empty baseURL selects
// the public RDP endpoint.
func NewRefinitivClient(appKey, username, password, baseURL string) (Provider, error) {
	if appKey == "" || username == "" || password == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration,
			"refinitiv binding requires app key, username and password")
	}

	if baseURL == "" {
		baseURL = defaultPlatformURL
	}

	return &RefinitivClient{
		http:     resty.New().SetBaseURL(baseURL),
		appKey:   appKey,
		username: username,
		password: password,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// OpenSession acquires a bearer token for the batch.
func (c *RefinitivClient) OpenSession(ctx context.Context) error {
	var token tokenResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":                 "password",
			"username":                   c.username,
			"password":                   c.password,
			"client_id":                  c.appKey,
			"scope":                      "trapi",
			"takeExclusiveSignOnControl": "true",
		}).
		SetResult(&token).
		Post(tokenPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSessionOpenFailed, "failed to open platform session", err)
	}

	if resp.IsError() {
		return errors.Newf(errors.ErrCodeSessionOpenFailed, "platform session request returned %s", resp.Status())
	}

	if token.AccessToken == "" {
		return errors.New(errors.ErrCodeSessionOpenFailed, "platform session response carried no access token")
	}

	c.token = token.AccessToken
	c.open = true

	return nil
}

// CloseSession discards the bearer token. The platform session is stateless
// beyond the token, so there is nothing to tear down remotely.
func (c *RefinitivClient) CloseSession() error {
	c.token = ""
	c.open = false

	return nil
}

// GetHistory implements Provider.
func (c *RefinitivClient) GetHistory(ctx context.Context, ric string, fields []naming.Field, start, end time.Time) (*series.Series, error) {
	if !c.open {
		return nil, errors.New(errors.ErrCodeSessionNotOpen, "platform session is not open")
	}

	var envelopes []historyEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetQueryParams(historyQuery(fields, start, end)).
		SetResult(&envelopes).
		Get(fmt.Sprintf(historyPathFormat, url.PathEscape(ric)))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeHistoryFetchFailed, err, "history fetch failed for %s", ric)
	}

	if resp.IsError() {
		return nil, errors.Newf(errors.ErrCodeHistoryFetchFailed, "history request for %s returned %s", ric, resp.Status())
	}

	return parseHistory(ric, fields, envelopes)
}

// historyEnvelope is the per-universe record of the RDP historical-pricing
// response: column headers plus row-major data, newest date first.
type historyEnvelope struct {
	Universe struct {
		RIC string `json:"ric"`
	} `json:"universe"`
	Headers []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"headers"`
	Data [][]any `json:"data"`
}

func historyQuery(fields []naming.Field, start, end time.Time) map[string]string {
	codes := make([]string, 0, len(fields))
	for _, f := range fields {
		codes = append(codes, f.Code)
	}

	return map[string]string{
		"fields":   strings.Join(codes, ","),
		"start":    start.Format(time.DateOnly),
		"end":      end.Format(time.DateOnly),
		"interval": dailyInterval,
	}
}

// parseHistory converts a historical-pricing response into a series keyed by
// short field names. Requested codes missing from the response headers are
// dropped from the result rather than treated as an error; the caller
// decides what an incomplete column set means.
func parseHistory(ric string, fields []naming.Field, envelopes []historyEnvelope) (*series.Series, error) {
	if len(envelopes) == 0 {
		return nil, errors.Newf(errors.ErrCodeHistoryParseFailed, "empty history response for %s", ric)
	}

	env := envelopes[0]

	dateIdx := -1
	colIdx := make(map[string]int, len(env.Headers))

	for i, h := range env.Headers {
		if strings.EqualFold(h.Name, "DATE") {
			dateIdx = i

			continue
		}

		colIdx[h.Name] = i
	}

	if dateIdx < 0 {
		return nil, errors.Newf(errors.ErrCodeHistoryParseFailed, "history response for %s has no DATE column", ric)
	}

	present := make([]naming.Field, 0, len(fields))
	names := make([]string, 0, len(fields))

	for _, f := range fields {
		if _, ok := colIdx[f.Code]; ok {
			present = append(present, f)
			names = append(names, f.Name)
		}
	}

	type parsedRow struct {
		date  time.Time
		cells []optional.Option[float64]
	}

	rows := make([]parsedRow, 0, len(env.Data))

	for _, rec := range env.Data {
		if dateIdx >= len(rec) {
			return nil, errors.Newf(errors.ErrCodeHistoryParseFailed, "history row for %s is shorter than its headers", ric)
		}

		dateStr, ok := rec[dateIdx].(string)
		if !ok {
			return nil, errors.Newf(errors.ErrCodeHistoryParseFailed, "history row for %s has a non-string date", ric)
		}

		date, err := time.Parse(time.DateOnly, dateStr)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeHistoryParseFailed, err, "history row for %s has an unparseable date", ric)
		}

		cells := make([]optional.Option[float64], len(present))

		for j, f := range present {
			idx := colIdx[f.Code]
			if idx < len(rec) {
				cells[j] = numericCell(rec[idx])
			} else {
				cells[j] = optional.None[float64]()
			}
		}

		rows = append(rows, parsedRow{date: date, cells: cells})
	}

	// The vendor returns newest first; cache entries are oldest first.
	sort.Slice(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })

	ser := series.New(names)

	for _, row := range rows {
		if err := ser.AddRow(row.date, row.cells); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeHistoryParseFailed, err, "history response for %s is not a valid daily series", ric)
		}
	}

	return ser, nil
}

func numericCell(v any) optional.Option[float64] {
	if f, ok := v.(float64); ok {
		return optional.Some(f)
	}

	return optional.None[float64]()
}
