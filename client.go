package haystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/haystack-go/model"
)

var logger = logrus.StandardLogger().WithField("pkg", "haystack")

const (
	DefaultFetchURL      = "https://gateway.icloud.com/acsnservice/fetch"
	DefaultFetchDeadline = 20 * time.Second
)

type Client struct {
	endpoint   string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.endpoint = endpoint }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   DefaultFetchURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchParams struct {
	StartDate int64    `json:"startDate"`
	EndDate   int64    `json:"endDate"`
	Ids       []string `json:"ids"` // A list of Hashed Advertisements (base64)
}

type FindRequest struct {
	Search []searchParams `json:"search"`
}

// FetchResult holds every parseable record the upstream returned. Records that could not
// be split into their parts are counted in Malformed and dropped.
type FetchResult struct {
	Reports   []model.EncryptedReport
	Malformed int
}

// Fetch asks the upstream network for every report published under hashes during w.
// The call fails with ErrTimeout once deadline has elapsed, however many hashes are requested.
func (c *Client) Fetch(ctx context.Context, hashes []model.AdvertisementHash, w model.TimeWindow, auth *AuthContext, deadline time.Duration) (*FetchResult, error) {
	ids := make([]string, 0, len(hashes))
	for _, h := range hashes {
		ids = append(ids, h.String())
	}
	raw, err := c.FetchRaw(ctx, ids, w, auth, deadline)
	if err != nil {
		return nil, err
	}

	result := &FetchResult{Reports: make([]model.EncryptedReport, 0, len(raw))}
	for _, r := range raw {
		er, err := ParseReport(r)
		if err != nil {
			logger.Warnf("dropping report %q: %v", r.ID, err)
			result.Malformed++
			continue
		}
		result.Reports = append(result.Reports, er)
	}
	return result, nil
}

// FetchRaw performs the upstream request and returns the records untouched.
func (c *Client) FetchRaw(ctx context.Context, ids []string, w model.TimeWindow, auth *AuthContext, deadline time.Duration) ([]Report, error) {
	if !auth.usable() {
		return nil, fetchError(ErrAuthUnavailable, 0, errors.New("no search party token"))
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if deadline <= 0 {
		deadline = DefaultFetchDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	jsonBytes, err := json.Marshal(FindRequest{
		Search: []searchParams{{
			StartDate: w.Start.UnixMilli(),
			EndDate:   w.End().UnixMilli(),
			Ids:       ids,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to marshal find request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, fetchError(ErrMalformedRequest, 0, err)
	}
	if auth.Headers != nil {
		req.Header = auth.Headers.Clone()
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(auth.Dsid, auth.SearchPartyToken)

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fetchErrorForStatus(res.StatusCode)
	}
	var result FindResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		if ctx.Err() != nil {
			return nil, transportError(ctx, err)
		}
		return nil, fetchError(ErrUpstreamUnavailable, res.StatusCode, fmt.Errorf("unable to decode JSON: %w", err))
	}
	logger.Debugf("fetched %d reports for %d ids in %s", len(result.Results), len(ids), time.Since(start))
	return result.Results, nil
}

func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fetchError(ErrTimeout, 0, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	default:
		return fetchError(ErrUpstreamUnavailable, 0, err)
	}
}
