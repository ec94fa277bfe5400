package haystack

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/denysvitali/haystack-go/metrics"
	"github.com/denysvitali/haystack-go/model"
	"github.com/denysvitali/haystack-go/store"
)

// Fetcher is the network side of a refresh.
type Fetcher interface {
	Fetch(ctx context.Context, hashes []model.AdvertisementHash, w model.TimeWindow, auth *AuthContext, deadline time.Duration) (*FetchResult, error)
}

var _ Fetcher = (*Client)(nil)

type Outcome string

const (
	// OutcomeNoData means the upstream had nothing for the requested keys.
	OutcomeNoData  Outcome = "no-data"
	OutcomeUpdated Outcome = "updated"
	// OutcomePartial means some reports could not be decrypted and were skipped.
	OutcomePartial Outcome = "partial"
)

type Skipped struct {
	UnknownKey           int `json:"unknownKey"`
	AuthenticationFailed int `json:"authenticationFailed"`
	MalformedPayload     int `json:"malformedPayload"`
}

func (s Skipped) Total() int {
	return s.UnknownKey + s.AuthenticationFailed + s.MalformedPayload
}

type AccessoryUpdate struct {
	AccessoryID string             `json:"accessoryId"`
	Keys        int                `json:"keys"`
	Decrypted   int                `json:"decrypted"`
	Added       int                `json:"added"`
	Duplicates  int                `json:"duplicates"`
	Conflicts   int                `json:"conflicts"`
	Latest      *model.LocationFix `json:"latest,omitempty"`
	Error       string             `json:"error,omitempty"`
}

type RefreshSummary struct {
	Window  model.TimeWindow `json:"-"`
	Outcome Outcome          `json:"outcome"`
	Reports int              `json:"reports"`
	// Decrypted counts reports that authenticated and parsed, before deduplication.
	Decrypted int     `json:"decrypted"`
	Skipped   Skipped `json:"skipped"`
	// SuspectedMismatch is set when every report failed authentication, which usually
	// means the master secret or the schedule does not match the accessory.
	SuspectedMismatch bool                        `json:"suspectedMismatch"`
	Accessories       map[string]*AccessoryUpdate `json:"accessories"`
}

// Update is published to subscribers after fixes were merged for an accessory.
type Update struct {
	AccessoryID string
	Added       []model.LocationFix
}

type Locator struct {
	fetcher  Fetcher
	auth     AuthProvider
	store    store.Store
	schedule Schedule
	cache    *KeyCache
	workers  int

	subMu sync.Mutex
	subs  map[chan Update]struct{}
}

type LocatorOption func(*Locator)

func WithSchedule(s Schedule) LocatorOption {
	return func(l *Locator) { l.schedule = s.withDefaults() }
}

func WithKeyCache(c *KeyCache) LocatorOption {
	return func(l *Locator) { l.cache = c }
}

func WithWorkers(n int) LocatorOption {
	return func(l *Locator) { l.workers = n }
}

func NewLocator(f Fetcher, auth AuthProvider, s store.Store, opts ...LocatorOption) *Locator {
	l := &Locator{
		fetcher:  f,
		auth:     auth,
		store:    s,
		schedule: DefaultSchedule,
		workers:  runtime.GOMAXPROCS(0),
		subs:     map[chan Update]struct{}{},
	}
	for _, o := range opts {
		o(l)
	}
	if l.workers <= 0 {
		l.workers = runtime.GOMAXPROCS(0)
	}
	return l
}

func (l *Locator) Schedule() Schedule {
	return l.schedule
}

// RefreshLocations fetches and decrypts every report published for accessories during w and
// merges the resulting fixes into their history. Network and credential failures abort the
// refresh; undecryptable reports are counted and skipped.
func (l *Locator) RefreshLocations(ctx context.Context, accessories []model.Accessory, w model.TimeWindow, deadline time.Duration) (*RefreshSummary, error) {
	summary := &RefreshSummary{
		Window:      w,
		Outcome:     OutcomeNoData,
		Accessories: make(map[string]*AccessoryUpdate, len(accessories)),
	}
	for _, acc := range accessories {
		summary.Accessories[acc.ID] = &AccessoryUpdate{AccessoryID: acc.ID}
	}

	table, failed := BuildKeyTable(ctx, l.schedule, accessories, w, l.cache, l.workers)
	for id, err := range failed {
		summary.Accessories[id].Error = err.Error()
	}
	for _, ref := range table {
		summary.Accessories[ref.AccessoryID].Keys++
	}
	metrics.KeysDerivedTotal.Add(float64(len(table)))
	if len(table) == 0 {
		logger.Infof("no keys to query over %s", w)
		metrics.RefreshesTotal.WithLabelValues(string(summary.Outcome)).Inc()
		return summary, nil
	}

	auth, err := l.auth.Context(ctx)
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues("auth").Inc()
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, fetchError(ErrAuthUnavailable, 0, err)
	}

	start := time.Now()
	res, err := l.fetcher.Fetch(ctx, table.Hashes(), w, auth, deadline)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(fetchErrorKind(err)).Inc()
		logger.Errorf("unable to fetch reports: %v", err)
		return nil, err
	}
	metrics.ReportsFetchedTotal.Add(float64(len(res.Reports) + res.Malformed))
	summary.Reports = len(res.Reports) + res.Malformed
	summary.Skipped.MalformedPayload = res.Malformed

	byAccessory := l.decryptAll(ctx, res.Reports, table, summary)

	for id, fixes := range byAccessory {
		upd := summary.Accessories[id]
		upd.Decrypted = len(fixes)
		summary.Decrypted += len(fixes)
		merged, err := l.store.Merge(ctx, id, fixes)
		if err != nil {
			return nil, fmt.Errorf("unable to merge fixes of %s: %w", id, err)
		}
		upd.Added = len(merged.Added)
		upd.Duplicates = merged.Duplicates
		upd.Conflicts = merged.Conflicts
		metrics.FixesAddedTotal.Add(float64(len(merged.Added)))
		if len(merged.Added) > 0 {
			l.publish(Update{AccessoryID: id, Added: merged.Added})
		}
	}
	for id, upd := range summary.Accessories {
		if upd.Latest, err = l.store.Latest(ctx, id); err != nil {
			logger.Warnf("unable to get latest location of %s: %v", id, err)
		}
	}

	summary.Outcome = outcome(summary)
	if summary.SuspectedMismatch {
		logger.Warnf("all %d reports failed authentication, check master secrets and schedule", summary.Reports)
	}
	metrics.RefreshesTotal.WithLabelValues(string(summary.Outcome)).Inc()
	logger.Infof("refresh over %s: %d reports, %d skipped, outcome %s",
		w, summary.Reports, summary.Skipped.Total(), summary.Outcome)
	return summary, nil
}

func outcome(s *RefreshSummary) Outcome {
	s.SuspectedMismatch = s.Reports > 0 && s.Skipped.AuthenticationFailed == s.Reports
	switch {
	case s.Skipped.AuthenticationFailed > 0 || s.Skipped.MalformedPayload > 0:
		return OutcomePartial
	case s.Decrypted == 0:
		return OutcomeNoData
	default:
		return OutcomeUpdated
	}
}

type decrypted struct {
	fix model.LocationFix
	err error
}

// decryptAll decrypts reports on the worker pool and groups the fixes by accessory.
// Skips are tallied into summary.
func (l *Locator) decryptAll(ctx context.Context, reports []model.EncryptedReport, table KeyTable, summary *RefreshSummary) map[string][]model.LocationFix {
	results := make([]decrypted, len(reports))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, r := range reports {
		i, r := i, r
		g.Go(func() error {
			fix, err := Decrypt(r, table)
			results[i] = decrypted{fix: fix, err: err}
			return nil
		})
	}
	_ = g.Wait()

	byAccessory := map[string][]model.LocationFix{}
	for i, res := range results {
		switch {
		case res.err == nil:
			id := table[reports[i].Hash].AccessoryID
			byAccessory[id] = append(byAccessory[id], res.fix)
			continue
		case errors.Is(res.err, ErrUnknownKey):
			summary.Skipped.UnknownKey++
			metrics.ReportsSkippedTotal.WithLabelValues("unknown_key").Inc()
			logger.Debugf("skipping report: %v", res.err)
			continue
		case errors.Is(res.err, ErrAuthenticationFailed):
			summary.Skipped.AuthenticationFailed++
			metrics.ReportsSkippedTotal.WithLabelValues("authentication_failed").Inc()
		default:
			summary.Skipped.MalformedPayload++
			metrics.ReportsSkippedTotal.WithLabelValues("malformed_payload").Inc()
		}
		logger.Warnf("discarding report %s: %v", KeyID(reports[i].Hash), res.err)
	}
	return byAccessory
}

func fetchErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrAuthUnavailable):
		return "auth"
	case errors.Is(err, ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream"
	default:
		return "other"
	}
}

// History returns the fixes of an accessory inside w, oldest first.
func (l *Locator) History(ctx context.Context, accessoryID string, w model.TimeWindow) ([]model.LocationFix, error) {
	return l.store.Query(ctx, accessoryID, w)
}

func (l *Locator) Latest(ctx context.Context, accessoryID string) (*model.LocationFix, error) {
	return l.store.Latest(ctx, accessoryID)
}

// Subscribe registers for merge notifications. Updates are dropped for subscribers whose
// buffer is full. The returned func unsubscribes and closes the channel.
func (l *Locator) Subscribe(buffer int) (<-chan Update, func()) {
	ch := make(chan Update, buffer)
	l.subMu.Lock()
	l.subs[ch] = struct{}{}
	l.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.subMu.Lock()
			delete(l.subs, ch)
			l.subMu.Unlock()
			close(ch)
		})
	}
}

func (l *Locator) publish(u Update) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for ch := range l.subs {
		select {
		case ch <- u:
		default:
			logger.Warnf("subscriber is not keeping up, dropping update for %s", u.AccessoryID)
		}
	}
}
