package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/denysvitali/haystack-go/model"
)

type history struct {
	mu    sync.RWMutex
	fixes []model.LocationFix
}

// Memory is an in-process Store.
type Memory struct {
	mu        sync.Mutex
	histories map[string]*history
}

func NewMemory() *Memory {
	return &Memory{histories: map[string]*history{}}
}

var _ Store = (*Memory)(nil)

func (m *Memory) get(accessoryID string, create bool) *history {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.histories[accessoryID]
	if !ok && create {
		h = &history{}
		m.histories[accessoryID] = h
	}
	return h
}

func (m *Memory) Register(_ context.Context, acc model.Accessory) error {
	m.get(acc.ID, true)
	return nil
}

func compareTimestamp(f model.LocationFix, t time.Time) int {
	return f.Timestamp.Compare(t)
}

func (m *Memory) Merge(_ context.Context, accessoryID string, fixes []model.LocationFix) (MergeResult, error) {
	var res MergeResult
	h := m.get(accessoryID, true)
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, f := range fixes {
		i, found := slices.BinarySearchFunc(h.fixes, f.Timestamp, compareTimestamp)
		if found {
			if h.fixes[i].SamePosition(f) {
				res.Duplicates++
			} else {
				logger.Debugf("%s: keeping stored fix at %s over conflicting one", accessoryID, f.Timestamp)
				res.Conflicts++
			}
			continue
		}
		h.fixes = slices.Insert(h.fixes, i, f)
		res.Added = append(res.Added, f)
	}
	return res, nil
}

func (m *Memory) Query(_ context.Context, accessoryID string, w model.TimeWindow) ([]model.LocationFix, error) {
	h := m.get(accessoryID, false)
	if h == nil {
		return []model.LocationFix{}, nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	from, _ := slices.BinarySearchFunc(h.fixes, w.Start, compareTimestamp)
	to, _ := slices.BinarySearchFunc(h.fixes, w.End(), compareTimestamp)
	if to < from {
		to = from
	}
	return slices.Clone(h.fixes[from:to]), nil
}

func (m *Memory) Latest(_ context.Context, accessoryID string) (*model.LocationFix, error) {
	h := m.get(accessoryID, false)
	if h == nil {
		return nil, nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.fixes) == 0 {
		return nil, nil
	}
	latest := h.fixes[len(h.fixes)-1]
	return &latest, nil
}
