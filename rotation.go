package haystack

import (
	"fmt"
	"math"
	"time"

	"github.com/denysvitali/haystack-go/model"
)

const (
	DefaultSlot = 15 * time.Minute
)

// DefaultEpoch is the reference date of the upstream network's timestamps.
var DefaultEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// Schedule maps wall-clock time onto rotation intervals.
type Schedule struct {
	Epoch time.Time
	Slot  time.Duration
}

var DefaultSchedule = Schedule{Epoch: DefaultEpoch, Slot: DefaultSlot}

func (s Schedule) withDefaults() Schedule {
	if s.Epoch.IsZero() {
		s.Epoch = DefaultEpoch
	}
	if s.Slot <= 0 {
		s.Slot = DefaultSlot
	}
	return s
}

// IntervalAt returns the interval covering t. ok is false before the epoch.
func (s Schedule) IntervalAt(t time.Time) (model.Interval, bool) {
	s = s.withDefaults()
	if t.Before(s.Epoch) {
		return 0, false
	}
	idx := int64(t.Sub(s.Epoch) / s.Slot)
	if idx > math.MaxUint32 {
		return 0, false
	}
	return model.Interval(idx), true
}

// IntervalStart is the first instant of interval i.
func (s Schedule) IntervalStart(i model.Interval) time.Time {
	s = s.withDefaults()
	return s.Epoch.Add(time.Duration(i) * s.Slot)
}

// WindowToIntervals lists, in ascending order, every interval overlapping w.
// A window shorter than a slot still yields its covering interval; the part of a
// window before the epoch is ignored.
func (s Schedule) WindowToIntervals(w model.TimeWindow) []model.Interval {
	s = s.withDefaults()
	start, end := w.Start, w.End()

	if start.Before(s.Epoch) {
		if !end.After(s.Epoch) {
			return nil
		}
		start = s.Epoch
	}

	first := int64(start.Sub(s.Epoch) / s.Slot)
	last := first
	if end.After(start) {
		// end is exclusive
		last = int64((end.Sub(s.Epoch) - 1) / s.Slot)
	}
	if first > math.MaxUint32 {
		return nil
	}
	if last > math.MaxUint32 {
		last = math.MaxUint32
	}

	intervals := make([]model.Interval, 0, last-first+1)
	for i := first; i <= last; i++ {
		intervals = append(intervals, model.Interval(i))
	}
	return intervals
}

// AccessoryKeysForWindow derives the key pair of every interval in w, in interval order.
func (s Schedule) AccessoryKeysForWindow(acc model.Accessory, w model.TimeWindow) ([]model.KeyPair, error) {
	return s.accessoryKeys(acc, w, nil)
}

func (s Schedule) accessoryKeys(acc model.Accessory, w model.TimeWindow, cache *KeyCache) ([]model.KeyPair, error) {
	intervals := s.WindowToIntervals(w)
	keys := make([]model.KeyPair, 0, len(intervals))
	for _, i := range intervals {
		kp, err := cache.Derive(acc.MasterSecret, i)
		if err != nil {
			return nil, fmt.Errorf("accessory %s: %w", acc.ID, err)
		}
		keys = append(keys, kp)
	}
	logger.Debugf("derived %d keys for %s over %s", len(keys), acc.ID, w)
	return keys, nil
}
