package haystack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/haystack-go/model"
)

func TestSchedule_IntervalAt(t *testing.T) {
	s := DefaultSchedule

	i, ok := s.IntervalAt(DefaultEpoch)
	require.True(t, ok)
	assert.Equal(t, model.Interval(0), i)

	i, ok = s.IntervalAt(DefaultEpoch.Add(DefaultSlot - time.Nanosecond))
	require.True(t, ok)
	assert.Equal(t, model.Interval(0), i)

	i, ok = s.IntervalAt(DefaultEpoch.Add(3*DefaultSlot + time.Minute))
	require.True(t, ok)
	assert.Equal(t, model.Interval(3), i)

	_, ok = s.IntervalAt(DefaultEpoch.Add(-time.Second))
	assert.False(t, ok)
}

func TestSchedule_IntervalStart(t *testing.T) {
	s := Schedule{}
	assert.True(t, s.IntervalStart(0).Equal(DefaultEpoch))
	assert.True(t, s.IntervalStart(4).Equal(DefaultEpoch.Add(time.Hour)))

	now := time.Date(2024, 5, 1, 12, 7, 0, 0, time.UTC)
	i, ok := s.IntervalAt(now)
	require.True(t, ok)
	start := s.IntervalStart(i)
	assert.False(t, start.After(now))
	assert.True(t, now.Before(start.Add(DefaultSlot)))
}

func TestSchedule_WindowToIntervals(t *testing.T) {
	slot := DefaultSlot
	at := func(n int) time.Time { return DefaultEpoch.Add(time.Duration(n) * slot) }

	tests := []struct {
		name string
		w    model.TimeWindow
		want []model.Interval
	}{
		{"single slot", model.TimeWindow{Start: at(5), Duration: slot}, []model.Interval{5}},
		{"zero duration", model.TimeWindow{Start: at(5).Add(time.Minute)}, []model.Interval{5}},
		{"negative duration", model.TimeWindow{Start: at(5), Duration: -time.Hour}, []model.Interval{5}},
		{"aligned", model.TimeWindow{Start: at(7), Duration: 3 * slot}, []model.Interval{7, 8, 9}},
		{"unaligned", model.TimeWindow{Start: at(7).Add(time.Minute), Duration: 2 * slot}, []model.Interval{7, 8, 9}},
		{"shorter than a slot", model.TimeWindow{Start: at(2).Add(time.Minute), Duration: time.Minute}, []model.Interval{2}},
		{"before epoch", model.TimeWindow{Start: at(-10), Duration: 5 * slot}, nil},
		{"ends at epoch", model.TimeWindow{Start: at(-1), Duration: slot}, nil},
		{"straddles epoch", model.TimeWindow{Start: at(-1), Duration: slot + time.Minute}, []model.Interval{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultSchedule.WindowToIntervals(tt.w))
		})
	}
}

func TestSchedule_WindowToIntervals_CustomSlot(t *testing.T) {
	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Schedule{Epoch: epoch, Slot: time.Hour}
	got := s.WindowToIntervals(model.TimeWindow{Start: epoch.Add(90 * time.Minute), Duration: 2 * time.Hour})
	assert.Equal(t, []model.Interval{1, 2, 3}, got)
}

func TestSchedule_AccessoryKeysForWindow(t *testing.T) {
	acc := model.Accessory{ID: "a", MasterSecret: testSecret(9)}
	w := model.TimeWindow{Start: DefaultEpoch.Add(10 * DefaultSlot), Duration: 4 * DefaultSlot}

	keys, err := DefaultSchedule.AccessoryKeysForWindow(acc, w)
	require.NoError(t, err)
	require.Len(t, keys, 4)
	for n, kp := range keys {
		assert.Equal(t, model.Interval(10+n), kp.Interval)
		want, err := Derive(acc.MasterSecret, kp.Interval)
		require.NoError(t, err)
		assert.Equal(t, want, kp)
	}

	_, err = DefaultSchedule.AccessoryKeysForWindow(model.Accessory{ID: "b", MasterSecret: make([]byte, 4)}, w)
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
}
