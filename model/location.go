package model

import (
	"fmt"
	"time"
)

// LocationFix is a decrypted position report. Values are never modified after decryption.
type LocationFix struct {
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	PublishedAt time.Time `json:"publishedAt" yaml:"publishedAt"`
	Latitude    float64   `json:"lat" yaml:"lat"`
	Longitude   float64   `json:"lng" yaml:"lng"`
	Accuracy    int       `json:"accuracy" yaml:"accuracy"`
	Confidence  int       `json:"confidence" yaml:"confidence"`
	Status      int       `json:"status" yaml:"status"`
}

func (f LocationFix) String() string {
	return fmt.Sprintf("https://maps.google.com/?q=%f,%f\tacc=%dm,conf=%v,status=%v",
		f.Latitude,
		f.Longitude,
		f.Accuracy,
		f.Confidence,
		f.Status,
	)
}

// SamePosition reports whether both fixes carry the same timestamp and coordinates.
func (f LocationFix) SamePosition(o LocationFix) bool {
	return f.Timestamp.Equal(o.Timestamp) && f.Latitude == o.Latitude && f.Longitude == o.Longitude
}

// TimeWindow is the half-open range [Start, Start+Duration).
type TimeWindow struct {
	Start    time.Time
	Duration time.Duration
}

// LastWindow returns the window of length d ending at now.
func LastWindow(now time.Time, d time.Duration) TimeWindow {
	return TimeWindow{Start: now.Add(-d), Duration: d}
}

func (w TimeWindow) End() time.Time {
	if w.Duration < 0 {
		return w.Start
	}
	return w.Start.Add(w.Duration)
}

func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End())
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("%s starting %s", DescribeDuration(w.Duration), w.Start.UTC().Format(time.RFC3339))
}

var durationUnits = []struct {
	d    time.Duration
	name string
}{
	{time.Second, "Second"},
	{time.Minute, "Minute"},
	{time.Hour, "Hour"},
	{24 * time.Hour, "Day"},
	{7 * 24 * time.Hour, "Week"},
}

// DescribeDuration renders d in its largest whole unit, e.g. "7 Days" becomes "1 Week".
func DescribeDuration(d time.Duration) string {
	value, name := 0, durationUnits[0].name
	for _, u := range durationUnits {
		if d.Round(time.Second) >= u.d {
			value = int((float64(d) / float64(u.d)) + 0.5)
			name = u.name
		}
	}
	if value > 1 {
		name += "s"
	}
	return fmt.Sprintf("%d %s", value, name)
}
