package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeDuration(t *testing.T) {
	tests := map[time.Duration]string{
		time.Second:         "1 Second",
		45 * time.Second:    "45 Seconds",
		time.Minute:         "1 Minute",
		15 * time.Minute:    "15 Minutes",
		12 * time.Hour:      "12 Hours",
		24 * time.Hour:      "1 Day",
		3 * 24 * time.Hour:  "3 Days",
		7 * 24 * time.Hour:  "1 Week",
		14 * 24 * time.Hour: "2 Weeks",
	}
	for d, want := range tests {
		assert.Equal(t, want, DescribeDuration(d), d.String())
	}
}

func TestTimeWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := TimeWindow{Start: start, Duration: time.Hour}

	assert.True(t, w.End().Equal(start.Add(time.Hour)))
	assert.True(t, w.Contains(start))
	assert.True(t, w.Contains(start.Add(59*time.Minute)))
	assert.False(t, w.Contains(start.Add(time.Hour)))
	assert.False(t, w.Contains(start.Add(-time.Nanosecond)))
	assert.Equal(t, "1 Hour starting 2024-01-01T00:00:00Z", w.String())

	negative := TimeWindow{Start: start, Duration: -time.Hour}
	assert.True(t, negative.End().Equal(start))
	assert.False(t, negative.Contains(start))

	now := start.Add(48 * time.Hour)
	last := LastWindow(now, 24*time.Hour)
	assert.True(t, last.End().Equal(now))
	assert.True(t, last.Start.Equal(start.Add(24*time.Hour)))
}

func TestLocationFix_SamePosition(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := LocationFix{Timestamp: at, Latitude: 1, Longitude: 2, Accuracy: 5}
	b := a
	b.Accuracy = 10
	b.Timestamp = at.In(time.FixedZone("CET", 3600))
	assert.True(t, a.SamePosition(b))

	b.Latitude = 1.5
	assert.False(t, a.SamePosition(b))
}

func TestAdvertisementHash(t *testing.T) {
	var h AdvertisementHash
	for i := range h {
		h[i] = byte(i)
	}
	parsed, err := ParseAdvertisementHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	var unmarshaled AdvertisementHash
	require.NoError(t, unmarshaled.UnmarshalText([]byte(h.String())))
	assert.Equal(t, h, unmarshaled)

	_, err = ParseAdvertisementHash("AAAA")
	assert.Error(t, err)
	_, err = ParseAdvertisementHash("not base64")
	assert.Error(t, err)
}

func TestMasterSecret_Text(t *testing.T) {
	s := MasterSecret{0xde, 0xad, 0xbe, 0xef}
	text, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "3q2+7w==", string(text))

	var decoded MasterSecret
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, s, decoded)
	assert.Error(t, decoded.UnmarshalText([]byte("***")))
}

func TestKeyPair_AdvertisementKey(t *testing.T) {
	assert.Nil(t, KeyPair{}.AdvertisementKey())
	assert.Equal(t, []byte{2, 3}, KeyPair{PublicKey: []byte{1, 2, 3}}.AdvertisementKey())
}
