package haystack

import (
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/haystack-go/model"
)

func TestHash(t *testing.T) {
	kp, err := Derive(testSecret(1), 1)
	require.NoError(t, err)

	h1, err := Hash(kp.PublicKey)
	require.NoError(t, err)
	h2, err := Hash(kp.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, model.AdvertisementHash(sha256.Sum256(kp.AdvertisementKey())), h1)
	assert.Len(t, h1.String(), 44)
	assert.Equal(t, h1.String()[:7], KeyID(h1))
}

func TestHash_Distinct(t *testing.T) {
	seen := map[model.AdvertisementHash]bool{}
	for i := 0; i < 100; i++ {
		_, x, y, err := elliptic.GenerateKey(Curve(), rand.Reader)
		require.NoError(t, err)
		h, err := Hash(elliptic.MarshalCompressed(Curve(), x, y))
		require.NoError(t, err)
		assert.False(t, seen[h])
		seen[h] = true
	}
}

func TestHash_RejectsOtherEncodings(t *testing.T) {
	_, x, y, err := elliptic.GenerateKey(Curve(), rand.Reader)
	require.NoError(t, err)

	_, err = Hash(elliptic.Marshal(Curve(), x, y))
	assert.Error(t, err)
	_, err = Hash(elliptic.MarshalCompressed(Curve(), x, y)[1:])
	assert.Error(t, err)

	bad := elliptic.MarshalCompressed(Curve(), x, y)
	bad[0] = 0x04
	_, err = Hash(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prefix")
	assert.Contains(t, err.Error(), "0x04")
	assert.NotContains(t, err.Error(), "bytes")
}
