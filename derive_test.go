package haystack

import (
	"bytes"
	"crypto/elliptic"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/haystack-go/model"
)

func testSecret(seed byte) model.MasterSecret {
	return bytes.Repeat([]byte{seed}, MasterSecretSize)
}

func TestDerive_Deterministic(t *testing.T) {
	secret := testSecret(0x42)
	for _, interval := range []model.Interval{0, 1, 7, 123456, 1<<32 - 1} {
		a, err := Derive(secret, interval)
		require.NoError(t, err)
		b, err := Derive(secret, interval)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Equal(t, interval, a.Interval)
	}
}

func TestDerive_DistinctPerIntervalAndSecret(t *testing.T) {
	seen := map[string]bool{}
	for _, seed := range []byte{1, 2} {
		for i := model.Interval(0); i < 64; i++ {
			kp, err := Derive(testSecret(seed), i)
			require.NoError(t, err)
			key := string(kp.PublicKey)
			assert.False(t, seen[key], "public key repeated for seed %d interval %d", seed, i)
			seen[key] = true
		}
	}
}

func TestDerive_PublicKeyMatchesPrivateKey(t *testing.T) {
	kp, err := Derive(testSecret(0x01), 7)
	require.NoError(t, err)

	require.Len(t, kp.PrivateKey, PrivateKeySize)
	require.Len(t, kp.PublicKey, PublicKeySize)
	assert.Contains(t, []byte{0x02, 0x03}, kp.PublicKey[0])
	assert.Len(t, kp.AdvertisementKey(), PrivateKeySize)

	x, y := Curve().ScalarBaseMult(kp.PrivateKey)
	assert.Equal(t, elliptic.MarshalCompressed(Curve(), x, y), kp.PublicKey)
}

func TestDerive_InvalidSecretLength(t *testing.T) {
	for _, n := range []int{0, 16, 28, 31, 33, 64} {
		_, err := Derive(make([]byte, n), 1)
		assert.ErrorIs(t, err, ErrInvalidSecretLength, "length %d", n)
	}
}

func TestDerive_Concurrent(t *testing.T) {
	secret := testSecret(0x07)
	want, err := Derive(secret, 99)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]model.KeyPair, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Derive(secret, 99)
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, want, got)
	}
	assert.Equal(t, testSecret(0x07), secret, "master secret must not be modified")
}

func TestKeyCache(t *testing.T) {
	cache, err := NewKeyCache(8)
	require.NoError(t, err)

	want, err := Derive(testSecret(3), 5)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		got, err := cache.Derive(testSecret(3), 5)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 1, cache.Len())

	_, err = cache.Derive(make([]byte, 3), 5)
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
	assert.Equal(t, 1, cache.Len())

	var none *KeyCache
	got, err := none.Derive(testSecret(3), 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 0, none.Len())
}

func TestValidScalar(t *testing.T) {
	n := Curve().Params().N
	scalar := func(v *big.Int) []byte { return v.FillBytes(make([]byte, PrivateKeySize)) }
	one := big.NewInt(1)

	tests := []struct {
		name string
		k    []byte
		want int
	}{
		{"zero", make([]byte, PrivateKeySize), 0},
		{"one", scalar(one), 1},
		{"n-1", scalar(new(big.Int).Sub(n, one)), 1},
		{"n", scalar(n), 0},
		{"n+1", scalar(new(big.Int).Add(n, one)), 0},
		{"all ones", bytes.Repeat([]byte{0xff}, PrivateKeySize), 0},
		{"below n in low byte only", func() []byte {
			k := scalar(n)
			k[PrivateKeySize-1]--
			return k
		}(), 1},
		{"top byte below n", append([]byte{0x7f}, bytes.Repeat([]byte{0xff}, PrivateKeySize-1)...), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validScalar(tt.k))
		})
	}
}

func TestDerive_ScalarInRange(t *testing.T) {
	n := Curve().Params().N
	for i := model.Interval(0); i < 256; i++ {
		kp, err := Derive(testSecret(0x5a), i)
		require.NoError(t, err)
		d := new(big.Int).SetBytes(kp.PrivateKey)
		assert.Equal(t, 1, d.Sign())
		assert.Equal(t, -1, d.Cmp(n))
	}
}
