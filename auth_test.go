package haystack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAuth(t *testing.T) {
	file := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"dsid":"42","searchPartyToken":"tok"}`), 0o600))

	auth, err := GetAuth(file)
	require.NoError(t, err)
	assert.Equal(t, &Auth{Dsid: "42", SearchPartyToken: "tok"}, auth)

	_, err = GetAuth(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestStaticAuth(t *testing.T) {
	ac, err := StaticAuth{Auth: &Auth{Dsid: "1", SearchPartyToken: "t"}}.Context(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t", ac.SearchPartyToken)

	_, err = StaticAuth{}.Context(context.Background())
	assert.ErrorIs(t, err, ErrAuthUnavailable)
	_, err = StaticAuth{Auth: &Auth{Dsid: "1"}}.Context(context.Background())
	assert.ErrorIs(t, err, ErrAuthUnavailable)
}

func TestAnisetteProvider(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"X-Apple-I-MD":"otp","X-Apple-I-MD-M":"machine"}`))
	}))
	t.Cleanup(srv.Close)

	p := NewAnisetteProvider(&Auth{Dsid: "42", SearchPartyToken: "tok"}, srv.URL)
	ac, err := p.Context(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", ac.Dsid)
	assert.Equal(t, "tok", ac.SearchPartyToken)
	// keys are sent as written, not in canonical form
	assert.Equal(t, []string{"otp"}, ac.Headers["X-Apple-I-MD"])
	assert.Equal(t, []string{"machine"}, ac.Headers["X-Apple-I-MD-M"])
	assert.Equal(t, []string{MdRinfo}, ac.Headers["X-Apple-I-MD-RINFO"])
	require.Len(t, ac.Headers["X-Apple-I-MD-LU"], 1)
	assert.Len(t, ac.Headers["X-Apple-I-MD-LU"][0], 32)

	_, err = p.Context(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnisetteProvider_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := NewAnisetteProvider(&Auth{SearchPartyToken: "tok"}, srv.URL).Context(context.Background())
	assert.ErrorIs(t, err, ErrAuthUnavailable)

	_, err = NewAnisetteProvider(nil, srv.URL).Context(context.Background())
	assert.ErrorIs(t, err, ErrAuthUnavailable)
}
