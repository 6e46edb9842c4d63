package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kvchaos/internal/store"
)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *store.HTTP) {
	t.Helper()
	srv := httptest.NewServer(New(store.NewMemory(), opts...).Handler())
	t.Cleanup(srv.Close)
	return srv, store.NewHTTP(srv.URL, srv.Client())
}

func TestServer_ClientContract(t *testing.T) {
	ctx := context.Background()
	_, client := newTestServer(t)

	// Binary key with the identity-suffix shape real traffic has.
	key := []byte("abCD12\x03\x00\x00\x00\x00\x00\x00\x00")

	_, ok, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Put(ctx, key, []byte("value-1")))
	val, ok, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value-1"), val)

	require.NoError(t, client.Put(ctx, key, []byte("value-2")))
	val, _, err = client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("value-2"), val)

	require.NoError(t, client.Delete(ctx, key))
	_, ok, err = client.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	// Idempotent delete.
	require.NoError(t, client.Delete(ctx, key))
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_MalformedKeyIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/kv/%21%21not-base64%21%21")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_FullFailRateRejectsEverything(t *testing.T) {
	ctx := context.Background()
	_, client := newTestServer(t, WithFailRate(1.0, 7))

	key := []byte("key")
	assert.Error(t, client.Put(ctx, key, []byte("v")), "injected failures surface as transient client errors")
	_, _, err := client.Get(ctx, key)
	assert.Error(t, err)
	assert.Error(t, client.Delete(ctx, key))
}

func TestServer_ZeroFailRatePassesEverything(t *testing.T) {
	ctx := context.Background()
	_, client := newTestServer(t, WithFailRate(0, 7), WithLatency(time.Millisecond))

	for i := 0; i < 20; i++ {
		require.NoError(t, client.Put(ctx, []byte{byte(i)}, []byte("v")))
	}
}
