package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/config"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := config.Default()
	cfg.StorageBackend = config.BackendMemory
	d := MustNew(cfg)
	t.Cleanup(func() {
		assert.NoError(t, d.Close())
	})
	return d
}

func TestAdminEndpoints(t *testing.T) {
	d := newTestDaemon(t)
	server := httptest.NewServer(d.adminHandler())
	defer server.Close()

	ctx := context.Background()
	version, err := d.Engine().Put(ctx, "orders", []byte(`{"type":"record"}`), []byte{0xAA})
	require.NoError(t, err)
	require.Equal(t, uint64(0), version)
	_, err = d.Engine().Put(ctx, "orders", []byte(`{"type":"record","v":2}`), []byte{0xBB})
	require.NoError(t, err)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/schemas/orders")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var latest storedSchemaResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&latest))
	resp.Body.Close()
	assert.Equal(t, uint64(1), latest.Version)
	assert.Equal(t, []byte(`{"type":"record","v":2}`), latest.Data)

	resp, err = http.Get(server.URL + "/schemas/orders/versions/0")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v0 storedSchemaResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v0))
	resp.Body.Close()
	assert.Equal(t, uint64(0), v0.Version)
	assert.Equal(t, []byte(`{"type":"record"}`), v0.Data)

	resp, err = http.Get(server.URL + "/schemas/orders/history")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []storedSchemaResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	resp.Body.Close()
	assert.Len(t, history, 2)

	resp, err = http.Get(server.URL + "/schemas/unknown")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/schemas/orders/versions/notanumber")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
