package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON_DecodesResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(healthResponse{Status: "healthy"})
	}))
	defer srv.Close()

	var out healthResponse
	require.NoError(t, GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "healthy", out.Status)
}

func TestGetJSON_ReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var out healthResponse
	assert.Error(t, GetJSON(context.Background(), srv.URL, &out))
}

func TestPostJSON_SendsBodyAndDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var peer PeerInfo
		require.NoError(t, json.NewDecoder(r.Body).Decode(&peer))
		assert.Equal(t, "shard", peer.Kind)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "registered"})
	}))
	defer srv.Close()

	var out map[string]string
	err := PostJSON(context.Background(), srv.URL, PeerInfo{ID: 1, Kind: "shard", Addr: "localhost:9091"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "registered", out["status"])
}
