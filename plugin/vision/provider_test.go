package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed(t *testing.T) {
	var gotURL atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotURL.Store(req["image_url"])

		json.NewEncoder(w).Encode([]float32{0.1, 0.2, 0.3})
	}))
	defer server.Close()

	provider := NewProvider(&Config{BaseURL: server.URL, MaxRetries: 1})
	vector, err := provider.Embed(context.Background(), "http://example.com/photo.jpg")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
	assert.Equal(t, "http://example.com/photo.jpg", gotURL.Load())
}

func TestEmbedServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewProvider(&Config{BaseURL: server.URL, MaxRetries: 1})
	_, err := provider.Embed(context.Background(), "http://example.com/photo.jpg")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestEmbedEmptyVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]float32{})
	}))
	defer server.Close()

	provider := NewProvider(&Config{BaseURL: server.URL, MaxRetries: 1})
	_, err := provider.Embed(context.Background(), "http://example.com/photo.jpg")

	assert.Error(t, err)
}

func TestEmbedRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]float32{1})
	}))
	defer server.Close()

	provider := NewProvider(&Config{BaseURL: server.URL, MaxRetries: 2, Timeout: 5 * time.Second})
	vector, err := provider.Embed(context.Background(), "http://example.com/photo.jpg")

	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vector)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := NewProvider(&Config{BaseURL: server.URL, MaxRetries: 3})
	_, err := provider.Embed(ctx, "http://example.com/photo.jpg")
	assert.Error(t, err)
}
