package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"clipcast/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(config.DispatchConfig{BaseURL: ts.URL, APIKey: "secret"}, nil)
}

func TestPublish(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/publish", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tiktok", body["platform"])
		assert.Equal(t, "main", body["account"])
		assert.Equal(t, "s3://clips/teaser.mp4", body["content_ref"])

		_ = json.NewEncoder(w).Encode(map[string]string{
			"external_post_id":  "ext-42",
			"external_post_url": "https://t.example/42",
		})
	})

	result, err := client.Publish(context.Background(), "tiktok", "main", "s3://clips/teaser.mp4")
	require.NoError(t, err)
	assert.Equal(t, "ext-42", result.ExternalPostID)
	assert.Equal(t, "https://t.example/42", result.ExternalPostURL)
}

func TestPublishRejectsEmptyPostID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	})

	_, err := client.Publish(context.Background(), "tiktok", "main", "ref")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty external post id")
}

func TestPublishSurfacesServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "account suspended", http.StatusForbidden)
	})

	_, err := client.Publish(context.Background(), "tiktok", "main", "ref")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	assert.Contains(t, err.Error(), "account suspended")
}

func TestFetchMetrics(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/metrics", r.URL.Path)
		assert.Equal(t, "tiktok", r.URL.Query().Get("platform"))
		assert.Equal(t, "ext-42", r.URL.Query().Get("post_id"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"views": 1500, "likes": 120, "comments": 30, "watch_ratio": 0.61,
		})
	})

	snap, err := client.FetchMetrics(context.Background(), "tiktok", "ext-42")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), snap.Views)
	assert.Equal(t, int64(120), snap.Likes)
	assert.InDelta(t, 0.61, snap.WatchRatio, 0.001)
}

func TestBestTimeHints(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/best-times", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"windows": []map[string]int{{"start_hour": 18, "end_hour": 21}},
		})
	})

	windows, err := client.BestTimeHints(context.Background(), "tiktok", "main")
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, 18, windows[0].StartHour)
	assert.Equal(t, 21, windows[0].EndHour)
}

func TestBestTimeHintsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"windows": []interface{}{}})
	})

	windows, err := client.BestTimeHints(context.Background(), "tiktok", "main")
	require.NoError(t, err)
	assert.Empty(t, windows)
}
