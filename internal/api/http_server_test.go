package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"clipcast/internal/config"
	"clipcast/internal/database"
	"clipcast/internal/models"
	"clipcast/internal/planner"
	"clipcast/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminKey    = "test-admin-key"
	readOnlyKey = "test-reader-key"
)

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Port:    0,
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: adminKey, Name: "admin"},
				{Key: readOnlyKey, Name: "reader", Permissions: []string{"read:jobs", "read:status"}},
			},
		},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *database.DB) {
	t.Helper()
	logger := zerolog.New(zerolog.NewConsoleWriter())
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	engineCfg := config.EngineConfig{
		Planner: config.PlannerConfig{MinGap: 2 * time.Hour, MaxGap: 24 * time.Hour, HorizonDays: 60},
		Queue:   config.QueueConfig{MaxRetries: 3},
	}
	pl := planner.New(engineCfg.Planner, db, nil, &logger)
	svc := service.NewPublishService(db, pl, nil, nil, nil, engineCfg, &logger)

	srv := NewHTTPServer(testAPIConfig(), svc, &logger)
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)
	return ts, db
}

func doRequest(t *testing.T, method, url, apiKey, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/v1/jobs", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/api/v1/jobs", "wrong-key", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPermissionsEnforced(t *testing.T) {
	ts, _ := newTestServer(t)

	// Reader key can list but not enqueue.
	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/v1/jobs", readOnlyKey, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := `{"title":"x","source_ref":"s3://x","platform":"tiktok","account":"main"}`
	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/jobs", readOnlyKey, body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEnqueueEndpoint(t *testing.T) {
	ts, db := newTestServer(t)

	body := `{"title":"Launch teaser","source_ref":"s3://clips/teaser.mp4","platform":"tiktok","account":"main","priority":80}`
	resp, payload := doRequest(t, http.MethodPost, ts.URL+"/api/v1/jobs", adminKey, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	jobID := int64(payload["id"].(float64))
	job, err := db.GetPublishJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.Status)
	assert.Equal(t, 80, job.Priority)
	assert.Equal(t, models.PlatformTikTok, job.Platform)
}

func TestEnqueueValidationErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	// Missing platform.
	resp, payload := doRequest(t, http.MethodPost, ts.URL+"/api/v1/jobs", adminKey,
		`{"title":"x","source_ref":"s3://x","account":"main"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, payload["error"], "platform")

	// Unknown fields are rejected.
	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/jobs", adminKey,
		`{"title":"x","source_ref":"s3://x","platform":"tiktok","account":"main","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown content id.
	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/jobs", adminKey,
		`{"content_id":404,"platform":"tiktok","account":"main"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEnqueueBeyondHorizon(t *testing.T) {
	ts, _ := newTestServer(t)

	notBefore := time.Now().Add(61 * 24 * time.Hour).UTC().Format(time.RFC3339)
	body := `{"title":"x","source_ref":"s3://x","platform":"tiktok","account":"main","not_before":"` + notBefore + `"}`
	resp, _ := doRequest(t, http.MethodPost, ts.URL+"/api/v1/jobs", adminKey, body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestGetAndCancelJob(t *testing.T) {
	ts, db := newTestServer(t)
	ctx := context.Background()

	body := `{"title":"x","source_ref":"s3://x","platform":"tiktok","account":"main"}`
	resp, payload := doRequest(t, http.MethodPost, ts.URL+"/api/v1/jobs", adminKey, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	jobURL := ts.URL + "/api/v1/jobs/" + strconv.FormatInt(int64(payload["id"].(float64)), 10)

	resp, payload = doRequest(t, http.MethodGet, jobURL, adminKey, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.JobQueued, payload["status"])

	resp, _ = doRequest(t, http.MethodDelete, jobURL, adminKey, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Cancelling again conflicts: the job is no longer queued.
	resp, _ = doRequest(t, http.MethodDelete, jobURL, adminKey, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	job, err := db.GetPublishJob(ctx, int64(payload["id"].(float64)))
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, job.Status)
}

func TestGetJobNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/v1/jobs/9999", adminKey, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/api/v1/jobs/abc", adminKey, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestContentStatusEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	body := `{"title":"x","source_ref":"s3://x","platform":"tiktok","account":"main"}`
	resp, payload := doRequest(t, http.MethodPost, ts.URL+"/api/v1/jobs", adminKey, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	contentID := strconv.FormatInt(int64(payload["content_id"].(float64)), 10)

	resp, payload = doRequest(t, http.MethodGet, ts.URL+"/api/v1/content/"+contentID+"/status", readOnlyKey, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, payload["content"])
	assert.NotNil(t, payload["jobs"])

	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/api/v1/content/9999/status", readOnlyKey, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelTrackingEndpoint(t *testing.T) {
	ts, db := newTestServer(t)
	ctx := context.Background()

	body := `{"title":"x","source_ref":"s3://x","platform":"tiktok","account":"main"}`
	resp, payload := doRequest(t, http.MethodPost, ts.URL+"/api/v1/jobs", adminKey, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	jobID := int64(payload["id"].(float64))
	contentID := int64(payload["content_id"].(float64))

	publishedAt := time.Now().Add(-time.Hour)
	_, err := db.ClaimJob(ctx, jobID, "worker-1", time.Now())
	require.NoError(t, err)
	require.NoError(t, db.MarkJobPublished(ctx, jobID, "worker-1", "ext-1", "", publishedAt))
	published, err := db.GetPublishJob(ctx, jobID)
	require.NoError(t, err)
	_, err = db.SeedCheckbacks(ctx, published, []int{1, 6}, publishedAt)
	require.NoError(t, err)

	resp, payload = doRequest(t, http.MethodDelete,
		ts.URL+"/api/v1/content/"+strconv.FormatInt(contentID, 10)+"/tracking?reason=post+deleted", adminKey, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), payload["skipped"])
}

func TestHealthzNoAuth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, payload := doRequest(t, http.MethodGet, ts.URL+"/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", payload["status"])
}
