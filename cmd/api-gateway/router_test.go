package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/pkg/config"
	"github.com/noah-isme/citizen-safety-api/pkg/database"
	"github.com/noah-isme/citizen-safety-api/pkg/notify"
)

const testAdminToken = "admin-secret"

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      map[string]interface{} `json:"error"`
	Meta       map[string]interface{} `json:"meta"`
	Pagination map[string]interface{} `json:"pagination"`
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	cfg := &config.Config{
		Env:       config.EnvDevelopment,
		APIPrefix: "/api",
		JWT:       config.JWTConfig{Secret: "test-secret", Expiration: time.Hour},
		Issues:    config.IssuesConfig{MaxImages: 3},
		Auth:      config.AuthConfig{AdminToken: testAdminToken, OTPTTL: time.Minute},
		Notifications: config.NotificationsConfig{
			Workers: 1,
		},
	}

	logr := zap.NewNop()
	app := newApplication(cfg, logr, db, nil, notify.NewLogSender(logr))
	app.dispatcher.Start(context.Background())
	t.Cleanup(app.dispatcher.Stop)
	return app.router()
}

func do(t *testing.T, h http.Handler, method, path, token string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decode(t *testing.T, raw json.RawMessage) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func issuePayload(title string) map[string]interface{} {
	return map[string]interface{}{
		"title":        title,
		"description":  "water over the road",
		"category":     "flooding",
		"location_lat": -6.2,
		"location_lng": 106.8,
	}
}

func TestCreateIssueDefaultsEndToEnd(t *testing.T) {
	h := newTestServer(t)

	rec, env := do(t, h, http.MethodPost, "/api/issues", "", issuePayload("Flooded underpass"))
	require.Equal(t, http.StatusCreated, rec.Code)
	issue := decode(t, env.Data)
	assert.Equal(t, "open", issue["status"])
	assert.Equal(t, "medium", issue["priority"])
	assert.Equal(t, []interface{}{}, issue["images"])
	assert.Nil(t, issue["user_id"])

	rec, env = do(t, h, http.MethodGet, fmt.Sprintf("/api/issues/%v", issue["id"]), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Flooded underpass", decode(t, env.Data)["title"])
}

func TestCreateIssueIdempotencyEndToEnd(t *testing.T) {
	h := newTestServer(t)

	rec, first := do(t, h, http.MethodPost, "/api/issues", "", issuePayload("Fallen tree"), "Idempotency-Key", "abc-123")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, second := do(t, h, http.MethodPost, "/api/issues", "", issuePayload("Fallen tree"), "Idempotency-Key", "abc-123")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, second.Meta["idempotent_replay"])
	assert.Equal(t, decode(t, first.Data)["id"], decode(t, second.Data)["id"])

	rec, list := do(t, h, http.MethodGet, "/api/issues", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), list.Pagination["total_count"])
}

func TestAccountAndTriageFlow(t *testing.T) {
	h := newTestServer(t)

	rec, env := do(t, h, http.MethodPost, "/api/auth/signup", "", map[string]interface{}{
		"email": "Citizen@Example.com", "password": "secret1", "name": "Citizen",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	token, _ := decode(t, env.Data)["token"].(string)
	require.NotEmpty(t, token)

	rec, _ = do(t, h, http.MethodPost, "/api/auth/signup", "", map[string]interface{}{
		"email": "citizen@example.com", "password": "secret1", "name": "Again",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = do(t, h, http.MethodPost, "/api/issues", token, issuePayload("Broken streetlight"))
	require.Equal(t, http.StatusCreated, rec.Code)
	issue := decode(t, env.Data)
	path := fmt.Sprintf("/api/issues/%v", issue["id"])
	assert.NotNil(t, issue["user_id"])

	rec, _ = do(t, h, http.MethodPatch, path, token, map[string]interface{}{"title": "Broken streetlight on 5th"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, h, http.MethodPatch, path, token, map[string]interface{}{"status": "resolved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = do(t, h, http.MethodPatch, path, testAdminToken, map[string]interface{}{"title": "x", "status": "resolved"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cannot mix owner and admin fields", env.Error["message"])

	rec, env = do(t, h, http.MethodPatch, path, testAdminToken, map[string]interface{}{"status": "resolved", "notes": "crew dispatched"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode(t, env.Data)
	assert.Equal(t, "resolved", updated["status"])
	assert.NotNil(t, updated["resolved_at"])

	rec, env = do(t, h, http.MethodGet, "/api/issues/statistics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, env.Data)
	assert.NotNil(t, stats["total"])

	rec, _ = do(t, h, http.MethodGet, "/api/issues/export.csv", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/api/issues/export.csv", testAdminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Broken streetlight on 5th")

	rec, _ = do(t, h, http.MethodGet, "/api/auth/profile", testAdminToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/auth/account", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = do(t, h, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t)

	for _, path := range []string{"/health", "/api/health", "/ready"} {
		rec, _ := do(t, h, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
