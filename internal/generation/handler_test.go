package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-ads/wizard/internal/middleware"
	"github.com/aura-ads/wizard/internal/models"
	"github.com/aura-ads/wizard/internal/wizard"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter(h *Handler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Next()
	})
	r.POST("/wizard/generate", h.Start)
	r.GET("/generation/jobs/:id", h.Get)
	r.GET("/generation/jobs/:id/archive", h.Archive)
	return r
}

func do(r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

var validRequest = map[string]interface{}{
	"landing_page_url": "https://shop.example.com",
	"keywords":         []string{"running shoes", "trail shoes"},
}

func TestStartQueuesJob(t *testing.T) {
	store := newMemStore()
	q := &stubQueue{}
	reg := wizard.NewRegistry(wizard.Defaults{Language: "de"}, nil, nil)
	userID := uuid.New()
	r := newTestRouter(NewHandler(store, q, nil, reg, nil), userID)

	w, env := do(r, http.MethodPost, "/wizard/generate", validRequest)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var job models.GenerationJob
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, models.JobQueued, job.Status)
	assert.Equal(t, userID, job.UserID)
	assert.Equal(t, "de", job.Request.Language)

	require.Len(t, q.enqueued, 1)
	assert.Equal(t, job.ID, q.enqueued[0].JobID)
	draft := reg.Get(userID).Snapshot()
	assert.True(t, draft.IsGenerating)
	assert.Zero(t, draft.GenerationProgress)
	active, ok := reg.Get(userID).ActiveGeneration()
	require.True(t, ok)
	assert.Equal(t, job.ID, active)

	w, _ = do(r, http.MethodPost, "/wizard/generate", validRequest)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Len(t, q.enqueued, 1)
}

func TestStartValidatesRequest(t *testing.T) {
	reg := wizard.NewRegistry(wizard.Defaults{}, nil, nil)
	userID := uuid.New()
	r := newTestRouter(NewHandler(newMemStore(), &stubQueue{}, nil, reg, nil), userID)

	w, _ := do(r, http.MethodPost, "/wizard/generate", map[string]interface{}{"landing_page_url": "not a url", "keywords": []string{"x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(r, http.MethodPost, "/wizard/generate", map[string]interface{}{"landing_page_url": "https://a.example", "keywords": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, reg.Get(userID).Snapshot().IsGenerating)
}

func TestStartQueueDownClearsFlag(t *testing.T) {
	store := newMemStore()
	reg := wizard.NewRegistry(wizard.Defaults{}, nil, nil)
	userID := uuid.New()
	r := newTestRouter(NewHandler(store, &stubQueue{enqueueErr: errors.New("redis down")}, nil, reg, nil), userID)

	w, _ := do(r, http.MethodPost, "/wizard/generate", validRequest)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, reg.Get(userID).Snapshot().IsGenerating)
	for _, j := range store.jobs {
		assert.Equal(t, models.JobFailed, j.Status)
	}
}

func TestGetJobOwnerOnly(t *testing.T) {
	store := newMemStore()
	reg := wizard.NewRegistry(wizard.Defaults{}, nil, nil)
	h := NewHandler(store, &stubQueue{}, nil, reg, nil)
	owner := uuid.New()
	gj := &models.GenerationJob{UserID: owner}
	require.NoError(t, store.Create(context.Background(), gj))

	w, env := do(newTestRouter(h, owner), http.MethodGet, "/generation/jobs/"+gj.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, _ = do(newTestRouter(h, uuid.New()), http.MethodGet, "/generation/jobs/"+gj.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(newTestRouter(h, owner), http.MethodGet, "/generation/jobs/nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArchiveURL(t *testing.T) {
	store := newMemStore()
	reg := wizard.NewRegistry(wizard.Defaults{}, nil, nil)
	owner := uuid.New()
	gj := &models.GenerationJob{UserID: owner}
	require.NoError(t, store.Create(context.Background(), gj))
	path := "/generation/jobs/" + gj.ID.String() + "/archive"

	w, _ := do(newTestRouter(NewHandler(store, &stubQueue{}, nil, reg, nil), owner), http.MethodGet, path, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	r := newTestRouter(NewHandler(store, &stubQueue{}, fakePresigner{}, reg, nil), owner)
	w, _ = do(r, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, store.Complete(context.Background(), gj.ID, []byte(`{}`), "generations/u/j.json"))
	w, env := do(r, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out ArchiveURLResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "https://archive.test/generations/u/j.json?sig=1", out.URL)
}
