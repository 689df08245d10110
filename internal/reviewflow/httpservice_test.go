package reviewflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/reviewflow/internal/auditlog"
	"github.com/simplesurance/reviewflow/internal/mergequeue"
)

const statusEndpoint = "/status"

func newTestRouter(env *testEnv) chi.Router {
	router := chi.NewRouter()
	NewHTTPService(env.registry).RegisterHandlers(router, statusEndpoint)

	return router
}

func doGet(t *testing.T, router http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func TestStatusEndpointShowsMergeQueues(t *testing.T) {
	env := newTestEnv(t)

	mustAcquire(t, env.repo.Queue, 1)

	queued, err := mergequeue.NewEntry(1002, 2, "feature-2")
	require.NoError(t, err)
	require.True(t, env.repo.Queue.Enqueue(queued))

	resp := doGet(t, newTestRouter(env), statusEndpoint)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))

	var data httpStatusData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))

	require.Len(t, data.Repositories, 1)
	status := data.Repositories[0]
	assert.Equal(t, "testman/repo", status.Repository)

	require.NotNil(t, status.Locked)
	assert.Equal(t, 1, status.Locked.Number)
	assert.Equal(t, "feature-1", status.Locked.Branch)

	require.Len(t, status.Queue, 1)
	assert.Equal(t, 2, status.Queue[0].Number)
	assert.False(t, data.CreatedAt.IsZero())
}

func TestAuditEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.audit.Append(ctx, auditlog.NewRecord("testman", "testman/repo", 1, "clean mergeable_state", auditlog.ActionMerge)))
	require.NoError(t, env.audit.Append(ctx, auditlog.NewRecord("testman", "testman/other", 2, "dirty mergeable_state", auditlog.ActionRemove)))
	require.NoError(t, env.audit.Append(ctx, auditlog.NewRecord("testman", "testman/repo", 3, "behind mergeable_state", auditlog.ActionUpdateBranch)))

	router := newTestRouter(env)

	t.Run("all repositories", func(t *testing.T) {
		resp := doGet(t, router, statusEndpoint+"/audit")
		require.Equal(t, http.StatusOK, resp.Code)

		var recs []*httpAuditRecord
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
		require.Len(t, recs, 3)
		assert.Equal(t, 3, recs[0].PRNumber)
		assert.Equal(t, "update branch", recs[0].Action)
	})

	t.Run("single repository", func(t *testing.T) {
		resp := doGet(t, router, statusEndpoint+"/audit/testman/repo")
		require.Equal(t, http.StatusOK, resp.Code)

		var recs []*httpAuditRecord
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
		require.Len(t, recs, 2)
		for _, rec := range recs {
			assert.Equal(t, "testman/repo", rec.Repository)
		}
	})

	t.Run("limit", func(t *testing.T) {
		resp := doGet(t, router, statusEndpoint+"/audit?limit=1")
		require.Equal(t, http.StatusOK, resp.Code)

		var recs []*httpAuditRecord
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
		require.Len(t, recs, 1)
	})

	t.Run("invalid limit", func(t *testing.T) {
		resp := doGet(t, router, statusEndpoint+"/audit?limit=-5")
		assert.Equal(t, http.StatusBadRequest, resp.Code)

		resp = doGet(t, router, statusEndpoint+"/audit?limit=abc")
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestAuditEndpointWithoutStore(t *testing.T) {
	env := newTestEnv(t)
	env.registry.audit = nil

	resp := doGet(t, newTestRouter(env), statusEndpoint+"/audit")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
