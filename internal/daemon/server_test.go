package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"mirrorsync/internal/model"
	"mirrorsync/internal/syncer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerJobLifecycle(t *testing.T) {
	m := newTestManager(t)
	s := NewServer(m, 0)

	src, dst := t.TempDir(), filepath.Join(t.TempDir(), "dst")

	body, _ := json.Marshal(map[string]any{"src": src, "dsts": []string{dst}})
	rec := do(t, s, http.MethodPost, "/jobs", string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var job model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	waitPhase(t, m, job.ID, syncer.PhaseMonitoring)

	rec = do(t, s, http.MethodPost, "/jobs", string(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Jobs []model.JobSnapshot `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Len(t, status.Jobs, 1)
	assert.Equal(t, src, status.Jobs[0].Src)

	endBody, _ := json.Marshal(map[string]any{"src": src})
	rec = do(t, s, http.MethodPost, "/jobs/end", string(endBody))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/jobs/end", string(endBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, "/jobs/"+strconv.FormatUint(uint64(job.ID), 10), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServerValidation(t *testing.T) {
	m := newTestManager(t)
	s := NewServer(m, 0)

	rec := do(t, s, http.MethodPost, "/jobs", `{"src":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodDelete, "/jobs/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/restore", `{"target":"/tmp"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerRestore(t *testing.T) {
	m := newTestManager(t)
	s := NewServer(m, 0)

	target, backup := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(backup, "f"), []byte("b"), 0644))

	body, _ := json.Marshal(map[string]string{"target": target, "backup": backup})
	rec := do(t, s, http.MethodPost, "/restore", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res restoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Stats.Copied)
	assert.Nil(t, res.Cutoff)
	assert.Empty(t, res.Error)
	assert.FileExists(t, filepath.Join(target, "f"))

	rec = do(t, s, http.MethodGet, "/history?n=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var histories []model.History
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &histories))
	assert.NotEmpty(t, histories)
}

func TestServerRestoreRejectsNestedPaths(t *testing.T) {
	m := newTestManager(t)
	s := NewServer(m, 0)

	outer := t.TempDir()
	inner := filepath.Join(outer, "inner")
	require.NoError(t, os.MkdirAll(inner, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(inner, "f"), []byte("b"), 0644))

	for _, req := range []map[string]string{
		{"target": outer, "backup": inner},
		{"target": inner, "backup": outer},
	} {
		body, _ := json.Marshal(req)
		rec := do(t, s, http.MethodPost, "/restore", string(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	}

	assert.FileExists(t, filepath.Join(inner, "f"))
	assert.NoDirExists(t, filepath.Join(inner, "inner"))
}

func TestServerMetricsAndStop(t *testing.T) {
	m := newTestManager(t)
	s := NewServer(m, 0)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mirrorsync_jobs_active")

	rec = do(t, s, http.MethodPost, "/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	select {
	case <-s.StopCh():
	default:
		t.Fatal("stop was not signalled")
	}
}
