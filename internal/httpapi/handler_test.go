package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distsched/scheduler/internal/configstore"
	"github.com/distsched/scheduler/internal/domain"
	"github.com/distsched/scheduler/internal/executor"
	"github.com/distsched/scheduler/internal/httpapi"
	_ "github.com/distsched/scheduler/internal/jobs"
	"github.com/distsched/scheduler/internal/jobregistry"
	"github.com/distsched/scheduler/internal/repository/repotest"
)

func newTestServer(t *testing.T) (*httptest.Server, *repotest.Fake) {
	t.Helper()

	repo := repotest.New()
	store, err := configstore.Open(t.TempDir(), "yaml")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry := jobregistry.New(repo, store, nil)
	exec := executor.New(repo, "test-server", nil)

	srv := httpapi.New(httpapi.Config{
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: time.Second,
		MaxBodyBytes:    1 << 20,
	}, registry, exec, repo, "")

	return httptest.NewServer(srv.Handler()), repo
}

func createJobBody() []byte {
	body, _ := json.Marshal(map[string]any{
		"jobName":            "nightly-export",
		"jobGroup":           "reporting",
		"environment":        "prod",
		"jobClass":           "noop",
		"jobType":            domain.JobTypeQuartz,
		"cronExpression":     "0 0 * * * *",
		"status":             domain.JobStatusStopped,
		"grayReleaseEnabled": true,
		"grayReleasePercent": 100,
	})
	return body
}

func TestCreateJob_PersistsAndReturns201(t *testing.T) {
	ts, repo := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/jobs/", "application/json", bytes.NewReader(createJobBody()))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created domain.JobConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotZero(t, created.ID)

	stored, err := repo.GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "nightly-export", stored.JobName)
}

func TestCreateJob_UnknownJobClassRejected(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{
		"jobName":        "x",
		"jobGroup":       "y",
		"environment":    "prod",
		"jobClass":       "does-not-exist",
		"jobType":        domain.JobTypeQuartz,
		"cronExpression": "0 0 * * * *",
		"status":         domain.JobStatusStopped,
	})

	resp, err := http.Post(ts.URL+"/jobs/", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJob_NotFoundReturns404(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/jobs/999")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListLogs_ClampsLimitToMax(t *testing.T) {
	ts, repo := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/jobs/", "application/json", bytes.NewReader(createJobBody()))
	require.NoError(t, err)
	var created domain.JobConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	for i := 0; i < 5; i++ {
		_, err := repo.SaveLog(t.Context(), domain.JobLog{
			JobID:     created.ID,
			Status:    domain.JobLogStatusSuccess,
			StartedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	resp, err = http.Get(ts.URL + "/jobs/" + strconv.FormatInt(created.ID, 10) + "/logs?limit=999999")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var logs []domain.JobLog
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&logs))
	require.Len(t, logs, 5)
}

func TestJobStats_ComputesSuccessRate(t *testing.T) {
	ts, repo := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/jobs/", "application/json", bytes.NewReader(createJobBody()))
	require.NoError(t, err)
	var created domain.JobConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	finished := time.Now().UTC()
	started := finished.Add(-time.Second)
	for _, status := range []domain.JobLogStatus{domain.JobLogStatusSuccess, domain.JobLogStatusSuccess, domain.JobLogStatusFailed} {
		id, err := repo.SaveLog(t.Context(), domain.JobLog{JobID: created.ID, Status: domain.JobLogStatusRunning, StartedAt: started})
		require.NoError(t, err)
		require.NoError(t, repo.UpdateLog(t.Context(), domain.JobLog{ID: id, Status: status, FinishedAt: &finished}))
	}

	resp, err = http.Get(ts.URL + "/jobs/" + strconv.FormatInt(created.ID, 10) + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.InDelta(t, 200.0/3.0, stats["successRate"], 0.001)
	require.Equal(t, float64(3), stats["totalCount"])
	require.Equal(t, float64(2), stats["successCount"])
	require.Equal(t, float64(1), stats["failedCount"])
	require.Equal(t, string(domain.JobStatusStopped), stats["status"])
}

func TestExecuteJob_RunsSynchronouslyAndReturnsOutcome(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/jobs/", "application/json", bytes.NewReader(createJobBody()))
	require.NoError(t, err)
	var created domain.JobConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	resp, err = http.Post(ts.URL+"/jobs/"+strconv.FormatInt(created.ID, 10)+"/execute", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Equal(t, true, result["success"])
	require.Equal(t, "nightly-export", result["jobName"])
	require.Equal(t, float64(created.ID), result["jobId"])
}

func TestStartStopJob_TransitionsStatus(t *testing.T) {
	ts, repo := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/jobs/", "application/json", bytes.NewReader(createJobBody()))
	require.NoError(t, err)
	var created domain.JobConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	resp, err = http.Post(ts.URL+"/jobs/"+strconv.FormatInt(created.ID, 10)+"/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	started, err := repo.GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusRunning, started.Status)

	resp, err = http.Post(ts.URL+"/jobs/"+strconv.FormatInt(created.ID, 10)+"/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	stopped, err := repo.GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusStopped, stopped.Status)
}

func TestGetLogByID_ReturnsLog(t *testing.T) {
	ts, repo := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/jobs/", "application/json", bytes.NewReader(createJobBody()))
	require.NoError(t, err)
	var created domain.JobConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	logID, err := repo.SaveLog(t.Context(), domain.JobLog{
		JobID: created.ID, ExecutionID: "exec-log-detail", Status: domain.JobLogStatusSuccess, StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	resp, err = http.Get(ts.URL + "/jobs/log/" + strconv.FormatInt(logID, 10))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var log domain.JobLog
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&log))
	require.Equal(t, logID, log.ID)
}

func TestGetLogByExecutionID_ReturnsLog(t *testing.T) {
	ts, repo := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/jobs/", "application/json", bytes.NewReader(createJobBody()))
	require.NoError(t, err)
	var created domain.JobConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	_, err = repo.SaveLog(t.Context(), domain.JobLog{
		JobID: created.ID, ExecutionID: "exec-log-detail-2", Status: domain.JobLogStatusSuccess, StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	resp, err = http.Get(ts.URL + "/jobs/log/execution/exec-log-detail-2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var log domain.JobLog
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&log))
	require.Equal(t, "exec-log-detail-2", log.ExecutionID)
}

func TestGetLogByExecutionID_NotFoundReturns404(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/jobs/log/execution/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

