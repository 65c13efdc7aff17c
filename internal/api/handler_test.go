package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbomtools/sbom-collector/internal/domain"
	apperrors "github.com/sbomtools/sbom-collector/internal/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAggregator struct {
	runs  []*domain.RunRecord
	stats *domain.OwnerStats
	err   error
}

func (f *fakeAggregator) ListRuns(ctx context.Context, owner string, limit int) ([]*domain.RunRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeAggregator) LatestRun(ctx context.Context, owner string) (*domain.RunRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.runs) == 0 {
		return nil, apperrors.NewNotFoundError("run")
	}
	return f.runs[0], nil
}

func (f *fakeAggregator) OwnerStats(ctx context.Context, owner string) (*domain.OwnerStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

func serve(t *testing.T, agg *fakeAggregator, path string) *httptest.ResponseRecorder {
	t.Helper()
	router := SetupRoutes(NewHandler(agg))
	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	router.ServeHTTP(w, req)
	return w
}

func sampleRuns() []*domain.RunRecord {
	return []*domain.RunRecord{
		{
			ID:        "run-2",
			Owner:     "octo",
			OwnerType: domain.OwnerTypeUser,
			RunDate:   "2025-06-02",
			Total:     5,
			Processed: 5,
			Succeeded: 5,
			Status:    domain.RunStatusCompleted,
			CreatedAt: time.Now(),
		},
		{
			ID:        "run-1",
			Owner:     "octo",
			OwnerType: domain.OwnerTypeUser,
			RunDate:   "2025-06-01",
			Total:     5,
			Processed: 3,
			Succeeded: 3,
			Status:    domain.RunStatusInterrupted,
			CreatedAt: time.Now().Add(-24 * time.Hour),
		},
	}
}

func TestGetRuns(t *testing.T) {
	w := serve(t, &fakeAggregator{runs: sampleRuns()}, "/api/v1/owners/octo/runs")

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []*domain.RunRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "run-2", body.Data[0].ID)
	assert.Equal(t, domain.RunStatusInterrupted, body.Data[1].Status)
}

func TestGetRunsLimitQuery(t *testing.T) {
	w := serve(t, &fakeAggregator{runs: sampleRuns()}, "/api/v1/owners/octo/runs?limit=1")

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []*domain.RunRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
}

func TestGetLatestRun(t *testing.T) {
	w := serve(t, &fakeAggregator{runs: sampleRuns()}, "/api/v1/owners/octo/runs/latest")

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data *domain.RunRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-2", body.Data.ID)
}

func TestGetLatestRunNotFound(t *testing.T) {
	w := serve(t, &fakeAggregator{}, "/api/v1/owners/ghost/runs/latest")

	require.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(apperrors.ErrCodeNotFound), body.Error.Code)
}

func TestGetOwnerStats(t *testing.T) {
	agg := &fakeAggregator{stats: &domain.OwnerStats{
		Owner:          "octo",
		Runs:           4,
		Interrupted:    1,
		TotalProcessed: 40,
		TotalSucceeded: 35,
		TotalFailed:    2,
	}}
	w := serve(t, agg, "/api/v1/owners/octo/stats")

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data *domain.OwnerStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Data.Runs)
	assert.Equal(t, int64(35), body.Data.TotalSucceeded)
	assert.Nil(t, body.Data.LastRunAt)
}

func TestStorageErrorMapsTo500(t *testing.T) {
	agg := &fakeAggregator{err: apperrors.NewInternalError("db down", nil)}
	w := serve(t, agg, "/api/v1/owners/octo/runs")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealthCheck(t *testing.T) {
	w := serve(t, &fakeAggregator{}, "/health")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
