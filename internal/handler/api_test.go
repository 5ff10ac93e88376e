package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"drink-detector/internal/config"
	"drink-detector/internal/models"
	"drink-detector/internal/repository"
	"drink-detector/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type testServer struct {
	router   *gin.Engine
	samples  *repository.SampleRepository
	training *service.TrainingService
}

func setup(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	dir := t.TempDir()

	db, err := repository.NewDB("sqlite", filepath.Join(dir, "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.MigrateDB(db, "sqlite", logger))

	samples := repository.NewSampleRepository(db, logger)
	runs := repository.NewRunRepository(db, logger)

	cfg := config.Default()
	cfg.Training.Trees = 10
	cfg.Training.ModelPath = filepath.Join(dir, "model.json")
	training, err := service.NewTrainingService(samples, runs, cfg.Pipeline, cfg.Training, logger)
	require.NoError(t, err)
	t.Cleanup(training.Wait)

	h := NewHandler(
		service.NewIngestor(samples, logger),
		service.NewLabeler(samples, logger),
		training,
		logger,
	)

	return &testServer{router: NewRouter(h), samples: samples, training: training}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func ingestBody(second, pulse int) string {
	return fmt.Sprintf(`{"timestamp":"2024-12-07 12:55:%02d","ax":-14112,"ay":"5804","az":12704,`+
		`"gx":10283,"gy":11596,"gz":13391,"pulse":%d}`, second, pulse)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestIngest(t *testing.T) {
	s := setup(t)

	w := s.do(t, http.MethodPost, "/api/v1/ingest", ingestBody(9, 61))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decode(t, w)["status"])

	w = s.do(t, http.MethodPost, "/api/v1/ingest", ingestBody(10, 301))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "pulse")

	w = s.do(t, http.MethodPost, "/api/v1/ingest", `{"timestamp":"2024-12-07 12:55:11","ax":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/ingest", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	all, err := s.samples.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func seedSamples(t *testing.T, s *testServer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/ingest", ingestBody(i, 60+i))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
}

func TestListUnlabeled(t *testing.T) {
	s := setup(t)
	seedSamples(t, s, 5)

	w := s.do(t, http.MethodGet, "/api/v1/samples/unlabeled?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		SensorData []struct {
			ID        int64  `json:"id"`
			Timestamp string `json:"timestamp"`
			Label     *int   `json:"label"`
		} `json:"sensor_data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.SensorData, 2)
	assert.Equal(t, int64(4), resp.SensorData[0].ID)
	assert.Equal(t, int64(5), resp.SensorData[1].ID)
	assert.Equal(t, "2024-12-07 12:55:03", resp.SensorData[0].Timestamp)
	assert.Nil(t, resp.SensorData[0].Label)

	for _, q := range []string{"limit=0", "limit=-3", "limit=abc"} {
		w = s.do(t, http.MethodGet, "/api/v1/samples/unlabeled?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	w = s.do(t, http.MethodGet, "/api/v1/samples/unlabeled", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 5, decode(t, w)["total"])
}

func TestLabelEndpoints(t *testing.T) {
	s := setup(t)
	seedSamples(t, s, 6)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/labels", `{"id":1,"label":1}`).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/labels", `{"id":999,"label":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/labels", `{"id":1,"label":2}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/labels", `{"label":1}`).Code)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/labels/batch", `{"ids":[2,3],"label":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/labels/batch", `{"ids":[],"label":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/labels/batch", `{"ids":[2],"label":5}`).Code)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/labels/range",
		`{"start":"2024-12-07 12:55:04","end":"2024-12-07 12:55:05","label":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/labels/range",
		`{"start":"2024-12-07 12:55:05","end":"2024-12-07 12:55:04","label":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/labels/range",
		`{"start":"soon","end":"2024-12-07 12:55:04","label":1}`).Code)

	w := s.do(t, http.MethodGet, "/api/v1/samples/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.LabelStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, models.LabelStats{Total: 6, Unlabeled: 1, Positive: 3, Negative: 2}, stats)
}

func TestExports(t *testing.T) {
	s := setup(t)
	seedSamples(t, s, 3)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/labels", `{"id":2,"label":1}`).Code)

	for _, path := range []string{"/api/v1/export", "/api/v1/export/json"} {
		w := s.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			AllData []map[string]any `json:"all_data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.AllData, 3)
		assert.Nil(t, resp.AllData[0]["label"])
		assert.EqualValues(t, 1, resp.AllData[1]["label"])
	}

	w := s.do(t, http.MethodGet, "/api/v1/export/csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, exportColumns, records[0])
	assert.Equal(t, []string{"2", "2024-12-07 12:55:01", "-14112", "5804", "12704", "10283", "11596", "13391", "61", "1"}, records[2])
	assert.Equal(t, "", records[1][9])

	w = s.do(t, http.MethodGet, "/api/v1/export/xlsx", "")
	require.Equal(t, http.StatusOK, w.Code)
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("sensor_data")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "timestamp", rows[0][1])
	assert.Equal(t, "2024-12-07 12:55:02", rows[3][1])
}

func TestTrainingRunLifecycle(t *testing.T) {
	s := setup(t)

	w := s.do(t, http.MethodPost, "/api/v1/training/runs", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	runID, _ := decode(t, w)["run_id"].(string)
	require.NotEmpty(t, runID)

	s.training.Wait()

	w = s.do(t, http.MethodGet, "/api/v1/training/runs/"+runID, "")
	require.Equal(t, http.StatusOK, w.Code)
	run := decode(t, w)
	assert.Equal(t, string(models.RunFailed), run["status"])
	assert.Contains(t, run["error_message"], "insufficient training data")

	w = s.do(t, http.MethodGet, "/api/v1/training/runs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndCORS(t *testing.T) {
	s := setup(t)

	w := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = s.do(t, http.MethodOptions, "/api/v1/ingest", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
