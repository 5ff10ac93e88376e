package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"drink-detector/internal/config"
	"drink-detector/internal/models"
	"drink-detector/internal/training"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryStore struct {
	mu      sync.Mutex
	samples []models.Sample
	fail    error
}

func (m *memoryStore) Insert(_ context.Context, r models.Reading) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	id := int64(len(m.samples) + 1)
	m.samples = append(m.samples, models.Sample{
		ID: id, Timestamp: r.Timestamp,
		AX: r.AX, AY: r.AY, AZ: r.AZ, GX: r.GX, GY: r.GY, GZ: r.GZ, Pulse: r.Pulse,
	})
	return id, nil
}

func (m *memoryStore) SetLabel(ctx context.Context, id int64, label int) (int64, error) {
	return m.SetLabelBatch(ctx, []int64{id}, label)
}

func (m *memoryStore) SetLabelBatch(_ context.Context, ids []int64, label int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if id >= 1 && int(id) <= len(m.samples) {
			l := label
			m.samples[id-1].Label = &l
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) SetLabelRange(_ context.Context, start, end time.Time, label int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.samples {
		ts := m.samples[i].Timestamp
		if !ts.Before(start) && !ts.After(end) {
			l := label
			m.samples[i].Label = &l
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) ListUnlabeled(_ context.Context, limit int) ([]models.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Sample
	for _, s := range m.samples {
		if s.Label == nil {
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memoryStore) All(context.Context) ([]models.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Sample(nil), m.samples...), nil
}

func (m *memoryStore) LabeledSnapshot(ctx context.Context) ([]models.Sample, error) {
	all, _ := m.All(ctx)
	var out []models.Sample
	for _, s := range all {
		if s.Labeled() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryStore) Stats(context.Context) (models.LabelStats, error) {
	return models.LabelStats{Total: len(m.samples)}, nil
}

type memoryRuns struct {
	mu   sync.Mutex
	runs map[string]models.TrainingRun
}

func (m *memoryRuns) CreateRun(_ context.Context, run *models.TrainingRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs == nil {
		m.runs = make(map[string]models.TrainingRun)
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *memoryRuns) UpdateRun(ctx context.Context, run *models.TrainingRun) error {
	return m.CreateRun(ctx, run)
}

func (m *memoryRuns) GetRun(_ context.Context, id string) (*models.TrainingRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, models.ErrNotFound)
	}
	return &run, nil
}

func record(t *testing.T, body string) models.IngestRecord {
	t.Helper()
	var r models.IngestRecord
	require.NoError(t, json.Unmarshal([]byte(body), &r))
	return r
}

func TestIngest_StoresValidRecord(t *testing.T) {
	store := &memoryStore{}
	ing := NewIngestor(store, zap.NewNop())

	err := ing.Ingest(context.Background(), record(t,
		`{"timestamp":"2024-12-07 12:55:30","ax":"-120","ay":15,"az":16384,"gx":0,"gy":-3,"gz":7,"pulse":72}`))
	require.NoError(t, err)

	require.Len(t, store.samples, 1)
	s := store.samples[0]
	assert.Equal(t, -120.0, s.AX)
	assert.Equal(t, 16384.0, s.AZ)
	assert.Equal(t, 0.0, s.GX)
	assert.Nil(t, s.Label)
	assert.Equal(t, "2024-12-07 12:55:30", models.FormatTimestamp(s.Timestamp))
}

func TestIngest_RejectsInvalidRecordsWithoutWriting(t *testing.T) {
	cases := map[string]struct {
		body  string
		field string
	}{
		"missing field": {
			`{"timestamp":"2024-12-07 12:55:30","ax":1,"ay":2,"az":3,"gx":4,"gy":5,"pulse":60}`, "gz",
		},
		"motion out of range": {
			`{"timestamp":"2024-12-07 12:55:30","ax":40000,"ay":2,"az":3,"gx":4,"gy":5,"gz":6,"pulse":60}`, "ax",
		},
		"pulse out of range": {
			`{"timestamp":"2024-12-07 12:55:30","ax":1,"ay":2,"az":3,"gx":4,"gy":5,"gz":6,"pulse":301}`, "pulse",
		},
		"bad timestamp": {
			`{"timestamp":"yesterday","ax":1,"ay":2,"az":3,"gx":4,"gy":5,"gz":6,"pulse":60}`, "timestamp",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := &memoryStore{}
			err := NewIngestor(store, zap.NewNop()).Ingest(context.Background(), record(t, tc.body))

			var verr *models.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.field, verr.Field)
			assert.Empty(t, store.samples)
		})
	}
}

func TestIngest_SurfacesStoreFailure(t *testing.T) {
	store := &memoryStore{fail: errors.New("disk full")}
	reading := models.Reading{Timestamp: time.Now(), Pulse: 70}

	err := NewIngestor(store, zap.NewNop()).Ingest(context.Background(), reading.Record())
	assert.ErrorContains(t, err, "disk full")
}

func seeded(t *testing.T, n int) *memoryStore {
	t.Helper()
	store := &memoryStore{}
	base := time.Date(2024, 12, 7, 12, 0, 0, 0, time.Local)
	for i := 0; i < n; i++ {
		_, err := store.Insert(context.Background(), models.Reading{Timestamp: base.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}
	return store
}

func TestLabeler_RejectsInvalidInput(t *testing.T) {
	store := seeded(t, 5)
	l := NewLabeler(store, zap.NewNop())
	ctx := context.Background()

	assert.ErrorIs(t, l.LabelByID(ctx, 1, 2), models.ErrInvalidLabel)
	assert.ErrorIs(t, l.LabelByBatch(ctx, []int64{1, 2}, -1), models.ErrInvalidLabel)

	var verr *models.ValidationError
	assert.True(t, errors.As(l.LabelByBatch(ctx, nil, 1), &verr))

	now := time.Now()
	assert.True(t, errors.As(l.LabelByRange(ctx, now, now.Add(-time.Second), 1), &verr))

	_, err := l.ListUnlabeled(ctx, 0)
	assert.True(t, errors.As(err, &verr))

	for _, s := range store.samples {
		assert.Nil(t, s.Label)
	}
}

func TestLabeler_LabelsAndLists(t *testing.T) {
	store := seeded(t, 10)
	l := NewLabeler(store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, l.LabelByID(ctx, 1, 1))
	require.NoError(t, l.LabelByID(ctx, 99, 1))
	require.NoError(t, l.LabelByBatch(ctx, []int64{2, 3, 404}, 0))

	start := store.samples[4].Timestamp
	require.NoError(t, l.LabelByRange(ctx, start, start.Add(2*time.Second), 1))

	unlabeled, err := l.ListUnlabeled(ctx, DefaultUnlabeledLimit)
	require.NoError(t, err)
	ids := make([]int64, 0, len(unlabeled))
	for _, s := range unlabeled {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int64{4, 8, 9, 10}, ids)

	all, err := l.ExportAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

// gestureSession alternates 4 s of stillness with 4 s of wrist rotation at 15 Hz
func gestureSession(t *testing.T) *memoryStore {
	t.Helper()
	store := &memoryStore{}
	base := time.Date(2024, 12, 7, 12, 0, 0, 0, time.Local)
	for i := 0; i < 900; i++ {
		label := (i / 60) % 2
		r := models.Reading{
			Timestamp: base.Add(time.Duration(i) * time.Second / 15),
			AZ:        16384,
			Pulse:     70,
		}
		if label == 1 {
			phase := 2 * math.Pi * 0.5 * float64(i) / 15
			r.AX = 8000 * math.Sin(phase)
			r.GY = 3000 * math.Cos(phase)
		}
		id, err := store.Insert(context.Background(), r)
		require.NoError(t, err)
		_, err = store.SetLabel(context.Background(), id, label)
		require.NoError(t, err)
	}
	return store
}

func newTrainingService(t *testing.T, samples SnapshotSource, runs RunStore) (*TrainingService, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Training.Trees = 20
	cfg.Training.ModelPath = filepath.Join(t.TempDir(), "model.json")

	svc, err := NewTrainingService(samples, runs, cfg.Pipeline, cfg.Training, zap.NewNop())
	require.NoError(t, err)
	return svc, cfg.Training.ModelPath
}

func TestTrainingService_RunSyncWritesArtifact(t *testing.T) {
	runs := &memoryRuns{}
	svc, path := newTrainingService(t, gestureSession(t), runs)

	run, err := svc.RunSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 59, run.WindowCount)
	require.NotNil(t, run.Report)
	assert.Greater(t, run.Report.Accuracy, 0.8)
	assert.NotNil(t, run.CompletedAt)

	art, err := training.Load(path)
	require.NoError(t, err)
	assert.Equal(t, *run.Report, art.Report)

	stored, err := svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, stored.Status)
}

func TestTrainingService_SingleClassFailsWithoutArtifact(t *testing.T) {
	store := seeded(t, 200)
	for i := range store.samples {
		_, err := store.SetLabel(context.Background(), int64(i+1), 0)
		require.NoError(t, err)
	}
	svc, path := newTrainingService(t, store, &memoryRuns{})

	run, err := svc.RunSync(context.Background())
	var insufficient *models.InsufficientDataError
	require.True(t, errors.As(err, &insufficient), "got %v", err)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.NotEmpty(t, run.ErrorMessage)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTrainingService_StartRunTracksProgress(t *testing.T) {
	runs := &memoryRuns{}
	svc, _ := newTrainingService(t, gestureSession(t), runs)

	ctx, cancel := context.WithCancel(context.Background())
	id, err := svc.StartRun(ctx)
	require.NoError(t, err)
	cancel()

	svc.Wait()

	run, err := svc.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)

	_, err = svc.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
