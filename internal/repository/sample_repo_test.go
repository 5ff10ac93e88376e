package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"drink-detector/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var base = time.Date(2024, 12, 7, 12, 55, 0, 0, time.Local)

func setupDB(t *testing.T) *sqlx.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := NewDB("sqlite", filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, MigrateDB(db, "sqlite", logger))
	return db
}

func reading(offset int) models.Reading {
	return models.Reading{
		Timestamp: base.Add(time.Duration(offset) * time.Second),
		AX:        float64(offset),
		AY:        1,
		AZ:        2,
		GX:        3,
		GY:        4,
		GZ:        5,
		Pulse:     70,
	}
}

func seed(t *testing.T, repo *SampleRepository, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := repo.Insert(context.Background(), reading(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestInsert_AssignsAscendingIDsWithNullLabel(t *testing.T) {
	repo := NewSampleRepository(setupDB(t), zap.NewNop())
	ids := seed(t, repo, 3)

	assert.Less(t, ids[0], ids[1])
	assert.Less(t, ids[1], ids[2])

	all, err := repo.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, s := range all {
		assert.Equal(t, ids[i], s.ID)
		assert.Nil(t, s.Label)
		assert.True(t, s.Timestamp.Equal(base.Add(time.Duration(i)*time.Second)))
	}
}

func TestListUnlabeled_MostRecentOldestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewSampleRepository(setupDB(t), zap.NewNop())
	ids := seed(t, repo, 10)

	_, err := repo.SetLabel(ctx, ids[9], 1)
	require.NoError(t, err)

	samples, err := repo.ListUnlabeled(ctx, 3)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	assert.Equal(t, ids[6], samples[0].ID)
	assert.Equal(t, ids[7], samples[1].ID)
	assert.Equal(t, ids[8], samples[2].ID)
	for _, s := range samples {
		assert.Nil(t, s.Label)
	}
}

func TestSetLabel_IdempotentAndMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := NewSampleRepository(setupDB(t), zap.NewNop())
	ids := seed(t, repo, 2)

	_, err := repo.SetLabel(ctx, ids[0], 1)
	require.NoError(t, err)
	first, err := repo.All(ctx)
	require.NoError(t, err)

	_, err = repo.SetLabel(ctx, ids[0], 1)
	require.NoError(t, err)
	second, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	affected, err := repo.SetLabel(ctx, 9999, 0)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestSetLabelBatch_IgnoresUnknownIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewSampleRepository(setupDB(t), zap.NewNop())
	ids := seed(t, repo, 5)

	affected, err := repo.SetLabelBatch(ctx, []int64{ids[1], ids[3], 424242}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Nil(t, all[0].Label)
	require.NotNil(t, all[1].Label)
	assert.Equal(t, 1, *all[1].Label)
	require.NotNil(t, all[3].Label)
	assert.Equal(t, 1, *all[3].Label)
}

func TestSetLabelBatch_ChunksLargeSets(t *testing.T) {
	ctx := context.Background()
	repo := NewSampleRepository(setupDB(t), zap.NewNop())
	ids := seed(t, repo, batchChunk+20)

	affected, err := repo.SetLabelBatch(ctx, ids, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(ids)), affected)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(ids), stats.Negative)
	assert.Zero(t, stats.Unlabeled)
}

func TestSetLabelRange_InclusiveBounds(t *testing.T) {
	ctx := context.Background()
	repo := NewSampleRepository(setupDB(t), zap.NewNop())
	seed(t, repo, 10)

	affected, err := repo.SetLabelRange(ctx, base.Add(2*time.Second), base.Add(5*time.Second), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), affected)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.LabelStats{Total: 10, Unlabeled: 6, Positive: 4}, stats)
}

func TestLabeledSnapshot_OnlyLabeledSortedByTimestamp(t *testing.T) {
	ctx := context.Background()
	repo := NewSampleRepository(setupDB(t), zap.NewNop())

	// inserted out of time order
	for _, off := range []int{5, 1, 3, 2} {
		_, err := repo.Insert(ctx, reading(off))
		require.NoError(t, err)
	}
	_, err := repo.SetLabelRange(ctx, base, base.Add(3*time.Second), 0)
	require.NoError(t, err)

	snap, err := repo.LabeledSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 3)
	assert.Equal(t, 1.0, snap[0].AX)
	assert.Equal(t, 2.0, snap[1].AX)
	assert.Equal(t, 3.0, snap[2].AX)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	repo := NewSampleRepository(db, zap.NewNop())

	boom := errors.New("boom")
	err := WithTx(ctx, db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO sensor_data (timestamp, ax, ay, az, gx, gy, gz, pulse)
			VALUES ('2024-12-07 12:00:00', 0, 0, 0, 0, 0, 0, 60)`)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInsert_PersistenceFailureIsSurfaced(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db := sqlx.NewDb(mockDB, "sqlmock")
	repo := NewSampleRepository(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO sensor_data`).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err = repo.Insert(context.Background(), reading(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert sample")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(setupDB(t), zap.NewNop())

	run := &models.TrainingRun{
		ID:        "run-1",
		Status:    models.RunPending,
		CreatedAt: base,
	}
	require.NoError(t, repo.CreateRun(ctx, run))

	done := base.Add(time.Minute)
	run.Status = models.RunCompleted
	run.WindowCount = 12
	run.CompletedAt = &done
	run.Report = &models.Report{
		Classes:  map[int]models.ClassMetrics{0: {Precision: 1, Recall: 1, F1: 1, Support: 2}},
		Accuracy: 1,
	}
	require.NoError(t, repo.UpdateRun(ctx, run))

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, got.Status)
	assert.Equal(t, 12, got.WindowCount)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))
	require.NotNil(t, got.Report)
	assert.Equal(t, 2, got.Report.Classes[0].Support)

	_, err = repo.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
