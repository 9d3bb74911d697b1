package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

// testRepository connects to TEST_DATABASE_URL, skipping when it is unset.
func testRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" || testing.Short() {
		t.Skip("Skipping integration test - requires database connection")
	}

	db, err := open(dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(context.Background()))
	return NewRepository(db)
}

func TestRepository_Datasets(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	key := "datasets/" + uuid.New().String() + ".db"
	ds := &models.Dataset{
		Name:       "clip",
		ObjectKey:  key,
		Size:       1024,
		Duration:   12.5,
		Modalities: []string{"audio", "subtitles", "video"},
		Metadata:   models.Metadata{"source": "raw/clip.mp4"},
		Status:     models.DatasetStatusReady,
	}
	require.NoError(t, repo.UpsertDataset(ctx, ds))
	firstID := ds.ID

	// republishing keeps the id
	again := &models.Dataset{Name: "clip", ObjectKey: key, Size: 2048, Status: models.DatasetStatusAnnotated}
	require.NoError(t, repo.UpsertDataset(ctx, again))
	assert.Equal(t, firstID, again.ID)

	got, err := repo.GetDatasetByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), got.Size)
	assert.Equal(t, models.DatasetStatusAnnotated, got.Status)

	require.NoError(t, repo.UpdateDatasetStatus(ctx, key, models.DatasetStatusFailed))
	assert.ErrorIs(t, repo.UpdateDatasetStatus(ctx, "datasets/missing.db", models.DatasetStatusFailed), ErrNotFound)

	_, err = repo.GetDatasetByKey(ctx, "datasets/missing.db")
	assert.ErrorIs(t, err, ErrNotFound)

	run := &models.SegmentationRun{
		DatasetID:      firstID,
		JobID:          "job-1",
		Modality:       "audio",
		Facet:          "pcm",
		IntervalSet:    "voiced_segments",
		Segments:       3,
		CoveredSeconds: 4.2,
	}
	require.NoError(t, repo.CreateSegmentationRun(ctx, run))

	runs, err := repo.GetSegmentationRuns(ctx, firstID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].Segments)
}

func TestRepository_Jobs(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	key := "datasets/" + uuid.New().String() + ".db"
	job := &models.Job{
		Type:       models.JobTypeIngest,
		DatasetKey: key,
		Status:     models.JobStatusQueued,
		Priority:   models.JobPriorityNormal,
		Params:     models.JobParams{VideoKey: "raw/clip.mp4", SubtitleKeys: []string{"raw/clip.en.srt"}},
	}
	require.NoError(t, repo.CreateJob(ctx, job))

	now := time.Now()
	job.Status = models.JobStatusFailed
	job.ErrorMsg = "ffprobe failed"
	job.WorkerID = "worker-1"
	job.StartedAt = &now
	require.NoError(t, repo.UpdateJob(ctx, job))

	got, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "ffprobe failed", got.ErrorMsg)
	assert.Equal(t, "raw/clip.mp4", got.Params.VideoKey)
	assert.NotNil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)

	jobs, err := repo.GetJobsByDatasetKey(ctx, key)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	_, err = repo.GetJob(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
}
