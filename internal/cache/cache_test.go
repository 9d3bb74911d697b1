package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	// Create a mini Redis server for testing
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	// Parse host and port
	cache, err := NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create cache: %v", err)
	}

	return cache, mr
}

func TestNewCache(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	require.NoError(t, cache.Ping(context.Background()))
}

func TestNewCacheUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Server().Addr().Port
	mr.Close()

	_, err := NewCache(host, port, "", 0)
	assert.Error(t, err)
}

func TestCache_SummaryOperations(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	got, err := cache.GetSummary(ctx, "clips/a.db")
	require.NoError(t, err)
	assert.Nil(t, got)

	summary := models.Summary{
		Path: "clips/a.db",
		Modalities: []models.ModalitySummary{{
			Name:    "audio",
			Default: "pcm",
			Facets: []models.FacetSummary{{
				Name: "pcm", Type: "audio", SampleRate: 16000, Length: 32000, Duration: 2,
				Intervals: []string{"voiced_segments"},
			}},
		}},
	}
	require.NoError(t, cache.SetSummary(ctx, "clips/a.db", summary, time.Minute))

	got, err = cache.GetSummary(ctx, "clips/a.db")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, summary, *got)

	mr.FastForward(2 * time.Minute)
	got, err = cache.GetSummary(ctx, "clips/a.db")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_InvalidateDataset(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	spans := []models.Span{{Start: 1, End: 2.5}}

	require.NoError(t, cache.SetSummary(ctx, "a.db", models.Summary{Path: "a.db"}, 0))
	require.NoError(t, cache.SetSpeechSpans(ctx, "a.db", "pcm", spans, 0))
	require.NoError(t, cache.SetSpeechSpans(ctx, "b.db", "pcm", spans, 0))

	got, ok, err := cache.GetSpeechSpans(ctx, "a.db", "pcm")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, spans, got)

	require.NoError(t, cache.InvalidateDataset(ctx, "a.db"))

	_, ok, err = cache.GetSpeechSpans(ctx, "a.db", "pcm")
	require.NoError(t, err)
	assert.False(t, ok)
	summary, err := cache.GetSummary(ctx, "a.db")
	require.NoError(t, err)
	assert.Nil(t, summary)

	_, ok, err = cache.GetSpeechSpans(ctx, "b.db", "pcm")
	require.NoError(t, err)
	assert.True(t, ok, "other datasets keep their entries")
}

func TestCache_JobOperations(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	job := &models.Job{
		ID:         "job-1",
		Type:       models.JobTypeIngest,
		DatasetKey: "clips/a.db",
		Status:     models.JobStatusQueued,
		Params:     models.JobParams{VideoKey: "raw/a.mp4"},
	}

	require.NoError(t, cache.SetJob(ctx, job, time.Minute))

	got, err := cache.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.DatasetKey, got.DatasetKey)
	assert.Equal(t, "raw/a.mp4", got.Params.VideoKey)

	require.NoError(t, cache.DeleteJob(ctx, "job-1"))
	got, err = cache.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_StatOperations(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	n, err := cache.GetStat(ctx, "datasets_ingested")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, cache.IncrementStat(ctx, "datasets_ingested"))
	require.NoError(t, cache.IncrementStat(ctx, "datasets_ingested"))

	n, err = cache.GetStat(ctx, "datasets_ingested")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCache_WriterLock(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	lock, err := cache.AcquireWriterLock(ctx, "a.db", 10*time.Second)
	require.NoError(t, err)

	_, err = cache.AcquireWriterLock(ctx, "a.db", 10*time.Second)
	assert.True(t, errors.Is(err, ErrLockHeld))

	// other containers are independent
	other, err := cache.AcquireWriterLock(ctx, "b.db", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Extend(ctx, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("lock:dataset:a.db"))

	require.NoError(t, lock.Release(ctx))
	relocked, err := cache.AcquireWriterLock(ctx, "a.db", 10*time.Second)
	require.NoError(t, err)

	// a stale holder cannot release or extend the new lock
	require.NoError(t, lock.Release(ctx))
	assert.True(t, mr.Exists("lock:dataset:a.db"))
	assert.ErrorIs(t, lock.Extend(ctx, time.Minute), ErrLockHeld)

	require.NoError(t, relocked.Release(ctx))
	assert.False(t, mr.Exists("lock:dataset:a.db"))
}

func TestCache_WriterLockExpires(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	_, err := cache.AcquireWriterLock(ctx, "a.db", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	lock, err := cache.AcquireWriterLock(ctx, "a.db", time.Second)
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))
}
