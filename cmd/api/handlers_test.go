package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/config"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/database"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/dataset"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/intervals"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/logging"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/middleware"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/segmentation"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

type memoryCache struct {
	summaries map[string]models.Summary
	speech    map[string][]models.Span
	jobs      map[string]models.Job
	stats     map[string]int64
	sets      int
	down      bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		summaries: map[string]models.Summary{},
		speech:    map[string][]models.Span{},
		jobs:      map[string]models.Job{},
		stats:     map[string]int64{},
	}
}

func (m *memoryCache) GetSummary(_ context.Context, key string) (*models.Summary, error) {
	s, ok := m.summaries[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memoryCache) SetSummary(_ context.Context, key string, s models.Summary, _ time.Duration) error {
	m.sets++
	m.summaries[key] = s
	return nil
}

func (m *memoryCache) GetSpeechSpans(_ context.Context, key, facet string) ([]models.Span, bool, error) {
	spans, ok := m.speech[key+":"+facet]
	return spans, ok, nil
}

func (m *memoryCache) SetSpeechSpans(_ context.Context, key, facet string, spans []models.Span, _ time.Duration) error {
	m.sets++
	m.speech[key+":"+facet] = spans
	return nil
}

func (m *memoryCache) GetJob(_ context.Context, id string) (*models.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (m *memoryCache) SetJob(_ context.Context, job *models.Job, _ time.Duration) error {
	m.jobs[job.ID] = *job
	return nil
}

func (m *memoryCache) DeleteJob(_ context.Context, id string) error {
	delete(m.jobs, id)
	return nil
}

func (m *memoryCache) IncrementStat(_ context.Context, stat string) error {
	m.stats[stat]++
	return nil
}

func (m *memoryCache) GetStat(_ context.Context, stat string) (int64, error) {
	return m.stats[stat], nil
}

func (m *memoryCache) Ping(context.Context) error {
	if m.down {
		return errors.New("connection refused")
	}
	return nil
}

type memoryCatalog struct {
	jobs     map[string]*models.Job
	datasets map[string]*models.Dataset
	runs     []*models.SegmentationRun
}

func (m *memoryCatalog) CreateJob(_ context.Context, job *models.Job) error {
	job.ID = fmt.Sprintf("job-%d", len(m.jobs)+1)
	m.jobs[job.ID] = job
	return nil
}

func (m *memoryCatalog) GetJob(_ context.Context, id string) (*models.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", database.ErrNotFound, id)
	}
	return job, nil
}

func (m *memoryCatalog) UpdateJob(_ context.Context, job *models.Job) error {
	if _, ok := m.jobs[job.ID]; !ok {
		return fmt.Errorf("%w: job %s", database.ErrNotFound, job.ID)
	}
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memoryCatalog) GetJobsByDatasetKey(_ context.Context, key string) ([]*models.Job, error) {
	var out []*models.Job
	for _, job := range m.jobs {
		if job.DatasetKey == key {
			out = append(out, job)
		}
	}
	return out, nil
}

func (m *memoryCatalog) GetDatasetByKey(_ context.Context, key string) (*models.Dataset, error) {
	ds, ok := m.datasets[key]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %s", database.ErrNotFound, key)
	}
	return ds, nil
}

func (m *memoryCatalog) GetSegmentationRuns(_ context.Context, datasetID string) ([]*models.SegmentationRun, error) {
	var out []*models.SegmentationRun
	for _, run := range m.runs {
		if run.DatasetID == datasetID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (m *memoryCatalog) Ping(context.Context) error { return nil }

func (m *memoryCatalog) ListDatasets(context.Context, int, int) ([]*models.Dataset, error) {
	return []*models.Dataset{{ID: "ds-1", Name: "clip", ObjectKey: "datasets/clip.db"}}, nil
}

type recordingPublisher struct {
	published []*models.Job
	retried   []*models.Job
	dead      int
}

func (p *recordingPublisher) PublishJob(_ context.Context, job *models.Job) error {
	p.published = append(p.published, job)
	return nil
}

func (p *recordingPublisher) RetryFromDLQ(_ context.Context, job *models.Job) error {
	p.retried = append(p.retried, job)
	return nil
}

func (p *recordingPublisher) GetQueueDepth() (int, error) { return len(p.published), nil }

func (p *recordingPublisher) GetDLQDepth() (int, error) { return p.dead, nil }

// writeContainer stores 10 s of 1 kHz audio with voiced segments and one
// English cue at [1 s, 3 s).
func writeContainer(t *testing.T, dir, name string) {
	t.Helper()
	err := dataset.With(filepath.Join(dir, name+".db"), dataset.ModeCreate, func(d *dataset.Dataset) error {
		var audio *dataset.AudioFacet
		_, err := d.CreateModality(dataset.ModalityAudio, func(m *dataset.Modality) error {
			var err error
			audio, err = dataset.CreateAudioFacet(m, "pcm", make([]int16, 10000), dataset.AudioConfig{SampleRate: 1000})
			return err
		})
		if err != nil {
			return err
		}
		err = audio.AddTimeIntervals(segmentation.VoicedSegments, []intervals.Interval[int64]{
			{Start: 990, End: 3090}, {Start: 6000, End: 8100},
		}, false)
		if err != nil {
			return err
		}
		_, err = d.CreateModality(dataset.ModalitySubtitles, func(m *dataset.Modality) error {
			_, err := dataset.CreateSubtitleFacet(m, "clip.en", []models.Cue{
				{Start: 1, End: 3, Runs: []models.Run{models.PlainRun("Hello")}},
			})
			return err
		})
		return err
	})
	require.NoError(t, err)
}

type testServer struct {
	router    *gin.Engine
	cache     *memoryCache
	catalog   *memoryCatalog
	publisher *recordingPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	writeContainer(t, dir, "clip")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	cfg := &config.Config{
		Dataset: config.DatasetConfig{Dir: dir},
		Segmentation: config.SegmentationConfig{
			MergeSubtitles: 300 * time.Millisecond,
			MergeVoiced:    500 * time.Millisecond,
			Trim:           500 * time.Millisecond,
			Coverage:       0.7,
		},
		Alignment: config.AlignmentConfig{MinimumGap: 0.5},
		Redis:     config.RedisConfig{CacheTTL: time.Minute},
	}
	ts := &testServer{
		cache:     newMemoryCache(),
		catalog:   &memoryCatalog{jobs: map[string]*models.Job{}, datasets: map[string]*models.Dataset{}},
		publisher: &recordingPublisher{},
	}
	api := &API{cfg: cfg, cache: ts.cache, catalog: ts.catalog, publisher: ts.publisher, logger: logging.Nop()}
	ts.router = setupRouter(api, nil)
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	var resp map[string]string
	decode(t, w, &resp)
	assert.Equal(t, "ok", resp["cache"])
	assert.Equal(t, "ok", resp["catalog"])

	// a lost cache degrades the API without failing the check
	ts.cache.down = true
	w = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, "unavailable", resp["cache"])
}

func TestListDatasets(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/v1/datasets", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Datasets []datasetEntry `json:"datasets"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Datasets, 1)
	assert.Equal(t, "clip", resp.Datasets[0].Name)
	assert.Greater(t, resp.Datasets[0].Size, int64(0))
}

func TestGetSummary(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/datasets/clip", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary models.Summary
	decode(t, w, &summary)
	assert.Equal(t, "clip", summary.Path)
	require.Len(t, summary.Modalities, 2)
	assert.Equal(t, dataset.ModalityAudio, summary.Modalities[0].Name)
	assert.Equal(t, []string{segmentation.VoicedSegments}, summary.Modalities[0].Facets[0].Intervals)
	assert.Equal(t, 10.0, summary.Modalities[0].Facets[0].Duration)

	// the second read is served from the cache
	cached := ts.cache.summaries["datasets/clip.db"]
	cached.Path = "from-cache"
	ts.cache.summaries["datasets/clip.db"] = cached

	w = ts.do(t, http.MethodGet, "/api/v1/datasets/clip", nil)
	decode(t, w, &summary)
	assert.Equal(t, "from-cache", summary.Path)
	assert.Equal(t, 1, ts.cache.sets)
}

func TestDatasetNames(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/datasets/missing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/datasets/.hidden", nil).Code)
}

func TestExportSubRip(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/datasets/clip/subtitles.srt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1\n00:00:01,000 --> 00:00:03,000\nHello\n\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "clip.srt")

	w = ts.do(t, http.MethodGet, "/api/v1/datasets/clip/subtitles.srt?facet=clip.fr", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetIntervals(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/datasets/clip/intervals/voiced_segments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Intervals []models.Span `json:"intervals"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Intervals, 2)
	assert.InDelta(t, 0.99, resp.Intervals[0].Start, 1e-9)
	assert.InDelta(t, 3.09, resp.Intervals[0].End, 1e-9)
	assert.InDelta(t, 8.1, resp.Intervals[1].End, 1e-9)

	w = ts.do(t, http.MethodGet, "/api/v1/datasets/clip/intervals/music", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetGaps(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/datasets/clip/gaps", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Gaps []models.Span `json:"gaps"`
	}
	decode(t, w, &resp)
	assert.Equal(t, []models.Span{{Start: 0, End: 1}, {Start: 3, End: 10}}, resp.Gaps)

	w = ts.do(t, http.MethodGet, "/api/v1/datasets/clip/gaps?min_gap=2", nil)
	decode(t, w, &resp)
	assert.Equal(t, []models.Span{{Start: 3, End: 10}}, resp.Gaps)

	w = ts.do(t, http.MethodGet, "/api/v1/datasets/clip/gaps?min_gap=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSpeech(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/datasets/clip/speech", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Speech []models.Span `json:"speech"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Speech, 1)
	assert.InDelta(t, 6.0, resp.Speech[0].Start, 1e-9)
	assert.InDelta(t, 8.1, resp.Speech[0].End, 1e-9)
	assert.Contains(t, ts.cache.speech, "datasets/clip.db:")

	ts.cache.speech["datasets/clip.db:"] = []models.Span{{Start: 1, End: 2}}
	w = ts.do(t, http.MethodGet, "/api/v1/datasets/clip/speech", nil)
	decode(t, w, &resp)
	assert.Equal(t, []models.Span{{Start: 1, End: 2}}, resp.Speech)
}

func TestGetWindows(t *testing.T) {
	ts := newTestServer(t)

	var resp struct {
		Windows []windowEntry `json:"windows"`
	}
	w := ts.do(t, http.MethodGet, "/api/v1/datasets/clip/windows", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &resp)
	require.Len(t, resp.Windows, 1)
	assert.Equal(t, windowEntry{
		Start: 1, End: 3, Text: "Hello",
		Clips: []clipEntry{{Facet: "audio/pcm", Samples: 2000}},
	}, resp.Windows[0])

	w = ts.do(t, http.MethodGet, "/api/v1/datasets/clip/windows?kind=gaps", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp.Windows = nil
	decode(t, w, &resp)
	require.Len(t, resp.Windows, 2)
	assert.Equal(t, 1000, resp.Windows[0].Clips[0].Samples)
	assert.Equal(t, 7000, resp.Windows[1].Clips[0].Samples)

	w = ts.do(t, http.MethodGet, "/api/v1/datasets/clip/windows?max_duration=1&seed=7", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp.Windows = nil
	decode(t, w, &resp)
	require.Len(t, resp.Windows, 1)
	win := resp.Windows[0]
	assert.InDelta(t, 1.0, win.End-win.Start, 1e-9)
	assert.GreaterOrEqual(t, win.Start, 1.0)
	assert.LessOrEqual(t, win.End, 3.0)
	assert.InDelta(t, 1000, win.Clips[0].Samples, 1)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/datasets/clip/windows?kind=music", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/datasets/clip/windows?max_duration=x", nil).Code)
}

func TestCreateJob(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"type":   models.JobTypeIngest,
		"params": map[string]interface{}{"video_key": "raw/clip.mp4"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var job models.Job
	decode(t, w, &job)
	assert.Equal(t, "datasets/clip.db", job.DatasetKey)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	require.Len(t, ts.publisher.published, 1)
	assert.Equal(t, job.ID, ts.publisher.published[0].ID)
	assert.Equal(t, int64(1), ts.cache.stats["jobs_submitted:ingest"])

	w = ts.do(t, http.MethodGet, "/api/v1/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, ts.cache.jobs, "unfinished jobs are not cached")
	w = ts.do(t, http.MethodGet, "/api/v1/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{"type": "transcode", "dataset_key": "datasets/clip.db"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{"type": models.JobTypeSpeech})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, ts.publisher.published, 1)
}

func TestGetJobCached(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.jobs["job-7"] = &models.Job{ID: "job-7", Type: models.JobTypeSpeech, Status: models.JobStatusCompleted}

	w := ts.do(t, http.MethodGet, "/api/v1/jobs/job-7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, ts.cache.jobs, "job-7")

	// later reads skip the catalog
	delete(ts.catalog.jobs, "job-7")
	w = ts.do(t, http.MethodGet, "/api/v1/jobs/job-7", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRetryJob(t *testing.T) {
	ts := newTestServer(t)
	started := time.Now()
	ts.catalog.jobs["job-9"] = &models.Job{
		ID: "job-9", Type: models.JobTypeVoicedSegments, DatasetKey: "datasets/clip.db",
		Status: models.JobStatusFailed, RetryCount: 3, ErrorMsg: "boom", StartedAt: &started,
	}
	ts.catalog.jobs["job-10"] = &models.Job{ID: "job-10", Status: models.JobStatusProcessing}
	ts.cache.jobs["job-9"] = *ts.catalog.jobs["job-9"]

	w := ts.do(t, http.MethodPost, "/api/v1/jobs/job-9/retry", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var job models.Job
	decode(t, w, &job)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Zero(t, job.RetryCount)
	assert.Empty(t, job.ErrorMsg)
	assert.Nil(t, job.StartedAt)
	require.Len(t, ts.publisher.retried, 1)
	assert.Equal(t, "job-9", ts.publisher.retried[0].ID)
	assert.Equal(t, models.JobStatusQueued, ts.catalog.jobs["job-9"].Status)
	assert.NotContains(t, ts.cache.jobs, "job-9")

	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/v1/jobs/job-10/retry", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/v1/jobs/nope/retry", nil).Code)
	assert.Len(t, ts.publisher.retried, 1)
}

func TestQueueStats(t *testing.T) {
	ts := newTestServer(t)
	ts.publisher.dead = 2
	w := ts.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"type": models.JobTypeVoicedSegments, "dataset_key": "datasets/clip.db",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/queue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Pending      int              `json:"pending"`
		DeadLettered int              `json:"dead_lettered"`
		Submitted    map[string]int64 `json:"submitted"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.Pending)
	assert.Equal(t, 2, resp.DeadLettered)
	assert.Equal(t, map[string]int64{
		models.JobTypeIngest:         0,
		models.JobTypeVoicedSegments: 1,
		models.JobTypeSpeech:         0,
		models.JobTypeRemoveModality: 0,
	}, resp.Submitted)
}

func TestGetHistory(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.datasets["datasets/clip.db"] = &models.Dataset{ID: "ds-1", Name: "clip", ObjectKey: "datasets/clip.db", Status: models.DatasetStatusAnnotated}
	ts.catalog.runs = []*models.SegmentationRun{
		{DatasetID: "ds-1", Facet: "pcm", IntervalSet: segmentation.VoicedSegments, Segments: 2},
		{DatasetID: "ds-2", Facet: "pcm", IntervalSet: segmentation.VoicedSegments},
	}
	ts.catalog.jobs["job-1"] = &models.Job{ID: "job-1", DatasetKey: "datasets/clip.db", Status: models.JobStatusCompleted}
	ts.catalog.jobs["job-2"] = &models.Job{ID: "job-2", DatasetKey: "datasets/other.db"}

	w := ts.do(t, http.MethodGet, "/api/v1/datasets/clip/history", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Dataset models.Dataset           `json:"dataset"`
		Runs    []models.SegmentationRun `json:"segmentation_runs"`
		Jobs    []models.Job             `json:"jobs"`
	}
	decode(t, w, &resp)
	assert.Equal(t, models.DatasetStatusAnnotated, resp.Dataset.Status)
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, 2, resp.Runs[0].Segments)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "job-1", resp.Jobs[0].ID)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/datasets/other/history", nil).Code)
}

func TestJobsWithoutCatalog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	api := &API{cfg: &config.Config{Dataset: config.DatasetConfig{Dir: t.TempDir()}}, logger: logging.Nop()}
	router := setupRouter(api, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString(`{"type":"speech"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListCatalog(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/v1/catalog?limit=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Datasets []models.Dataset `json:"datasets"`
		Limit    int              `json:"limit"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 20, resp.Limit)
	require.Len(t, resp.Datasets, 1)
	assert.Equal(t, "clip", resp.Datasets[0].Name)
}

func TestRateLimitedRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	api := &API{cfg: &config.Config{Dataset: config.DatasetConfig{Dir: t.TempDir()}}, logger: logging.Nop()}
	router := setupRouter(api, middleware.NewRateLimiter(0.001, 1))

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes[i] = w.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
