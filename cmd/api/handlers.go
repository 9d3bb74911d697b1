package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/align"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/config"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/database"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/dataset"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/intervals"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/logging"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/middleware"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/segmentation"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/storage"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

const containerExt = ".db"

// ResponseCache caches container reads, finished jobs and submission
// counters. *cache.Cache implements it.
type ResponseCache interface {
	GetSummary(ctx context.Context, datasetKey string) (*models.Summary, error)
	SetSummary(ctx context.Context, datasetKey string, summary models.Summary, ttl time.Duration) error
	GetSpeechSpans(ctx context.Context, datasetKey, facet string) ([]models.Span, bool, error)
	SetSpeechSpans(ctx context.Context, datasetKey, facet string, spans []models.Span, ttl time.Duration) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	SetJob(ctx context.Context, job *models.Job, ttl time.Duration) error
	DeleteJob(ctx context.Context, jobID string) error
	IncrementStat(ctx context.Context, stat string) error
	GetStat(ctx context.Context, stat string) (int64, error)
	Ping(ctx context.Context) error
}

// Catalog records jobs and published datasets. *database.Repository
// implements it.
type Catalog interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	GetJobsByDatasetKey(ctx context.Context, datasetKey string) ([]*models.Job, error)
	ListDatasets(ctx context.Context, limit, offset int) ([]*models.Dataset, error)
	GetDatasetByKey(ctx context.Context, objectKey string) (*models.Dataset, error)
	GetSegmentationRuns(ctx context.Context, datasetID string) ([]*models.SegmentationRun, error)
	Ping(ctx context.Context) error
}

// Publisher queues jobs for the workers. *queue.Queue implements it.
type Publisher interface {
	PublishJob(ctx context.Context, job *models.Job) error
	RetryFromDLQ(ctx context.Context, job *models.Job) error
	GetQueueDepth() (int, error)
	GetDLQDepth() (int, error)
}

var jobTypes = []string{
	models.JobTypeIngest,
	models.JobTypeVoicedSegments,
	models.JobTypeSpeech,
	models.JobTypeRemoveModality,
}

// API serves read-only queries over a directory of containers plus job
// submission when a catalog and queue are configured.
type API struct {
	cfg       *config.Config
	cache     ResponseCache // optional
	catalog   Catalog       // optional
	publisher Publisher     // optional
	logger    *logging.Logger
}

func setupRouter(api *API, limiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(api.logger))
	if limiter != nil {
		router.Use(middleware.RateLimit(limiter))
	}

	// Health check
	router.GET("/health", api.healthCheck)

	v1 := router.Group("/api/v1")
	{
		// Containers
		v1.GET("/datasets", api.listDatasets)
		v1.GET("/datasets/:name", api.getSummary)
		v1.GET("/datasets/:name/subtitles.srt", api.exportSubRip)
		v1.GET("/datasets/:name/intervals/:set", api.getIntervals)
		v1.GET("/datasets/:name/gaps", api.getGaps)
		v1.GET("/datasets/:name/speech", api.getSpeech)
		v1.GET("/datasets/:name/windows", api.getWindows)
		v1.GET("/datasets/:name/history", api.getHistory)

		// Catalog and jobs
		v1.GET("/catalog", api.listCatalog)
		v1.POST("/jobs", api.createJob)
		v1.GET("/jobs/:id", api.getJob)
		v1.POST("/jobs/:id/retry", api.retryJob)
		v1.GET("/queue", api.queueStats)
	}

	return router
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	if _, err := os.Stat(api.cfg.Dataset.Dir); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	resp := gin.H{"status": "healthy"}
	if api.cache != nil {
		resp["cache"] = "ok"
		if err := api.cache.Ping(c.Request.Context()); err != nil {
			// the API still answers from the containers
			resp["cache"] = "unavailable"
		}
	}
	if api.catalog != nil {
		resp["catalog"] = "ok"
		if err := api.catalog.Ping(c.Request.Context()); err != nil {
			resp["catalog"] = "unavailable"
		}
	}
	c.JSON(http.StatusOK, resp)
}

type datasetEntry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// List containers in the dataset directory
func (api *API) listDatasets(c *gin.Context) {
	entries, err := os.ReadDir(api.cfg.Dataset.Dir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]datasetEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != containerExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, datasetEntry{
			Name:     strings.TrimSuffix(e.Name(), containerExt),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	c.JSON(http.StatusOK, gin.H{"datasets": out})
}

// Summary of one container
func (api *API) getSummary(c *gin.Context) {
	ctx := c.Request.Context()
	key, path, ok := api.resolve(c)
	if !ok {
		return
	}

	if api.cache != nil {
		if cached, err := api.cache.GetSummary(ctx, key); err == nil && cached != nil {
			c.JSON(http.StatusOK, cached)
			return
		} else if err != nil {
			api.logger.WithError(err).Warn("Summary cache read failed")
		}
	}

	var summary models.Summary
	err := api.read(path, "summary", func(d *dataset.Dataset) error {
		var err error
		summary, err = d.Summary()
		return err
	})
	if err != nil {
		api.fail(c, err)
		return
	}
	summary.Path = c.Param("name")

	if api.cache != nil {
		if err := api.cache.SetSummary(ctx, key, summary, api.cfg.Redis.CacheTTL); err != nil {
			api.logger.WithError(err).Warn("Summary cache write failed")
		}
	}
	c.JSON(http.StatusOK, summary)
}

// Export a subtitle facet as SubRip
func (api *API) exportSubRip(c *gin.Context) {
	_, path, ok := api.resolve(c)
	if !ok {
		return
	}

	var text string
	err := api.read(path, string(dataset.TypeSubtitle), func(d *dataset.Dataset) error {
		sub, err := subtitleFacet(d, c.Query("facet"))
		if err != nil {
			return err
		}
		text, err = sub.SubRip()
		return err
	})
	if err != nil {
		api.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.Param("name")+".srt"))
	c.Data(http.StatusOK, "application/x-subrip; charset=utf-8", []byte(text))
}

// Stored interval set of an audio facet, in seconds
func (api *API) getIntervals(c *gin.Context) {
	_, path, ok := api.resolve(c)
	if !ok {
		return
	}

	var spans []models.Span
	err := api.read(path, string(dataset.TypeAudio), func(d *dataset.Dataset) error {
		audio, err := audioFacet(d, c.Query("facet"))
		if err != nil {
			return err
		}
		samples, err := audio.GetTimeIntervals(c.Param("set"))
		if err != nil {
			return err
		}
		spans = toSpans(intervals.ToSeconds(samples, audio.Rate()))
		return nil
	})
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"set": c.Param("set"), "intervals": spans})
}

// Gaps between subtitles up to the end of the audio
func (api *API) getGaps(c *gin.Context) {
	_, path, ok := api.resolve(c)
	if !ok {
		return
	}

	minGap := api.cfg.Alignment.MinimumGap
	if raw := c.Query("min_gap"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_gap must be a non-negative number"})
			return
		}
		minGap = v
	}

	var spans []models.Span
	err := api.read(path, string(dataset.TypeSubtitle), func(d *dataset.Dataset) error {
		sub, err := subtitleFacet(d, c.Query("facet"))
		if err != nil {
			return err
		}
		audio, err := audioFacet(d, "")
		if err != nil {
			return err
		}
		gaps, err := sub.TimesComplementWithin(minGap, audio.Duration())
		if err != nil {
			return err
		}
		spans = toSpans(gaps)
		return nil
	})
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"min_gap": minGap, "gaps": spans})
}

// Voiced audio not covered by subtitles, times only
func (api *API) getSpeech(c *gin.Context) {
	ctx := c.Request.Context()
	key, path, ok := api.resolve(c)
	if !ok {
		return
	}
	facet := c.Query("facet")

	if api.cache != nil {
		spans, hit, err := api.cache.GetSpeechSpans(ctx, key, facet)
		if err != nil {
			api.logger.WithError(err).Warn("Speech cache read failed")
		}
		if hit {
			c.JSON(http.StatusOK, gin.H{"speech": spans})
			return
		}
	}

	segCfg := segmentation.Config{
		MergeSubtitles: api.cfg.Segmentation.MergeSubtitles,
		MergeVoiced:    api.cfg.Segmentation.MergeVoiced,
		Trim:           api.cfg.Segmentation.Trim,
		Coverage:       api.cfg.Segmentation.Coverage,
	}

	var spans []models.Span
	err := api.read(path, string(dataset.TypeAudio), func(d *dataset.Dataset) error {
		audio, err := audioFacet(d, facet)
		if err != nil {
			return err
		}
		sub, err := subtitleFacet(d, "")
		if err != nil {
			return err
		}
		samples, err := segmentation.NonSubtitledSpans(audio, sub, segCfg)
		if err != nil {
			return err
		}
		spans = toSpans(intervals.ToSeconds(samples, audio.Rate()))
		return nil
	})
	if err != nil {
		api.fail(c, err)
		return
	}

	if api.cache != nil {
		if err := api.cache.SetSpeechSpans(ctx, key, facet, spans, api.cfg.Redis.CacheTTL); err != nil {
			api.logger.WithError(err).Warn("Speech cache write failed")
		}
	}
	c.JSON(http.StatusOK, gin.H{"speech": spans})
}

type clipEntry struct {
	Facet   string `json:"facet"`
	Samples int    `json:"samples,omitempty"`
	Frames  int    `json:"frames,omitempty"`
}

type windowEntry struct {
	Start float64     `json:"start"`
	End   float64     `json:"end"`
	Text  string      `json:"text,omitempty"`
	Clips []clipEntry `json:"clips"`
}

// Aligned windows over the audio and video streams: one per cue, or one per
// gap between cues with kind=gaps. Only clip sizes are returned.
func (api *API) getWindows(c *gin.Context) {
	_, path, ok := api.resolve(c)
	if !ok {
		return
	}

	kind := c.DefaultQuery("kind", "subtitles")
	if kind != "subtitles" && kind != "gaps" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be subtitles or gaps"})
		return
	}
	opts := align.Options{MaxDuration: api.cfg.Alignment.MaxDuration}
	if raw := c.Query("max_duration"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_duration must be a non-negative number"})
			return
		}
		opts.MaxDuration = v
	}
	if opts.MaxDuration > 0 {
		seed := uint64(time.Now().UnixNano())
		if raw := c.Query("seed"); raw != "" {
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "seed must be an unsigned integer"})
				return
			}
			seed = v
		}
		opts.Rand = rand.New(rand.NewPCG(seed, seed))
	}

	var windows []windowEntry
	err := api.read(path, string(dataset.TypeSubtitle), func(d *dataset.Dataset) error {
		sub, err := subtitleFacet(d, c.Query("facet"))
		if err != nil {
			return err
		}
		streams, err := streamFacets(d)
		if err != nil {
			return err
		}

		var items []align.Item
		if kind == "gaps" {
			items, err = align.Complement(sub, streams, api.cfg.Alignment.MinimumGap, opts)
		} else {
			items, err = align.WithSubtitles(sub, streams, opts)
		}
		if err != nil {
			return err
		}

		windows = make([]windowEntry, len(items))
		for i, item := range items {
			w := windowEntry{Start: item.Span.Start, End: item.Span.End, Text: item.Text}
			for _, clip := range item.Clips {
				w.Clips = append(w.Clips, clipEntry{Facet: clip.Facet, Samples: len(clip.Samples), Frames: len(clip.Frames)})
			}
			windows[i] = w
		}
		return nil
	})
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "windows": windows})
}

// List catalogued datasets
func (api *API) listCatalog(c *gin.Context) {
	if api.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Catalog not configured"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset = max(offset, 0)

	datasets, err := api.catalog.ListDatasets(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"datasets": datasets,
		"limit":    limit,
		"offset":   offset,
	})
}

type createJobRequest struct {
	Type       string           `json:"type" binding:"required"`
	DatasetKey string           `json:"dataset_key"`
	Priority   int              `json:"priority"`
	Params     models.JobParams `json:"params"`
}

// Create and queue a dataset job
func (api *API) createJob(c *gin.Context) {
	if api.catalog == nil || api.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job submission not configured"})
		return
	}

	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !slices.Contains(jobTypes, req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown job type %q", req.Type)})
		return
	}
	if req.DatasetKey == "" {
		if req.Type != models.JobTypeIngest || req.Params.VideoKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dataset_key is required"})
			return
		}
		req.DatasetKey = storage.DatasetKey(filepath.Base(req.Params.VideoKey))
	}

	job := &models.Job{
		Type:       req.Type,
		DatasetKey: req.DatasetKey,
		Status:     models.JobStatusQueued,
		Priority:   req.Priority,
		Params:     req.Params,
	}

	// Save to database
	if err := api.catalog.CreateJob(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create job: %v", err)})
		return
	}

	// Publish to queue
	if err := api.publisher.PublishJob(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to queue job: %v", err)})
		return
	}
	metrics.RecordJobCreated(job.Type)
	if api.cache != nil {
		if err := api.cache.IncrementStat(c.Request.Context(), submittedStat(job.Type)); err != nil {
			api.logger.WithError(err).Warn("Failed to count job submission")
		}
	}

	c.JSON(http.StatusCreated, job)
}

// Get job endpoint. Finished jobs are served from the cache.
func (api *API) getJob(c *gin.Context) {
	if api.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Catalog not configured"})
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	if api.cache != nil {
		if cached, err := api.cache.GetJob(ctx, id); err == nil && cached != nil {
			c.JSON(http.StatusOK, cached)
			return
		} else if err != nil {
			api.logger.WithError(err).Warn("Job cache read failed")
		}
	}

	job, err := api.catalog.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if api.cache != nil && job.Status == models.JobStatusCompleted {
		if err := api.cache.SetJob(ctx, job, api.cfg.Redis.CacheTTL); err != nil {
			api.logger.WithError(err).Warn("Job cache write failed")
		}
	}
	c.JSON(http.StatusOK, job)
}

// Requeue a failed job with a fresh retry budget
func (api *API) retryJob(c *gin.Context) {
	if api.catalog == nil || api.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job submission not configured"})
		return
	}
	ctx := c.Request.Context()

	job, err := api.catalog.GetJob(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job.Status != models.JobStatusFailed {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("job is %s, only failed jobs can be retried", job.Status)})
		return
	}

	job.Status = models.JobStatusQueued
	job.RetryCount = 0
	job.ErrorMsg = ""
	job.WorkerID = ""
	job.StartedAt = nil
	job.CompletedAt = nil
	if err := api.catalog.UpdateJob(ctx, job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to update job: %v", err)})
		return
	}
	if err := api.publisher.RetryFromDLQ(ctx, job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to queue job: %v", err)})
		return
	}
	if api.cache != nil {
		if err := api.cache.DeleteJob(ctx, job.ID); err != nil {
			api.logger.WithError(err).Warn("Job cache delete failed")
		}
	}
	api.logger.LogJobEvent(job.ID, "retried", job.Status, nil)

	c.JSON(http.StatusAccepted, job)
}

// Queue depths and submission counters
func (api *API) queueStats(c *gin.Context) {
	if api.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Queue not configured"})
		return
	}

	depth, err := api.publisher.GetQueueDepth()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	dead, err := api.publisher.GetDLQDepth()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"pending": depth, "dead_lettered": dead}
	if api.cache != nil {
		submitted := make(map[string]int64, len(jobTypes))
		for _, typ := range jobTypes {
			n, err := api.cache.GetStat(c.Request.Context(), submittedStat(typ))
			if err != nil {
				api.logger.WithError(err).Warn("Failed to read job counter")
				continue
			}
			submitted[typ] = n
		}
		resp["submitted"] = submitted
	}
	c.JSON(http.StatusOK, resp)
}

// Catalog record, segmentation runs and jobs of one container. The container
// need not be present in the local directory.
func (api *API) getHistory(c *gin.Context) {
	if api.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Catalog not configured"})
		return
	}
	ctx := c.Request.Context()
	name := c.Param("name")
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dataset name"})
		return
	}
	key := storage.DatasetKey(name + containerExt)

	ds, err := api.catalog.GetDatasetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Dataset not catalogued"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	runs, err := api.catalog.GetSegmentationRuns(ctx, ds.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	jobs, err := api.catalog.GetJobsByDatasetKey(ctx, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dataset":           ds,
		"segmentation_runs": runs,
		"jobs":              jobs,
	})
}

func submittedStat(jobType string) string {
	return "jobs_submitted:" + jobType
}

// resolve maps the name parameter to the cache key and local path of a
// container, answering the request itself when it cannot.
func (api *API) resolve(c *gin.Context) (key, path string, ok bool) {
	name := c.Param("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dataset name"})
		return "", "", false
	}

	path = filepath.Join(api.cfg.Dataset.Dir, name+containerExt)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Dataset not found"})
		return "", "", false
	}
	return storage.DatasetKey(name + containerExt), path, true
}

// read opens a container read-only for fn and records the read latency
func (api *API) read(path, facetType string, fn func(*dataset.Dataset) error) error {
	start := time.Now()
	d, err := dataset.OpenWithOptions(path, dataset.ModeRead, dataset.Options{
		BusyTimeout: api.cfg.Dataset.BusyTimeout,
		Logger:      api.logger,
	})
	if err != nil {
		return err
	}
	defer d.Close()

	err = fn(d)
	metrics.RecordFacetRead(facetType, time.Since(start).Seconds())
	return err
}

// fail maps container errors to HTTP statuses
func (api *API) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, dataset.ErrInvalidRange), errors.Is(err, dataset.ErrPrecondition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		metrics.RecordError("api", "dataset_read")
		api.logger.WithError(err).Error("Dataset read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func audioFacet(d *dataset.Dataset, name string) (*dataset.AudioFacet, error) {
	f, err := d.GetFacet(dataset.ModalityAudio, name)
	if err != nil {
		return nil, err
	}
	audio, ok := f.(*dataset.AudioFacet)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", dataset.ErrSchemaMismatch, f.Path(), f.Type())
	}
	return audio, nil
}

func subtitleFacet(d *dataset.Dataset, name string) (*dataset.SubtitleFacet, error) {
	f, err := d.GetFacet(dataset.ModalitySubtitles, name)
	if err != nil {
		return nil, err
	}
	sub, ok := f.(*dataset.SubtitleFacet)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", dataset.ErrSchemaMismatch, f.Path(), f.Type())
	}
	return sub, nil
}

// streamFacets returns the default audio and video facets that exist
func streamFacets(d *dataset.Dataset) ([]dataset.Stream, error) {
	var streams []dataset.Stream
	for _, name := range []string{dataset.ModalityAudio, dataset.ModalityVideo} {
		if !d.HasModality(name) {
			continue
		}
		f, err := d.GetFacet(name, "")
		if err != nil {
			return nil, err
		}
		s, ok := f.(dataset.Stream)
		if !ok {
			return nil, fmt.Errorf("%w: %s is a %s", dataset.ErrSchemaMismatch, f.Path(), f.Type())
		}
		streams = append(streams, s)
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("%w: no audio or video stream", dataset.ErrNotFound)
	}
	return streams, nil
}

func toSpans(in []intervals.Interval[float64]) []models.Span {
	out := make([]models.Span, len(in))
	for i, iv := range in {
		out[i] = models.Span{Start: iv.Start, End: iv.End}
	}
	return out
}
