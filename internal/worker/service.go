// Package worker runs dataset jobs: it fetches a container, mutates or reads
// it under a writer lock, publishes the result and records it in the catalog.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/cache"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/config"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/database"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/dataset"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/ingest"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/logging"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/media"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/queue"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/storage"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/tracing"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/transcript"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/vad"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

// ObjectStore moves files in and out of object storage. *storage.Storage
// implements it.
type ObjectStore interface {
	DownloadFile(ctx context.Context, key, path string) error
	UploadFile(ctx context.Context, key, path string) error
}

// Catalog records jobs and published datasets. *database.Repository
// implements it.
type Catalog interface {
	UpdateJob(ctx context.Context, job *models.Job) error
	UpsertDataset(ctx context.Context, ds *models.Dataset) error
	GetDatasetByKey(ctx context.Context, key string) (*models.Dataset, error)
	UpdateDatasetStatus(ctx context.Context, key, status string) error
	CreateSegmentationRun(ctx context.Context, run *models.SegmentationRun) error
}

// Releaser frees a held writer lock
type Releaser interface {
	Release(ctx context.Context) error
}

// Locker serializes writers of one container across workers
type Locker interface {
	Lock(ctx context.Context, datasetKey string) (Releaser, error)
	InvalidateDataset(ctx context.Context, datasetKey string) error
}

// RedisLocker adapts the redis cache to Locker. Held locks are extended
// every TTL/2 until released, so jobs may outlive the TTL.
type RedisLocker struct {
	*cache.Cache
	TTL    time.Duration
	Logger *logging.Logger
}

// Lock implements Locker.
func (l RedisLocker) Lock(ctx context.Context, datasetKey string) (Releaser, error) {
	lock, err := l.AcquireWriterLock(ctx, datasetKey, l.TTL)
	if err != nil {
		return nil, err
	}
	if l.TTL <= 0 {
		return lock, nil
	}

	logger := l.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	r := &renewedLock{lock: lock, stop: stop, done: make(chan struct{})}
	go r.renew(renewCtx, l.TTL, logger.WithDataset(datasetKey))
	return r, nil
}

type renewedLock struct {
	lock *cache.Lock
	stop context.CancelFunc
	done chan struct{}
}

func (r *renewedLock) renew(ctx context.Context, ttl time.Duration, logger *logging.Logger) {
	defer close(r.done)
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.lock.Extend(ctx, ttl); err != nil {
				if ctx.Err() == nil {
					logger.WithError(err).Warn("Failed to extend writer lock")
				}
				return
			}
		}
	}
}

// Release stops the renewal and frees the lock.
func (r *renewedLock) Release(ctx context.Context) error {
	r.stop()
	<-r.done
	return r.lock.Release(ctx)
}

// Deps are the collaborators of a Service
type Deps struct {
	Store       ObjectStore
	Catalog     Catalog
	Locks       Locker
	Decoder     ingest.Decoder
	Classifier  vad.Classifier
	Transcriber transcript.Transcriber // optional
	Logger      *logging.Logger
}

// Service processes dataset jobs
type Service struct {
	cfg      *config.Config
	deps     Deps
	logger   *logging.Logger
	workerID string
}

// NewService creates a new worker service
func NewService(cfg *config.Config, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	workerID := uuid.New().String()
	return &Service{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger.WithWorkerID(workerID),
		workerID: workerID,
	}
}

// WorkerID returns the id this service records on the jobs it runs
func (s *Service) WorkerID() string { return s.workerID }

// ProcessJob runs one job to completion. Failures that retrying cannot fix
// are wrapped with queue.ErrPermanent.
func (s *Service) ProcessJob(ctx context.Context, job *models.Job) (err error) {
	start := time.Now()
	logger := s.logger.WithJobID(job.ID).WithDataset(job.DatasetKey)

	span, ctx := tracing.StartSpan(ctx, "job."+job.Type)
	tracing.SetTag(span, "job_id", job.ID)
	tracing.SetTag(span, "dataset_key", job.DatasetKey)
	defer tracing.FinishSpan(span)

	metrics.JobsInProgress.Inc()
	defer metrics.JobsInProgress.Dec()

	// Update job status to processing
	job.Status = models.JobStatusProcessing
	job.WorkerID = s.workerID
	job.StartedAt = &start
	job.ErrorMsg = ""
	if err := s.deps.Catalog.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	s.logger.LogJobEvent(job.ID, "started", job.Status, map[string]interface{}{"type": job.Type, "retry": job.RetryCount})

	if s.cfg.Worker.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Worker.JobTimeout)
		defer cancel()
	}

	err = s.run(ctx, job, logger)
	if err != nil {
		tracing.LogError(span, err)
		metrics.RecordJobCompleted(job.Type, models.JobStatusFailed, time.Since(start).Seconds())
		metrics.RecordError("worker", job.Type)
		return s.failJob(ctx, job, classify(err))
	}

	now := time.Now()
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now
	if err := s.deps.Catalog.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	metrics.RecordJobCompleted(job.Type, models.JobStatusCompleted, time.Since(start).Seconds())
	s.logger.LogJobEvent(job.ID, "completed", job.Status, map[string]interface{}{"duration_s": time.Since(start).Seconds()})
	return nil
}

func (s *Service) run(ctx context.Context, job *models.Job, logger *logging.Logger) error {
	if job.DatasetKey == "" {
		return fmt.Errorf("%w: job without dataset key", dataset.ErrPrecondition)
	}

	lock, err := s.deps.Locks.Lock(ctx, job.DatasetKey)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Warn("Failed to release writer lock")
		}
	}()

	workDir := filepath.Join(s.cfg.Worker.WorkDir, job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	switch job.Type {
	case models.JobTypeIngest:
		err = s.runIngest(ctx, job, workDir, logger)
	case models.JobTypeVoicedSegments:
		err = s.runVoicedSegments(ctx, job, workDir, logger)
	case models.JobTypeSpeech:
		err = s.runSpeech(ctx, job, workDir, logger)
	case models.JobTypeRemoveModality:
		err = s.runRemoveModality(ctx, job, workDir, logger)
	default:
		return fmt.Errorf("%w: unknown job type %q", queue.ErrPermanent, job.Type)
	}
	if err != nil {
		return err
	}

	if err := s.deps.Locks.InvalidateDataset(ctx, job.DatasetKey); err != nil {
		logger.WithError(err).Warn("Failed to invalidate cached dataset")
	}
	return nil
}

// failJob marks a job as failed and returns the original error
func (s *Service) failJob(ctx context.Context, job *models.Job, err error) error {
	job.Status = models.JobStatusFailed
	job.ErrorMsg = err.Error()

	if uerr := s.deps.Catalog.UpdateJob(context.WithoutCancel(ctx), job); uerr != nil {
		s.logger.WithJobID(job.ID).ErrorWithErr("Failed to record job failure", uerr)
	}
	// a container that no longer parses is unusable for every later job
	if errors.Is(err, dataset.ErrSchemaMismatch) {
		uerr := s.deps.Catalog.UpdateDatasetStatus(context.WithoutCancel(ctx), job.DatasetKey, models.DatasetStatusFailed)
		if uerr != nil && !errors.Is(uerr, database.ErrNotFound) {
			s.logger.WithDataset(job.DatasetKey).ErrorWithErr("Failed to mark dataset failed", uerr)
		}
	}
	s.logger.LogJobEvent(job.ID, "failed", job.Status, map[string]interface{}{"error": err.Error()})

	return err
}

// classify marks errors that a retry cannot fix as permanent
func classify(err error) error {
	if errors.Is(err, queue.ErrPermanent) {
		return err
	}
	for _, permanent := range []error{
		dataset.ErrPrecondition,
		dataset.ErrSchemaMismatch,
		dataset.ErrExists,
		dataset.ErrUnknownFacetType,
		media.ErrNoStream,
		storage.ErrObjectNotFound,
		database.ErrNotFound,
		vad.ErrConfig,
	} {
		if errors.Is(err, permanent) {
			return fmt.Errorf("%w: %w", queue.ErrPermanent, err)
		}
	}
	return err
}

// fetch downloads the container of a job into workDir
func (s *Service) fetch(ctx context.Context, job *models.Job, workDir string) (string, error) {
	path := filepath.Join(workDir, filepath.Base(job.DatasetKey))
	if err := s.deps.Store.DownloadFile(ctx, job.DatasetKey, path); err != nil {
		return "", fmt.Errorf("failed to fetch dataset: %w", err)
	}
	return path, nil
}

// publish uploads a container and records it in the catalog
func (s *Service) publish(ctx context.Context, job *models.Job, path, status string, metadata models.Metadata) (*models.Dataset, error) {
	span, ctx := tracing.StartSpan(ctx, "dataset.publish")
	defer tracing.FinishSpan(span)

	var summary models.Summary
	err := dataset.With(path, dataset.ModeRead, func(d *dataset.Dataset) error {
		var err error
		summary, err = d.Summary()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to summarize dataset: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat dataset: %w", err)
	}

	if err := s.deps.Store.UploadFile(ctx, job.DatasetKey, path); err != nil {
		tracing.LogError(span, err)
		return nil, fmt.Errorf("failed to publish dataset: %w", err)
	}

	ds := &models.Dataset{
		Name:      strings.TrimSuffix(filepath.Base(job.DatasetKey), filepath.Ext(job.DatasetKey)),
		ObjectKey: job.DatasetKey,
		Size:      info.Size(),
		Duration:  summaryDuration(summary),
		Metadata:  metadata,
		Status:    status,
	}
	for _, m := range summary.Modalities {
		ds.Modalities = append(ds.Modalities, m.Name)
	}
	if err := s.deps.Catalog.UpsertDataset(ctx, ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// summaryDuration is the longest stream of a container
func summaryDuration(summary models.Summary) float64 {
	var longest float64
	for _, m := range summary.Modalities {
		for _, f := range m.Facets {
			longest = max(longest, f.Duration)
		}
	}
	return longest
}
