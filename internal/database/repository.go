package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Ping checks the catalog connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Health(ctx)
}

// Datasets

const datasetColumns = `id, name, object_key, size, duration, modalities, metadata, status, created_at, updated_at`

// UpsertDataset records a published container. A container republished under
// the same object key keeps its id.
func (r *Repository) UpsertDataset(ctx context.Context, ds *models.Dataset) (err error) {
	defer func(start time.Time) { observe("upsert_dataset", start, err) }(time.Now())
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.Metadata == nil {
		ds.Metadata = models.Metadata{}
	}
	if ds.Modalities == nil {
		ds.Modalities = []string{}
	}

	query := `
		INSERT INTO datasets (id, name, object_key, size, duration, modalities, metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (object_key) DO UPDATE
		SET name = EXCLUDED.name, size = EXCLUDED.size, duration = EXCLUDED.duration,
		    modalities = EXCLUDED.modalities, metadata = EXCLUDED.metadata,
		    status = EXCLUDED.status, updated_at = now()
		RETURNING id, created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		ds.ID, ds.Name, ds.ObjectKey, ds.Size, ds.Duration, ds.Modalities, ds.Metadata, ds.Status,
	).Scan(&ds.ID, &ds.CreatedAt, &ds.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert dataset: %w", err)
	}

	return nil
}

// GetDatasetByKey retrieves a dataset by its object key
func (r *Repository) GetDatasetByKey(ctx context.Context, objectKey string) (_ *models.Dataset, err error) {
	defer func(start time.Time) { observe("get_dataset", start, err) }(time.Now())

	query := `SELECT ` + datasetColumns + ` FROM datasets WHERE object_key = $1`
	ds, err := scanDataset(r.db.Pool.QueryRow(ctx, query, objectKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: dataset %s", ErrNotFound, objectKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	return ds, nil
}

// ListDatasets retrieves datasets with pagination, newest first
func (r *Repository) ListDatasets(ctx context.Context, limit, offset int) (_ []*models.Dataset, err error) {
	defer func(start time.Time) { observe("list_datasets", start, err) }(time.Now())

	query := `SELECT ` + datasetColumns + ` FROM datasets ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*models.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		datasets = append(datasets, ds)
	}

	return datasets, rows.Err()
}

// UpdateDatasetStatus sets the status of a dataset
func (r *Repository) UpdateDatasetStatus(ctx context.Context, objectKey, status string) (err error) {
	defer func(start time.Time) { observe("update_dataset", start, err) }(time.Now())

	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE datasets SET status = $2, updated_at = now() WHERE object_key = $1`,
		objectKey, status)
	if err != nil {
		return fmt.Errorf("failed to update dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: dataset %s", ErrNotFound, objectKey)
	}

	return nil
}

func scanDataset(row pgx.Row) (*models.Dataset, error) {
	var ds models.Dataset
	err := row.Scan(
		&ds.ID, &ds.Name, &ds.ObjectKey, &ds.Size, &ds.Duration, &ds.Modalities,
		&ds.Metadata, &ds.Status, &ds.CreatedAt, &ds.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// Jobs

const jobColumns = `id, type, dataset_key, status, priority, COALESCE(error_msg, ''), retry_count,
		       COALESCE(worker_id, ''), started_at, completed_at, created_at, params`

// CreateJob creates a new job record
func (r *Repository) CreateJob(ctx context.Context, job *models.Job) (err error) {
	defer func(start time.Time) { observe("create_job", start, err) }(time.Now())
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	query := `
		INSERT INTO jobs (id, type, dataset_key, status, priority, retry_count, params)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		job.ID, job.Type, job.DatasetKey, job.Status, job.Priority, job.RetryCount, job.Params,
	).Scan(&job.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by ID
func (r *Repository) GetJob(ctx context.Context, id string) (_ *models.Job, err error) {
	defer func(start time.Time) { observe("get_job", start, err) }(time.Now())

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// UpdateJob updates a job record
func (r *Repository) UpdateJob(ctx context.Context, job *models.Job) (err error) {
	defer func(start time.Time) { observe("update_job", start, err) }(time.Now())

	query := `
		UPDATE jobs
		SET status = $2, priority = $3, error_msg = NULLIF($4, ''), retry_count = $5,
		    worker_id = NULLIF($6, ''), started_at = $7, completed_at = $8, params = $9
		WHERE id = $1
	`

	_, err = r.db.Pool.Exec(ctx, query,
		job.ID, job.Status, job.Priority, job.ErrorMsg, job.RetryCount,
		job.WorkerID, job.StartedAt, job.CompletedAt, job.Params,
	)

	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return nil
}

// GetJobsByDatasetKey retrieves all jobs for a container
func (r *Repository) GetJobsByDatasetKey(ctx context.Context, datasetKey string) (_ []*models.Job, err error) {
	defer func(start time.Time) { observe("list_jobs", start, err) }(time.Now())

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE dataset_key = $1 ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, query, datasetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.ID, &job.Type, &job.DatasetKey, &job.Status, &job.Priority, &job.ErrorMsg,
		&job.RetryCount, &job.WorkerID, &job.StartedAt, &job.CompletedAt, &job.CreatedAt,
		&job.Params,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Segmentation runs

// CreateSegmentationRun records an interval set written to a dataset
func (r *Repository) CreateSegmentationRun(ctx context.Context, run *models.SegmentationRun) (err error) {
	defer func(start time.Time) { observe("create_segmentation_run", start, err) }(time.Now())
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	query := `
		INSERT INTO segmentation_runs (id, dataset_id, job_id, modality, facet, interval_set, segments, covered_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		run.ID, run.DatasetID, run.JobID, run.Modality, run.Facet, run.IntervalSet,
		run.Segments, run.CoveredSeconds,
	).Scan(&run.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create segmentation run: %w", err)
	}

	return nil
}

// GetSegmentationRuns retrieves the segmentation history of a dataset
func (r *Repository) GetSegmentationRuns(ctx context.Context, datasetID string) (_ []*models.SegmentationRun, err error) {
	defer func(start time.Time) { observe("list_segmentation_runs", start, err) }(time.Now())

	query := `
		SELECT id, dataset_id, job_id, modality, facet, interval_set, segments, covered_seconds, created_at
		FROM segmentation_runs
		WHERE dataset_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get segmentation runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SegmentationRun
	for rows.Next() {
		var run models.SegmentationRun
		err := rows.Scan(
			&run.ID, &run.DatasetID, &run.JobID, &run.Modality, &run.Facet,
			&run.IntervalSet, &run.Segments, &run.CoveredSeconds, &run.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan segmentation run: %w", err)
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}
