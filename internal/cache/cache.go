package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

// ErrLockHeld is returned when another worker holds the writer lock of a
// container.
var ErrLockHeld = errors.New("cache: container writer lock held")

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Summary Cache Operations

// SetSummary caches the layout of a container under its key
func (c *Cache) SetSummary(ctx context.Context, datasetKey string, summary models.Summary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	return c.client.Set(ctx, summaryKey(datasetKey), data, ttl).Err()
}

// GetSummary retrieves a container layout from cache. A miss returns nil.
func (c *Cache) GetSummary(ctx context.Context, datasetKey string) (*models.Summary, error) {
	data, err := c.client.Get(ctx, summaryKey(datasetKey)).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordCacheAccess("summary", false)
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get summary from cache: %w", err)
	}
	metrics.RecordCacheAccess("summary", true)

	var summary models.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}

	return &summary, nil
}

// InvalidateDataset drops every cached entry derived from a container. Writers
// call it after mutating the file.
func (c *Cache) InvalidateDataset(ctx context.Context, datasetKey string) error {
	if err := c.client.Del(ctx, summaryKey(datasetKey)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate summary: %w", err)
	}
	return c.DeletePattern(ctx, fmt.Sprintf("speech:%s:*", datasetKey))
}

// SetSpeechSpans caches the non-subtitled speech windows of an audio facet
func (c *Cache) SetSpeechSpans(ctx context.Context, datasetKey, facet string, spans []models.Span, ttl time.Duration) error {
	data, err := json.Marshal(spans)
	if err != nil {
		return fmt.Errorf("failed to marshal spans: %w", err)
	}

	return c.client.Set(ctx, speechKey(datasetKey, facet), data, ttl).Err()
}

// GetSpeechSpans retrieves cached speech windows. A miss returns nil, false.
func (c *Cache) GetSpeechSpans(ctx context.Context, datasetKey, facet string) ([]models.Span, bool, error) {
	data, err := c.client.Get(ctx, speechKey(datasetKey, facet)).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordCacheAccess("speech", false)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get spans from cache: %w", err)
	}
	metrics.RecordCacheAccess("speech", true)

	var spans []models.Span
	if err := json.Unmarshal(data, &spans); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal spans: %w", err)
	}
	return spans, true, nil
}

// Job Cache Operations

// SetJob caches job metadata
func (c *Cache) SetJob(ctx context.Context, job *models.Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	key := fmt.Sprintf("job:%s", job.ID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetJob retrieves job metadata from cache
func (c *Cache) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	key := fmt.Sprintf("job:%s", jobID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get job from cache: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// DeleteJob removes job from cache
func (c *Cache) DeleteJob(ctx context.Context, jobID string) error {
	key := fmt.Sprintf("job:%s", jobID)
	return c.client.Del(ctx, key).Err()
}

// Stats Cache Operations

// IncrementStat increments a statistic counter
func (c *Cache) IncrementStat(ctx context.Context, stat string) error {
	key := fmt.Sprintf("stats:%s", stat)
	return c.client.Incr(ctx, key).Err()
}

// GetStat retrieves a statistic value. Unset statistics read as zero.
func (c *Cache) GetStat(ctx context.Context, stat string) (int64, error) {
	key := fmt.Sprintf("stats:%s", stat)
	n, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Locking Operations for Distributed Systems

// Lock is a held writer lock on one container
type Lock struct {
	cache *Cache
	key   string
	token string
}

// AcquireWriterLock takes the single-writer lock of a container. It returns
// ErrLockHeld when another holder owns it.
func (c *Cache) AcquireWriterLock(ctx context.Context, datasetKey string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{cache: c, key: lockKey(datasetKey), token: uuid.New().String()}
	ok, err := c.client.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, datasetKey)
	}
	return lock, nil
}

// Extend pushes the expiry of a held lock forward.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	current, err := l.cache.client.Get(ctx, l.key).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read lock: %w", err)
	}
	if current != l.token {
		return fmt.Errorf("%w: lock lost", ErrLockHeld)
	}
	return l.cache.client.Expire(ctx, l.key, ttl).Err()
}

// Release frees the lock if it is still ours. Releasing an expired or stolen
// lock is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.cache.client, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func summaryKey(datasetKey string) string {
	return fmt.Sprintf("summary:%s", datasetKey)
}

func speechKey(datasetKey, facet string) string {
	return fmt.Sprintf("speech:%s:%s", datasetKey, facet)
}

func lockKey(datasetKey string) string {
	return fmt.Sprintf("lock:dataset:%s", datasetKey)
}
