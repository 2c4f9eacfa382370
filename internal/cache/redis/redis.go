package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/webitel/batch-sync/internal/cache"
	"github.com/webitel/batch-sync/internal/model"
)

const (
	queueKey = "batch_sync:queue"

	defaultPopTimeout = 5 * time.Second
	jobTTL            = 24 * time.Hour
)

// releaseScript deletes a resource lock only while ARGV[1] still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	client     *redis.Client
	popTimeout time.Duration
}

var _ cache.Cache = (*RedisCache)(nil)

func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Ping Redis to check the connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cannot connect to Redis at %s: %w", addr, err)
	}

	return &RedisCache{client: rdb, popTimeout: defaultPopTimeout}, nil
}

// SetPopTimeout changes how long PopSyncJob blocks waiting for a job.
func (r *RedisCache) SetPopTimeout(d time.Duration) {
	r.popTimeout = d
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) PushSyncJob(ctx context.Context, job model.SyncJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal sync job %s: %w", job.JobID, err)
	}
	return r.client.LPush(ctx, queueKey, data).Err()
}

func (r *RedisCache) PopSyncJob(ctx context.Context) (model.SyncJob, error) {
	res, err := r.client.BRPop(ctx, r.popTimeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return model.SyncJob{}, cache.ErrQueueEmpty
	}
	if err != nil {
		return model.SyncJob{}, err
	}

	// res[0] is the key, res[1] the payload
	var job model.SyncJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return model.SyncJob{}, fmt.Errorf("unmarshal sync job: %w", err)
	}
	return job, nil
}

func (r *RedisCache) SetJobStatus(ctx context.Context, jobID string, status cache.JobStatus) error {
	return r.client.Set(ctx, statusKey(jobID), string(status), jobTTL).Err()
}

func (r *RedisCache) AppendJobMessage(ctx context.Context, jobID, message string) error {
	key := messagesKey(jobID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, message)
		pipe.LTrim(ctx, key, -cache.MaxJobMessages, -1)
		pipe.Expire(ctx, key, jobTTL)
		return nil
	})
	return err
}

func (r *RedisCache) AcquireResource(ctx context.Context, tenantID int64, direction model.Direction, resourceName, owner string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, resourceKey(tenantID, direction, resourceName), owner, ttl).Result()
}

func (r *RedisCache) ReleaseResource(ctx context.Context, tenantID int64, direction model.Direction, resourceName, owner string) error {
	return releaseScript.Run(ctx, r.client, []string{resourceKey(tenantID, direction, resourceName)}, owner).Err()
}

// helpers to standardize keys
func statusKey(jobID string) string {
	return fmt.Sprintf("batch_sync:job:%s:status", jobID)
}

func messagesKey(jobID string) string {
	return fmt.Sprintf("batch_sync:job:%s:messages", jobID)
}

func resourceKey(tenantID int64, direction model.Direction, resourceName string) string {
	return fmt.Sprintf("batch_sync:lock:%d:%s:%s", tenantID, direction, resourceName)
}
