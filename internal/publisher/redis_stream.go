package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream names
const (
	RefreshStream  = "pomona.refresh"
	InsightsStream = "pomona.insights"
)

// streamMaxLen caps each stream with approximate trimming
const streamMaxLen = 10000

// RefreshEvent announces the end of a job run
type RefreshEvent struct {
	RunID            string    `json:"run_id"`
	Job              string    `json:"job"`
	Status           string    `json:"status"`
	RecordsProcessed int       `json:"records_processed"`
	Error            string    `json:"error,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
}

// InsightsEvent announces a new insight bundle in the cache
type InsightsEvent struct {
	RunID       string    `json:"run_id"`
	CacheKey    string    `json:"cache_key"`
	Date        string    `json:"date"`
	IsFinal     bool      `json:"is_final"`
	TopCount    int       `json:"top_count"`
	GeneratedAt time.Time `json:"generated_at"`
}

// RedisStreamPublisher publishes events to Redis streams
type RedisStreamPublisher struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStreamPublisher creates a new Redis stream publisher from existing client
func NewRedisStreamPublisher(client *redis.Client) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		now:    time.Now,
	}
}

// PublishRefresh appends a job completion to the refresh stream
func (p *RedisStreamPublisher) PublishRefresh(ctx context.Context, event RefreshEvent) error {
	return p.publish(ctx, RefreshStream, event.Job, event)
}

// PublishInsights appends an insight publication to the insights stream
func (p *RedisStreamPublisher) PublishInsights(ctx context.Context, event InsightsEvent) error {
	kind := "interim"
	if event.IsFinal {
		kind = "final"
	}
	return p.publish(ctx, InsightsStream, kind, event)
}

func (p *RedisStreamPublisher) publish(ctx context.Context, stream, kind string, payload any) error {
	values, err := streamValues(kind, payload, p.now())
	if err != nil {
		return err
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}

func streamValues(kind string, payload any, at time.Time) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", kind, err)
	}

	return map[string]any{
		"type":      kind,
		"data":      string(data),
		"timestamp": at.Unix(),
	}, nil
}
