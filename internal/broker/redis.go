package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker implements Broker on top of Redis, using the reliable-queue
// pattern: a list for items ready now, consumed with BRPopLPush into a
// processing list so a crashed worker's items can be recovered, plus a
// sorted set keyed by due-timestamp for delayed retries. A background
// promoter goroutine moves sorted-set members whose score has elapsed into
// the ready list.
//
// Grounded in the teacher's lack of a broker client plus the sorted-set
// delayed-retry idiom (ZADD scored by next-retry unix time, promoted into a
// ready queue) and go-redis/v9's BRPopLPush reliable-queue pattern.
type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger

	readyKey          string
	processingKey     string
	delayedKey        string
	processingMetaKey string

	visibilityTimeout time.Duration
	promoteInterval   time.Duration

	stopPromoter chan struct{}
	promoterDone chan struct{}
}

// RedisConfig configures a RedisBroker.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Queue is the logical queue name; Redis keys are namespaced under it
	// as relay:work:<queue>, relay:processing:<queue>, relay:delayed:<queue>.
	Queue string

	// VisibilityTimeout bounds how long a consumed-but-unacked item stays
	// hidden from other consumers before the promoter goroutine re-queues it.
	VisibilityTimeout time.Duration

	// PromoteInterval is how often the promoter goroutine checks the
	// delayed set for due items.
	PromoteInterval time.Duration
}

type queuedItem struct {
	NotificationID string `json:"notification_id"`
	RetryCount     int    `json:"retry_count"`
	EnqueuedAt     int64  `json:"enqueued_at"`
}

// NewRedisBroker connects to Redis per cfg and starts the delayed-item
// promoter goroutine.
func NewRedisBroker(cfg RedisConfig, logger *zap.Logger) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return newRedisBroker(client, cfg, logger)
}

// NewRedisBrokerWithClient wraps an already-constructed client, used by
// tests to inject a miniredis-backed client.
func NewRedisBrokerWithClient(client *redis.Client, cfg RedisConfig, logger *zap.Logger) (*RedisBroker, error) {
	return newRedisBroker(client, cfg, logger)
}

func newRedisBroker(client *redis.Client, cfg RedisConfig, logger *zap.Logger) (*RedisBroker, error) {
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 30 * time.Second
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	b := &RedisBroker{
		client:            client,
		logger:            logger,
		readyKey:          fmt.Sprintf("relay:work:%s", cfg.Queue),
		processingKey:     fmt.Sprintf("relay:processing:%s", cfg.Queue),
		delayedKey:        fmt.Sprintf("relay:delayed:%s", cfg.Queue),
		processingMetaKey: fmt.Sprintf("relay:processing-meta:%s", cfg.Queue),
		visibilityTimeout: cfg.VisibilityTimeout,
		promoteInterval:   cfg.PromoteInterval,
		stopPromoter:      make(chan struct{}),
		promoterDone:      make(chan struct{}),
	}

	go b.runPromoter()

	return b, nil
}

// Publish implements Broker.Publish.
func (b *RedisBroker) Publish(ctx context.Context, notificationID string) error {
	item := queuedItem{NotificationID: notificationID, EnqueuedAt: time.Now().Unix()}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}
	if err := b.client.LPush(ctx, b.readyKey, payload).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// PublishWithDelay implements Broker.PublishWithDelay.
func (b *RedisBroker) PublishWithDelay(ctx context.Context, notificationID string, retryCount int, delay time.Duration) error {
	item := queuedItem{NotificationID: notificationID, RetryCount: retryCount, EnqueuedAt: time.Now().Unix()}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}

	dueAt := time.Now().Add(delay)
	z := redis.Z{Score: float64(dueAt.UnixMilli()), Member: payload}
	if err := b.client.ZAdd(ctx, b.delayedKey, z).Err(); err != nil {
		return fmt.Errorf("zadd: %w", err)
	}
	return nil
}

// Consume implements Broker.Consume. The token returned is the raw payload
// string, matched back against the processing list on Ack/Nack via LRem.
func (b *RedisBroker) Consume(ctx context.Context) (WorkItem, string, error) {
	result, err := b.client.BRPopLPush(ctx, b.readyKey, b.processingKey, 5*time.Second).Result()
	if err == redis.Nil {
		return WorkItem{}, "", ErrNoWork
	}
	if err != nil {
		if ctx.Err() != nil {
			return WorkItem{}, "", ErrNoWork
		}
		return WorkItem{}, "", fmt.Errorf("brpoplpush: %w", err)
	}

	var item queuedItem
	if err := json.Unmarshal([]byte(result), &item); err != nil {
		// Malformed payload; drop it from processing so it doesn't jam
		// the queue forever, and return the decode error.
		b.client.LRem(ctx, b.processingKey, 1, result)
		return WorkItem{}, "", fmt.Errorf("unmarshal work item: %w", err)
	}

	// Record when this item was checked out so the promoter can reclaim it
	// if the consumer dies before Ack/Nack (spec.md §4.5 "at-least-once").
	checkoutScore := redis.Z{Score: float64(time.Now().UnixMilli()), Member: result}
	if err := b.client.ZAdd(ctx, b.processingMetaKey, checkoutScore).Err(); err != nil {
		b.logger.Warn("failed to record processing checkout time", zap.Error(err))
	}

	return WorkItem{NotificationID: item.NotificationID, RetryCount: item.RetryCount}, result, nil
}

// Ack implements Broker.Ack.
func (b *RedisBroker) Ack(ctx context.Context, token string) error {
	pipe := b.client.TxPipeline()
	pipe.LRem(ctx, b.processingKey, 1, token)
	pipe.ZRem(ctx, b.processingMetaKey, token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("lrem ack: %w", err)
	}
	return nil
}

// Nack implements Broker.Nack by removing the item from the processing list
// and pushing it back onto the ready list for immediate redelivery.
func (b *RedisBroker) Nack(ctx context.Context, token string) error {
	pipe := b.client.TxPipeline()
	pipe.LRem(ctx, b.processingKey, 1, token)
	pipe.ZRem(ctx, b.processingMetaKey, token)
	pipe.LPush(ctx, b.readyKey, token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("nack: %w", err)
	}
	return nil
}

// Close stops the promoter goroutine and closes the Redis connection.
func (b *RedisBroker) Close() error {
	close(b.stopPromoter)
	<-b.promoterDone
	return b.client.Close()
}

// runPromoter periodically moves delayed items whose due time has elapsed
// into the ready list, and recovers processing-list items that have been
// checked out longer than visibilityTimeout (a crashed or stuck worker).
func (b *RedisBroker) runPromoter() {
	defer close(b.promoterDone)

	ticker := time.NewTicker(b.promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopPromoter:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), b.promoteInterval)
			if err := b.promoteDue(ctx); err != nil {
				b.logger.Warn("promote due items failed", zap.Error(err))
			}
			if err := b.reclaimAbandoned(ctx); err != nil {
				b.logger.Warn("reclaim abandoned items failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// promoteDue moves every delayed member whose score is at or before now
// into the ready list.
func (b *RedisBroker) promoteDue(ctx context.Context) error {
	now := float64(time.Now().UnixMilli())
	members, err := b.client.ZRangeByScore(ctx, b.delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return fmt.Errorf("zrangebyscore: %w", err)
	}

	for _, member := range members {
		pipe := b.client.TxPipeline()
		pipe.ZRem(ctx, b.delayedKey, member)
		pipe.LPush(ctx, b.readyKey, member)
		if _, err := pipe.Exec(ctx); err != nil {
			b.logger.Warn("failed to promote delayed item", zap.Error(err))
			continue
		}
	}
	return nil
}

// reclaimAbandoned re-queues processing-list entries whose checkout
// timestamp in processingMetaKey is older than visibilityTimeout: the
// worker that consumed them crashed or stalled before calling Ack/Nack
// (spec.md §4.5 "On consumer crash mid-attempt, the broker redelivers").
func (b *RedisBroker) reclaimAbandoned(ctx context.Context) error {
	cutoff := float64(time.Now().Add(-b.visibilityTimeout).UnixMilli())
	stale, err := b.client.ZRangeByScore(ctx, b.processingMetaKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", cutoff),
	}).Result()
	if err != nil {
		return fmt.Errorf("zrangebyscore processing meta: %w", err)
	}

	for _, token := range stale {
		pipe := b.client.TxPipeline()
		pipe.LRem(ctx, b.processingKey, 1, token)
		pipe.ZRem(ctx, b.processingMetaKey, token)
		pipe.LPush(ctx, b.readyKey, token)
		if _, err := pipe.Exec(ctx); err != nil {
			b.logger.Warn("failed to reclaim abandoned processing item", zap.Error(err))
			continue
		}
		b.logger.Warn("reclaimed abandoned processing item past visibility timeout")
	}
	return nil
}

// QueueDepth reports the number of items waiting in the ready list, used
// by the operational monitor (spec.md §9 ambient stack).
func (b *RedisBroker) QueueDepth(ctx context.Context) (int64, error) {
	return b.client.LLen(ctx, b.readyKey).Result()
}

// DelayedDepth reports the number of items waiting in the delayed set.
func (b *RedisBroker) DelayedDepth(ctx context.Context) (int64, error) {
	return b.client.ZCard(ctx, b.delayedKey).Result()
}
