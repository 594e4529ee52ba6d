// Package coordinator wraps the shared keyed store (C1 in the design) that
// the worker fleet leases requests from and writes events back to.
//
// The coordinator is treated as an opaque client: pop-min off a sorted-set
// queue, drain a byte-chunk list, and pipelined-emit to an event list with
// an expire-at stamp. No cross-key atomicity is assumed or required.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/triage/types"
)

// TasksKey is the sorted-set queue workers pop requests from.
const TasksKey = "tasks"

// Config configures the coordinator client connection.
type Config struct {
	// Addr is the redis host:port (required).
	Addr string
	// Password is the redis AUTH password, empty if unset.
	Password string
	// DB is the redis logical database index.
	DB int
}

// Client wraps a redis connection with the narrow operation set the core
// depends on.
type Client struct {
	rdb *goredis.Client
}

// New creates a coordinator client. The connection is lazy; call Ping to
// verify connectivity (required at bootstrap per §6).
func New(cfg Config) *Client {
	return &Client{
		rdb: goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// NewFromRedis wraps an already-constructed redis client, for tests that
// point at a miniredis instance.
func NewFromRedis(rdb *goredis.Client) *Client {
	return &Client{rdb: rdb}
}

// Ping verifies the coordinator is reachable. Required at bootstrap; a
// failure here is fatal per §6 (CoordinatorUnavailable at startup).
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("coordinator ping failed: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// PopTask atomically pops the lowest-scored member off the tasks sorted
// set. ok is false when the queue is empty (no error). The score is the
// request's expire_at, seconds since the Unix epoch.
func (c *Client) PopTask(ctx context.Context) (rootID string, expireAt time.Time, ok bool, err error) {
	results, err := c.rdb.ZPopMin(ctx, TasksKey, 1).Result()
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("pop_task: %w", err)
	}
	if len(results) == 0 {
		return "", time.Time{}, false, nil
	}

	member, ok := results[0].Member.(string)
	if !ok {
		return "", time.Time{}, false, fmt.Errorf("pop_task: unexpected member type %T", results[0].Member)
	}

	expireAt = time.Unix(int64(results[0].Score), 0)
	return member, expireAt, true, nil
}

// DrainBytes repeatedly left-pops data:{pointer} and concatenates the
// chunks until the list is empty. Per the data model invariant, the
// producer writes all chunks before enqueueing, so an empty lpop means
// end-of-stream, not a race.
func (c *Client) DrainBytes(ctx context.Context, pointer string) ([]byte, error) {
	key := "data:" + pointer
	var data []byte
	for {
		chunk, err := c.rdb.LPop(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return data, nil
		}
		if err != nil {
			return nil, fmt.Errorf("drain_bytes %s: %w", key, err)
		}
		data = append(data, chunk...)
	}
}

// PushBytes right-pushes data as a single chunk onto data:{pointer}, for
// scanners that extract child files and need to hand their bytes back to
// the coordinator under a fresh pointer.
func (c *Client) PushBytes(ctx context.Context, pointer string, data []byte) error {
	key := "data:" + pointer
	if err := c.rdb.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("push_bytes %s: %w", key, err)
	}
	return nil
}

// Emit right-pushes record to event:{root_id} and stamps the key's
// expiration, as one pipelined batch. No transactional (cross-key)
// atomicity is required or provided.
func (c *Client) Emit(ctx context.Context, rootID string, record []byte, expireAt time.Time) error {
	key := "event:" + rootID
	pipe := c.rdb.Pipeline()
	pipe.RPush(ctx, key, record)
	pipe.ExpireAt(ctx, key, expireAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("emit %s: %w", key, err)
	}
	return nil
}

// EmitFin pushes the Fin sentinel to event:{root_id}. Must be the last
// entry; callers are responsible for calling it exactly once per request,
// and only on normal completion.
func (c *Client) EmitFin(ctx context.Context, rootID string, expireAt time.Time) error {
	return c.Emit(ctx, rootID, []byte(types.Fin), expireAt)
}
