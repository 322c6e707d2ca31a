// Package redis publishes flight completion events on a Redis pub/sub
// channel and, optionally, keeps the last event of each flight under a
// key so late subscribers can still read it.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/specbridge/adapter"
)

// DefaultChannel is the default pub/sub channel.
const DefaultChannel = "specbridge:flight_completed"

// DefaultKeyPrefix prefixes retained flight keys.
const DefaultKeyPrefix = "specbridge:flight:"

// DefaultTimeout bounds one publish attempt.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis adapter.
type Config struct {
	// URL is the connection URL (required),
	// redis://[:password@]host:port[/db].
	URL string
	// Channel is the pub/sub channel (default DefaultChannel).
	Channel string
	// RetainFor keeps each event under KeyPrefix+flight_id for this long.
	// Zero disables retention.
	RetainFor time.Duration
	// KeyPrefix for retained events (default DefaultKeyPrefix).
	KeyPrefix string
	// Timeout bounds each attempt (default 5s).
	Timeout time.Duration
	// Retries after the first attempt.
	Retries int
	// Backoff is the first retry delay (default adapter.DefaultBackoff).
	Backoff time.Duration
}

// Adapter publishes flight completion events to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter. The connection is opened lazily.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// FlightKey returns the key an event of flightID is retained under.
func (a *Adapter) FlightKey(flightID string) string {
	return a.config.KeyPrefix + flightID
}

// Publish sends event to the channel, retaining it first when configured.
// Both commands go out in one MULTI/EXEC so a retry never retains twice
// without publishing.
func (a *Adapter) Publish(ctx context.Context, event *adapter.FlightCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	err = adapter.Retry(ctx, a.config.Retries, a.config.Backoff, func(ctx context.Context, _ int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()

		_, err := a.client.TxPipelined(attemptCtx, func(pipe goredis.Pipeliner) error {
			if a.config.RetainFor > 0 {
				pipe.Set(attemptCtx, a.FlightKey(event.FlightID), body, a.config.RetainFor)
			}
			pipe.Publish(attemptCtx, a.config.Channel, body)
			return nil
		})
		if errors.Is(err, goredis.ErrClosed) {
			return adapter.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("redis: flight %s: %w", event.FlightID, err)
	}
	return nil
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
