package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// ConnectOptions defines the link cache connection and its retry behavior.
type ConnectOptions struct {
	Addr           string        // Redis address (ex: "localhost:6379")
	User           string        // Optional username
	Password       string        // Optional password
	RedisDB        int           // Redis DB number
	DialTimeout    time.Duration // Redis dial timeout
	ReadTimeout    time.Duration // Redis read timeout
	WriteTimeout   time.Duration // Redis write timeout
	PoolSize       int           // Redis connection pool size
	ConnectTimeout time.Duration // budget for all connection attempts
	RetryInterval  time.Duration // first wait between attempts, grows with jitter
	MaxWait        time.Duration // cap on a single wait
	PingTimeout    time.Duration // bound on each ping
	WarnThreshold  int           // attempts logged at warn before switching to error
}

func (o ConnectOptions) validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"ConnectTimeout": o.ConnectTimeout,
		"RetryInterval":  o.RetryInterval,
		"MaxWait":        o.MaxWait,
		"PingTimeout":    o.PingTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %v", name, d))
		}
	}
	if o.WarnThreshold < 0 {
		errs = append(errs, fmt.Errorf("WarnThreshold must be >= 0, got %d", o.WarnThreshold))
	}
	return errors.Join(errs...)
}

func (o ConnectOptions) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.RetryInterval
	bo.MaxInterval = o.MaxWait
	bo.MaxElapsedTime = o.ConnectTimeout
	return backoff.WithContext(bo, ctx)
}

// New returns a client once Redis answers a PING. It retries with
// exponential backoff until ConnectTimeout elapses or ctx is cancelled.
// The link cache is optional, so callers treat an error as "run without it".
func New(ctx context.Context, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid redis options: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.User,
		Password:     opts.Password,
		DB:           opts.RedisDB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	if err := waitReady(ctx, client, opts, log); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func waitReady(ctx context.Context, client *redis.Client, opts ConnectOptions, log logger.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	log.Debug("connecting to redis",
		logger.String("addr", opts.Addr),
		logger.Duration("timeout", opts.ConnectTimeout))

	start := time.Now()
	attempts := 0
	ping := func() error {
		attempts++
		pingCtx, pingCancel := context.WithTimeout(ctx, opts.PingTimeout)
		defer pingCancel()
		return client.Ping(pingCtx).Err()
	}
	onRetry := func(err error, next time.Duration) {
		fields := []logger.Field{
			logger.String("addr", opts.Addr),
			logger.Int("attempt", attempts),
			logger.Duration("next_retry_in", next),
			logger.Error(err),
		}
		if attempts <= opts.WarnThreshold {
			log.Warn("redis connection failed, retrying", fields...)
			return
		}
		log.Error("redis still unavailable", fields...)
	}

	if err := backoff.RetryNotify(ping, opts.backOff(ctx), onRetry); err != nil {
		return fmt.Errorf("redis unavailable at %s after %d attempts (timeout: %v): %w",
			opts.Addr, attempts, opts.ConnectTimeout, err)
	}

	log.Info("connected to redis",
		logger.String("addr", opts.Addr),
		logger.Int("attempts", attempts),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}
