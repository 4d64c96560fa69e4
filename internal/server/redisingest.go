package server

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openride/relay-gateway/internal/relay"
)

// RunRedisIngest subscribes to the backend's dispatch pub/sub channel and
// routes every published envelope, as an alternative to the HTTP surface.
// Envelopes are the same JSON bodies as the HTTP endpoints, with the event
// kind under a "kind" key. The channel is trusted transport: publishing
// requires Redis credentials, so no per-message key check applies.
//
// This shares no relay state across instances; each instance routes to its
// own connections only.
func (s *Server) RunRedisIngest(ctx context.Context) {
	if s.cfg.RedisAddr == "" {
		return
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
	})
	defer rdb.Close()

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	for {
		if err := s.consumeRedis(ctx, rdb); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				s.log.Info("redis ingest shutting down")
				return
			}
			wait := bo.NextBackOff()
			s.log.Warn("redis ingest interrupted, reconnecting",
				zap.Error(err),
				zap.Duration("backoff", wait),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
	}
}

// consumeRedis runs one subscription until it fails or ctx is cancelled.
func (s *Server) consumeRedis(ctx context.Context, rdb *redis.Client) error {
	sub := rdb.Subscribe(ctx, s.cfg.RedisChannel)
	defer sub.Close()

	// Fail fast when the broker is unreachable so the backoff loop owns
	// the retry pacing.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	s.log.Info("subscribed to dispatch channel", zap.String("channel", s.cfg.RedisChannel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			s.ingestRedisMessage(msg.Payload)
		}
	}
}

func (s *Server) ingestRedisMessage(payload string) {
	var body map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		s.log.Warn("redis envelope is not valid JSON", zap.Error(err))
		return
	}
	kind, _ := body["kind"].(string)
	if kind == "" {
		s.log.Warn("redis envelope without kind")
		return
	}
	delete(body, "kind")

	ev, err := normalizeEvent(relay.EventKind(kind), body)
	if err != nil {
		s.log.Warn("redis envelope rejected",
			zap.String("kind", kind),
			zap.Error(err),
		)
		return
	}
	s.router.Route(ev)
	s.stats.eventsIngested.Inc()
}
