// internal/feed/redis.go
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/squadsync/squadsync/internal/models"
)

const (
	channelPrefix = "rsvp:feed:"
	seqPrefix     = "rsvp:seq:"
)

// RedisFeed implements ChangeFeed over Redis pub/sub. One Redis channel per
// session; sequence numbers come from a per-session INCR so every publisher
// shares a single stream.
type RedisFeed struct {
	rdb    *redis.Client
	logger *logrus.Logger

	mu   sync.Mutex
	subs map[uuid.UUID]*redis.PubSub
}

// NewRedisFeed connects a client and pings it.
func NewRedisFeed(addr string, db int, logger *logrus.Logger) (*RedisFeed, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &RedisFeed{
		rdb:    rdb,
		logger: logger,
		subs:   make(map[uuid.UUID]*redis.PubSub),
	}, nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan Event, error) {
	channel := channelPrefix + sessionID.String()

	f.mu.Lock()
	if _, exists := f.subs[sessionID]; exists {
		f.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to session %s", sessionID)
	}
	pubsub := f.rdb.Subscribe(ctx, channel)
	f.subs[sessionID] = pubsub
	f.mu.Unlock()

	// Confirm the subscription before returning so the caller cannot miss
	// events published after Subscribe succeeds.
	if _, err := pubsub.Receive(ctx); err != nil {
		f.Unsubscribe(sessionID)
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.logger.WithFields(logrus.Fields{
					"session": sessionID,
					"error":   err,
				}).Warn("dropping undecodable feed event")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *RedisFeed) Unsubscribe(sessionID uuid.UUID) {
	f.mu.Lock()
	pubsub, ok := f.subs[sessionID]
	if ok {
		delete(f.subs, sessionID)
	}
	f.mu.Unlock()
	if ok {
		_ = pubsub.Close()
	}
}

func (f *RedisFeed) Publish(ctx context.Context, sessionID uuid.UUID, op Op, rec models.AttendanceRecord) error {
	seq, err := f.rdb.Incr(ctx, seqPrefix+sessionID.String()).Result()
	if err != nil {
		return &models.TransientError{Err: fmt.Errorf("failed to assign feed seq: %w", err)}
	}

	ev := Event{Op: op, Seq: seq, Record: rec}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal feed event: %w", err)
	}
	if err := f.rdb.Publish(ctx, channelPrefix+sessionID.String(), data).Err(); err != nil {
		return &models.TransientError{Err: fmt.Errorf("failed to publish feed event: %w", err)}
	}
	return nil
}
