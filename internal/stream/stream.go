package stream

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
)

// StatusMsg is published once per observed poll-loop transition.
type StatusMsg struct {
	Status string `json:"status"`
	Done   bool   `json:"done,omitempty"`
}

func channelKey(jobID string) string {
	return "generation:" + jobID
}

// Publisher publishes generation status transitions to Redis (poll-loop side).
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(redisURL string) (*Publisher, error) {
	rdb, err := newClient(redisURL)
	if err != nil {
		return nil, err
	}
	return &Publisher{rdb: rdb}, nil
}

func (p *Publisher) Publish(ctx context.Context, jobID, status string, done bool) error {
	if p == nil || p.rdb == nil {
		return nil
	}
	b, _ := json.Marshal(StatusMsg{Status: status, Done: done})
	return p.rdb.Publish(ctx, channelKey(jobID), string(b)).Err()
}

func (p *Publisher) Close() error {
	if p != nil && p.rdb != nil {
		return p.rdb.Close()
	}
	return nil
}

// Subscriber receives status transitions (SSE endpoint side).
type Subscriber struct {
	rdb *redis.Client
}

func NewSubscriber(redisURL string) (*Subscriber, error) {
	rdb, err := newClient(redisURL)
	if err != nil {
		return nil, err
	}
	return &Subscriber{rdb: rdb}, nil
}

// Subscribe delivers transitions for one job until a done message or ctx
// cancellation.
func (s *Subscriber) Subscribe(ctx context.Context, jobID string, onStatus func(status string, done bool)) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	pubsub := s.rdb.Subscribe(ctx, channelKey(jobID))
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m StatusMsg
			if json.Unmarshal([]byte(msg.Payload), &m) == nil {
				onStatus(m.Status, m.Done)
				if m.Done {
					return nil
				}
			}
		}
	}
}

func (s *Subscriber) Close() error {
	if s != nil && s.rdb != nil {
		return s.rdb.Close()
	}
	return nil
}

func newClient(redisURL string) (*redis.Client, error) {
	u := redisURL
	if u != "" && !strings.HasPrefix(u, "redis://") && !strings.HasPrefix(u, "rediss://") {
		u = "redis://" + u
	}
	opt, err := redis.ParseURL(u)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}
