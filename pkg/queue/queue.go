package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Enqueuer is the producer side of a queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// Config contains the worker and retry settings.
type Config struct {
	Workers    int
	RetryLimit int
	RetryDelay time.Duration
	// Permanent reports errors that must not be retried. Nil retries everything.
	Permanent func(error) bool
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

type action int

const (
	actionDone action = iota
	actionRetry
	actionDead
)

// decide maps a handler outcome to what happens to the message.
func decide(cfg *Config, msg Message, err error) action {
	switch {
	case err == nil:
		return actionDone
	case cfg.Permanent != nil && cfg.Permanent(err):
		return actionDead
	case msg.Attempts < cfg.RetryLimit:
		return actionRetry
	default:
		return actionDead
	}
}
