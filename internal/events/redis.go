// Package events publishes watcher dispatch events to other processes.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/watcher"
)

// Sink defaults
const (
	DefaultChannel    = "ocrwatch:events"
	DefaultBufferSize = 256
	PublishTimeout    = 2 * time.Second
	ConnectTimeout    = 5 * time.Second
)

// publisher is the subset of *redis.Client the sink needs.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisSink publishes events as JSON on a Redis channel. Publish never
// blocks the watcher: events are queued and dropped when the queue is full.
type RedisSink struct {
	client  publisher
	channel string
	queue   chan watcher.Event
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRedisSink connects to url and verifies the connection with a PING.
func NewRedisSink(ctx context.Context, url, channel string) (*RedisSink, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "parse redis url")
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "connect to redis").WithMetadata("addr", opt.Addr)
	}

	slog.Info("redis event sink connected", "addr", opt.Addr, "channel", channel)
	return newSink(client, channel, DefaultBufferSize), nil
}

func newSink(client publisher, channel string, size int) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	s := &RedisSink{
		client:  client,
		channel: channel,
		queue:   make(chan watcher.Event, size),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Publish queues ev for delivery. Events published after Close are dropped.
func (s *RedisSink) Publish(_ context.Context, ev watcher.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		n := s.dropped.Add(1)
		slog.Warn("event sink closed, dropping event", "rule_id", ev.RuleID, "dropped", n)
		return
	}
	select {
	case s.queue <- ev:
	default:
		n := s.dropped.Add(1)
		slog.Warn("event queue full, dropping event", "rule_id", ev.RuleID, "dropped", n)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (s *RedisSink) Dropped() int64 { return s.dropped.Load() }

// Close flushes queued events and closes the client. Later calls are no-ops.
func (s *RedisSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return s.client.Close()
}

func (s *RedisSink) run() {
	defer close(s.done)
	for ev := range s.queue {
		payload, err := json.Marshal(ev)
		if err != nil {
			slog.Error("encode event", "rule_id", ev.RuleID, "error", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		err = s.client.Publish(ctx, s.channel, payload).Err()
		cancel()
		if err != nil {
			slog.Warn("publish event failed", "channel", s.channel, "rule_id", ev.RuleID, "error", err)
		}
	}
}
