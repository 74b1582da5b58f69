// Package outbox stores order events in the same transaction as the state
// change that produced them and relays them to Kafka afterwards.
package outbox

import (
	"context"
	"errors"
	"go.uber.org/zap"
	"sync"
	"time"
)

type Message struct {
	ID        string
	Topic     string
	Key       []byte
	Payload   []byte
	Headers   map[string]string
	CreatedAt time.Time
}

// Store hands out pending messages. Claimed messages are marked published only
// when publish returns nil; otherwise they stay pending for the next round.
type Store interface {
	Claim(ctx context.Context, limit int, publish func(context.Context, []Message) error) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, msgs []Message) error
}

type Relay struct {
	Store     Store
	Publisher Publisher
	Interval  time.Duration
	Batch     int
	Logger    *zap.Logger
}

// Flush relays pending messages until the store runs dry or an error occurs.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	batch := r.Batch
	if batch <= 0 {
		batch = 100
	}
	total := 0
	for {
		n, err := r.Store.Claim(ctx, batch, r.Publisher.Publish)
		total += n
		if err != nil {
			return total, err
		}
		if n < batch {
			return total, nil
		}
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		n, err := r.Flush(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("outbox relay failed", zap.Error(err), zap.Int("published", n))
		case n > 0:
			logger.Debug("outbox relayed", zap.Int("published", n))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Memory is the in-process Store used with the in-memory order store.
type Memory struct {
	mu        sync.Mutex
	pending   []Message
	published []Message
	claiming  bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Append(msgs ...Message) {
	m.mu.Lock()
	m.pending = append(m.pending, msgs...)
	m.mu.Unlock()
}

var errClaimBusy = errors.New("outbox: claim already in progress")

func (m *Memory) Claim(ctx context.Context, limit int, publish func(context.Context, []Message) error) (int, error) {
	m.mu.Lock()
	if m.claiming {
		m.mu.Unlock()
		return 0, errClaimBusy
	}
	n := len(m.pending)
	if limit > 0 && n > limit {
		n = limit
	}
	batch := append([]Message(nil), m.pending[:n]...)
	m.claiming = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.claiming = false
		m.mu.Unlock()
	}()

	if n == 0 {
		return 0, nil
	}
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.pending = m.pending[n:]
	m.published = append(m.published, batch...)
	m.mu.Unlock()
	return n, nil
}

// Pending returns a copy of the messages not yet relayed.
func (m *Memory) Pending() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.pending...)
}

func (m *Memory) Published() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.published...)
}
