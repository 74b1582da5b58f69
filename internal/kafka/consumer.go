package kafka

import (
	"context"
	"errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"hash/fnv"
	"sync"
	"time"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r          messageReader
	workers    int
	backoff    time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger

	offsets  *offsetTracker
	commitMu sync.Mutex
}

func NewConsumer(brokers []string, group string, topics []string, workers int, logger *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commit manual per pesan
	})
	return newConsumer(r, workers, logger)
}

func newConsumer(r messageReader, workers int, logger *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		r:          r,
		workers:    workers,
		backoff:    200 * time.Millisecond,
		maxBackoff: 10 * time.Second,
		logger:     logger,
		offsets:    newOffsetTracker(),
	}
}

// Start dispatches messages to workers by key, so events of one order are
// handled in order. A failed message is retried in its lane until it succeeds
// or ctx ends, and offsets are committed only up to the first unhandled
// message of each partition. It returns nil once ctx is cancelled and every
// worker drained.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan *inflight, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan *inflight, 64)
		wg.Add(1)
		go func(jobs <-chan *inflight) {
			defer wg.Done()
			for f := range jobs {
				c.process(ctx, h, f)
			}
		}(lanes[i])
	}
	stop := func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			// kecilkan noise saat shutdown
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		f := c.offsets.track(m)
		select {
		case lanes[c.lane(m.Key)] <- f:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

// process runs h until it succeeds; the lane blocks meanwhile so later events
// of the same key are not applied ahead of the failed one.
func (c *Consumer) process(ctx context.Context, h Handler, f *inflight) {
	m := f.msg
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("handler failed, retrying",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
		if wait *= 2; wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
	c.commit(ctx, f)
}

// commit is serialized so a lower watermark never lands after a higher one.
func (c *Consumer) commit(ctx context.Context, f *inflight) {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	upTo, ok := c.offsets.complete(f)
	if !ok {
		return
	}
	if err := c.r.CommitMessages(ctx, upTo); err != nil && ctx.Err() == nil {
		c.logger.Warn("commit failed", zap.String("topic", upTo.Topic), zap.Int64("offset", upTo.Offset), zap.Error(err))
	}
}

func (c *Consumer) lane(key []byte) int {
	if c.workers == 1 || len(key) == 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(c.workers))
}
