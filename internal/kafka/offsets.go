package kafka

import (
	"github.com/segmentio/kafka-go"
	"sync"
)

type partitionKey struct {
	topic     string
	partition int
}

// inflight is one fetched message waiting for its handler.
type inflight struct {
	msg  kafka.Message
	done bool
}

// offsetTracker keeps fetched messages per partition in fetch order. A group
// commit is a watermark, so only the longest handled prefix may be committed.
type offsetTracker struct {
	mu      sync.Mutex
	pending map[partitionKey][]*inflight
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{pending: make(map[partitionKey][]*inflight)}
}

func (t *offsetTracker) track(m kafka.Message) *inflight {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := &inflight{msg: m}
	k := partitionKey{m.Topic, m.Partition}
	t.pending[k] = append(t.pending[k], f)
	return f
}

// complete marks f handled and returns the last message of the handled
// prefix of its partition, if that prefix grew.
func (t *offsetTracker) complete(f *inflight) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f.done = true
	k := partitionKey{f.msg.Topic, f.msg.Partition}
	q := t.pending[k]
	n := 0
	for n < len(q) && q[n].done {
		n++
	}
	if n == 0 {
		return kafka.Message{}, false
	}
	last := q[n-1].msg
	if n == len(q) {
		delete(t.pending, k)
	} else {
		t.pending[k] = q[n:]
	}
	return last, true
}
