package gateway

import "sync"

// replayEntry holds one broadcast envelope.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the last cap envelopes of one channel for client gap
// backfill. Sequence numbers of a channel are contiguous, so a range lookup
// is an index computation from the oldest retained seq.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	cap  int
	head int // physical index of the oldest entry
	n    int
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = defaultReplayCap
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity), cap: capacity}
}

// Push appends an envelope, evicting the oldest when full. Envelopes are
// immutable once built, so the slice is kept as is.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.n < rb.cap {
		rb.buf[(rb.head+rb.n)%rb.cap] = replayEntry{Seq: seq, Data: data}
		rb.n++
		return
	}
	rb.buf[rb.head] = replayEntry{Seq: seq, Data: data}
	rb.head = (rb.head + 1) % rb.cap
}

// Range returns entries with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.n == 0 || toSeq < fromSeq {
		return nil
	}
	oldest := rb.buf[rb.head].Seq
	newest := rb.buf[(rb.head+rb.n-1)%rb.cap].Seq
	if fromSeq < oldest {
		fromSeq = oldest
	}
	if toSeq > newest {
		toSeq = newest
	}
	if fromSeq > toSeq {
		return nil
	}

	out := make([]replayEntry, 0, toSeq-fromSeq+1)
	for i := 0; i < rb.n; i++ {
		e := rb.buf[(rb.head+i)%rb.cap]
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries currently held.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.n
}
