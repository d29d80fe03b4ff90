package transport

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrEmpty is returned when a pop finds no buffered bytes.
	ErrEmpty = errors.New("transport: queue empty")
	// ErrContended is returned when the queue lock stayed busy for the whole spin budget.
	ErrContended = errors.New("transport: queue contended")
)

// trySpins bounds how long the tick side retries a busy lock.
const trySpins = 32

// Queue is a bounded FIFO of bytes shared by one producer and one consumer.
//
// Len is a lock-free snapshot. The Try* methods never block: they spin on
// TryLock a bounded number of times and give up. Bytes pushed beyond capacity
// are dropped and counted.
type Queue struct {
	mu   sync.Mutex
	buf  []byte
	head int
	n    int

	length  atomic.Int64
	dropped atomic.Uint64
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Queue{buf: make([]byte, capacity)}
}

func (q *Queue) Cap() int { return len(q.buf) }

// Len returns the number of buffered bytes as of the last completed push or pop.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return int(q.length.Load())
}

// Dropped returns the number of bytes discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}

// Push appends p, blocking on the lock. It returns the number of bytes kept.
func (q *Queue) Push(p []byte) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushLocked(p)
}

// TryPush is Push without blocking; it returns 0, ErrContended when the lock stays busy.
func (q *Queue) TryPush(p []byte) (int, error) {
	if !q.tryLock() {
		return 0, ErrContended
	}
	defer q.mu.Unlock()
	return q.pushLocked(p), nil
}

// TryPushByte is TryPush for a single byte.
func (q *Queue) TryPushByte(c byte) error {
	if !q.tryLock() {
		return ErrContended
	}
	defer q.mu.Unlock()
	if q.n == len(q.buf) {
		q.dropped.Add(1)
		return nil
	}
	q.buf[(q.head+q.n)%len(q.buf)] = c
	q.n++
	q.length.Store(int64(q.n))
	return nil
}

// Drain moves up to len(p) of the oldest bytes into p, blocking on the lock.
func (q *Queue) Drain(p []byte) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drainLocked(p)
}

// TryDrain is Drain without blocking; contention reports zero bytes.
func (q *Queue) TryDrain(p []byte) int {
	if !q.tryLock() {
		return 0
	}
	defer q.mu.Unlock()
	return q.drainLocked(p)
}

// TryPopByte pops the oldest byte without blocking.
func (q *Queue) TryPopByte() (byte, error) {
	if !q.tryLock() {
		return 0, ErrContended
	}
	defer q.mu.Unlock()
	if q.n == 0 {
		return 0, ErrEmpty
	}
	c := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	q.length.Store(int64(q.n))
	return c, nil
}

// Reset discards all buffered bytes.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.head = 0
	q.n = 0
	q.length.Store(0)
}

func (q *Queue) tryLock() bool {
	for i := 0; i < trySpins; i++ {
		if q.mu.TryLock() {
			return true
		}
		runtime.Gosched()
	}
	return false
}

func (q *Queue) pushLocked(p []byte) int {
	free := len(q.buf) - q.n
	keep := len(p)
	if keep > free {
		q.dropped.Add(uint64(keep - free))
		keep = free
	}
	tail := (q.head + q.n) % len(q.buf)
	for i := 0; i < keep; i++ {
		q.buf[(tail+i)%len(q.buf)] = p[i]
	}
	q.n += keep
	q.length.Store(int64(q.n))
	return keep
}

func (q *Queue) drainLocked(p []byte) int {
	k := len(p)
	if k > q.n {
		k = q.n
	}
	for i := 0; i < k; i++ {
		p[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.head = (q.head + k) % len(q.buf)
	q.n -= k
	q.length.Store(int64(q.n))
	return k
}
