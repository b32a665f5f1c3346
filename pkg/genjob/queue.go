package genjob

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// Default and configuration values.
const defaultQueueCapacity = 1024
const fallbackQueueCapacity = 64

var (
	ErrQueueFull   = errors.New("generation queue full")
	ErrQueueClosed = errors.New("generation queue closed")
)

// Counters for instrumentation.
var (
	enqueueTotal     uint64
	enqueueFailTotal uint64
)

// Job carries one background generation unit of work: the thread to
// generate into, the user message that prompted it, and the owning user.
type Job struct {
	Thread string
	Prompt string
	Owner  string
	// PromptText is the user's text, carried so the worker need not
	// reload the prompt message. Backed by pooled memory until Done.
	PromptText []byte
}

var jobPool = sync.Pool{New: func() any { return new(Job) }}

// Item wraps a queued Job with its pooled buffer.
type Item struct {
	Job *Job
	buf *bytebufferpool.ByteBuffer
	q   *Queue
}

// Done releases pooled resources; the worker calls it after handling.
func (it *Item) Done() {
	if it.buf != nil {
		bytebufferpool.Put(it.buf)
		it.buf = nil
	}
	*it.Job = Job{}
	jobPool.Put(it.Job)
	it.Job = nil
	atomic.AddInt64(&it.q.inFlight, -1)
}

// Queue is a threadsafe, fixed-size in-memory queue of generation jobs.
type Queue struct {
	ch       chan *Item
	capacity int
	dropped  uint64
	closed   int32

	enqWg     sync.WaitGroup
	closeOnce sync.Once
	inFlight  int64
}

// NewQueue creates a bounded Queue of given capacity (>0).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = fallbackQueueCapacity
	}
	return &Queue{ch: make(chan *Item, capacity), capacity: capacity}
}

// Out exposes items for consumers (do not close).
func (q *Queue) Out() <-chan *Item { return q.ch }

// TryEnqueue enqueues a job without blocking; returns ErrQueueFull when
// the queue is at capacity.
func (q *Queue) TryEnqueue(job *Job) error {
	atomic.AddUint64(&enqueueTotal, 1)

	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}

	q.enqWg.Add(1)
	defer q.enqWg.Done()

	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}

	newJob := jobPool.Get().(*Job)
	*newJob = *job

	var bb *bytebufferpool.ByteBuffer
	if len(job.PromptText) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], job.PromptText...)
		newJob.PromptText = bb.B[:len(job.PromptText)]
	}

	it := &Item{Job: newJob, buf: bb, q: q}

	select {
	case q.ch <- it:
		atomic.AddInt64(&q.inFlight, 1)
		return nil
	default:
		// Clean up pooled resources on failure.
		if bb != nil {
			bytebufferpool.Put(bb)
		}
		jobPool.Put(newJob)
		atomic.AddUint64(&q.dropped, 1)
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueFull
	}
}

// RunWorker dequeues items and calls handler for each, calling Item.Done()
// always. Exits when stop or the queue closes.
func (q *Queue) RunWorker(stop <-chan struct{}, handler func(*Job)) {
	for {
		select {
		case it, ok := <-q.ch:
			if !ok {
				return
			}
			func(it *Item) {
				defer it.Done()
				handler(it.Job)
			}(it)
		case <-stop:
			return
		}
	}
}

// Close marks the queue closed for producers and closes the channel once
// in-flight enqueues settle.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		atomic.StoreInt32(&q.closed, 1)
		q.enqWg.Wait()
		close(q.ch)
	})
}

// Dropped reports how many enqueues were rejected for capacity.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }
