// Package mlqueue bounds how many requests may run the heavyweight ML
// analysis at once. Requests beyond the limit wait in strict FIFO order up
// to a fixed queue size; anything beyond that is rejected outright.
package mlqueue

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/suiguard/suiguard/internal/metrics"
)

// Stats is a point-in-time snapshot of the queue.
type Stats struct {
	TotalRequests     int64 `json:"total_requests"`
	CompletedRequests int64 `json:"completed_requests"`
	RejectedRequests  int64 `json:"rejected_requests"`
	MaxQueueReached   int64 `json:"max_queue_reached"`
	ActiveRequests    int   `json:"active_requests"`
	QueueLength       int   `json:"queue_length"`
	MaxConcurrent     int   `json:"max_concurrent"`
	MaxQueueSize      int   `json:"max_queue_size"`
}

type waiter struct {
	requestID string
	enqueued  time.Time
	ready     chan struct{} // closed when the slot is handed over
}

// Queue is the admission controller. Construct one per process and share it.
type Queue struct {
	mu            sync.Mutex
	maxConcurrent int
	maxQueueSize  int
	active        int
	waiters       *list.List // of *waiter, head is next in line

	total     int64
	completed int64
	rejected  int64
	queueFull int64

	logger *slog.Logger
}

// New creates a queue. maxConcurrent below 1 is treated as 1; a negative
// maxQueueSize as 0, meaning no waiting at all.
func New(maxConcurrent, maxQueueSize int, logger *slog.Logger) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxQueueSize < 0 {
		maxQueueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		maxConcurrent: maxConcurrent,
		maxQueueSize:  maxQueueSize,
		waiters:       list.New(),
		logger:        logger.With("component", "mlqueue"),
	}
	q.logger.Info("ml request queue initialized", "max_concurrent", maxConcurrent, "max_queue_size", maxQueueSize)
	return q
}

// Acquire obtains an analysis slot for requestID.
//
// It returns (true, nil) once the caller holds a slot, which must later be
// returned with Release. It returns (false, nil) immediately when the queue
// is full. If ctx ends while waiting, the caller leaves the queue without a
// slot and ctx.Err() is returned.
func (q *Queue) Acquire(ctx context.Context, requestID string) (bool, error) {
	q.mu.Lock()
	q.total++

	if q.active < q.maxConcurrent {
		q.active++
		q.publish()
		q.mu.Unlock()
		q.logger.Debug("slot acquired", "request_id", requestID, "active", q.activeCount())
		return true, nil
	}

	if q.waiters.Len() >= q.maxQueueSize {
		q.rejected++
		q.queueFull++
		length := q.waiters.Len()
		q.mu.Unlock()
		metrics.MLQueueRejectedTotal.Inc()
		q.logger.Warn("request rejected, queue full", "request_id", requestID, "queue_length", length, "max_queue_size", q.maxQueueSize)
		return false, nil
	}

	w := &waiter{requestID: requestID, enqueued: time.Now(), ready: make(chan struct{})}
	elem := q.waiters.PushBack(w)
	position := q.waiters.Len()
	q.publish()
	q.mu.Unlock()
	q.logger.Debug("request queued", "request_id", requestID, "position", position)

	select {
	case <-w.ready:
		q.logger.Debug("slot acquired after wait", "request_id", requestID, "waited", time.Since(w.enqueued))
		return true, nil
	case <-ctx.Done():
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case <-w.ready:
		// Handed a slot just as we gave up; pass it on.
		q.handOff()
	default:
		q.waiters.Remove(elem)
	}
	q.publish()
	return false, ctx.Err()
}

// Release returns requestID's slot, handing it directly to the head of the
// queue if anyone is waiting.
func (q *Queue) Release(requestID string) {
	q.mu.Lock()
	q.completed++
	q.handOff()
	q.publish()
	active := q.active
	q.mu.Unlock()
	q.logger.Debug("slot released", "request_id", requestID, "active", active)
}

// Caller must hold q.mu.
func (q *Queue) handOff() {
	if front := q.waiters.Front(); front != nil {
		w := q.waiters.Remove(front).(*waiter)
		close(w.ready)
		return
	}
	if q.active > 0 {
		q.active--
	}
}

// Caller must hold q.mu.
func (q *Queue) publish() {
	metrics.MLQueueActive.Set(float64(q.active))
	metrics.MLQueueLength.Set(float64(q.waiters.Len()))
}

func (q *Queue) activeCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Stats returns current counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		TotalRequests:     q.total,
		CompletedRequests: q.completed,
		RejectedRequests:  q.rejected,
		MaxQueueReached:   q.queueFull,
		ActiveRequests:    q.active,
		QueueLength:       q.waiters.Len(),
		MaxConcurrent:     q.maxConcurrent,
		MaxQueueSize:      q.maxQueueSize,
	}
}
