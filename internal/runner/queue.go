package runner

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"signal_bot/internal/metrics"
	"signal_bot/internal/models"
)

var (
	ErrQueueFull   = errors.New("signal queue is full")
	ErrQueueClosed = errors.New("signal queue is closed")
)

type queued struct {
	sig   models.Signal
	seq   uint64
	index int
}

// signalHeap: больший скор первым, при равенстве — кто раньше пришёл.
type signalHeap []*queued

func (h signalHeap) Len() int { return len(h) }
func (h signalHeap) Less(i, j int) bool {
	if h[i].sig.Score != h[j].sig.Score {
		return h[i].sig.Score > h[j].sig.Score
	}
	return h[i].seq < h[j].seq
}
func (h signalHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *signalHeap) Push(x any) {
	it := x.(*queued)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *signalHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// SignalQueue — ограниченная приоритетная очередь между сканером и исполнителем.
// При переполнении новый сигнал вытесняет самый слабый, только если он сильнее.
type SignalQueue struct {
	mu       sync.Mutex
	h        signalHeap
	seq      uint64
	capacity int
	closed   bool
	wake     chan struct{}
}

func NewSignalQueue(capacity int) *SignalQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &SignalQueue{
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

func (q *SignalQueue) Push(sig models.Signal) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if len(q.h) >= q.capacity {
		weakest := q.weakestLocked()
		if weakest == nil || sig.Score <= weakest.sig.Score {
			return ErrQueueFull
		}
		heap.Remove(&q.h, weakest.index)
		metrics.SignalsDropped.WithLabelValues("evicted").Inc()
	}

	q.seq++
	heap.Push(&q.h, &queued{sig: sig, seq: q.seq})
	metrics.QueueDepth.Set(float64(len(q.h)))

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// weakestLocked — минимальный скор, среди равных самый поздний.
func (q *SignalQueue) weakestLocked() *queued {
	var w *queued
	for _, it := range q.h {
		if w == nil || it.sig.Score < w.sig.Score || (it.sig.Score == w.sig.Score && it.seq > w.seq) {
			w = it
		}
	}
	return w
}

// TryPop — без ожидания.
func (q *SignalQueue) TryPop() (models.Signal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.h) == 0 {
		return models.Signal{}, false
	}
	it := heap.Pop(&q.h).(*queued)
	metrics.QueueDepth.Set(float64(len(q.h)))
	return it.sig, true
}

// Pop ждёт сигнал не дольше timeout. false — таймаут, отмена ctx или закрытая пустая очередь.
func (q *SignalQueue) Pop(ctx context.Context, timeout time.Duration) (models.Signal, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if sig, ok := q.TryPop(); ok {
			return sig, true
		}
		if q.isClosed() {
			return models.Signal{}, false
		}

		select {
		case <-ctx.Done():
			return models.Signal{}, false
		case <-timer.C:
			return models.Signal{}, false
		case <-q.wake:
		}
	}
}

func (q *SignalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

func (q *SignalQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *SignalQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
