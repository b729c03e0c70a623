package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_bot/internal/models"
)

func sig(symbol string, score float64) models.Signal {
	return models.Signal{Symbol: symbol, Score: score, Action: models.SideBuy, Price: 1}
}

func drain(q *SignalQueue) []models.Signal {
	var out []models.Signal
	for {
		s, ok := q.TryPop()
		if !ok {
			return out
		}
		out = append(out, s)
	}
}

func TestSignalQueue_DescendingScore(t *testing.T) {
	q := NewSignalQueue(10)
	for _, s := range []models.Signal{sig("A", 60), sig("B", 95), sig("C", 80)} {
		require.NoError(t, q.Push(s))
	}

	got := drain(q)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{95, 80, 60}, []float64{got[0].Score, got[1].Score, got[2].Score})
}

func TestSignalQueue_TiesKeepArrivalOrder(t *testing.T) {
	q := NewSignalQueue(10)
	require.NoError(t, q.Push(sig("first", 90)))
	require.NoError(t, q.Push(sig("second", 90)))
	require.NoError(t, q.Push(sig("top", 99)))
	require.NoError(t, q.Push(sig("third", 90)))

	var order []string
	for _, s := range drain(q) {
		order = append(order, s.Symbol)
	}
	assert.Equal(t, []string{"top", "first", "second", "third"}, order)
}

func TestSignalQueue_BoundedEvictsWeakest(t *testing.T) {
	q := NewSignalQueue(2)
	require.NoError(t, q.Push(sig("A", 70)))
	require.NoError(t, q.Push(sig("B", 90)))

	assert.ErrorIs(t, q.Push(sig("C", 70)), ErrQueueFull, "equal score does not evict")
	assert.ErrorIs(t, q.Push(sig("D", 50)), ErrQueueFull)
	require.NoError(t, q.Push(sig("E", 80)))

	got := drain(q)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Symbol)
	assert.Equal(t, "E", got[1].Symbol)
}

func TestSignalQueue_PopTimeout(t *testing.T) {
	q := NewSignalQueue(1)

	start := time.Now()
	_, ok := q.Pop(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestSignalQueue_PopWakesOnPush(t *testing.T) {
	q := NewSignalQueue(4)

	var wg sync.WaitGroup
	wg.Add(1)
	var got models.Signal
	var ok bool
	go func() {
		defer wg.Done()
		got, ok = q.Pop(context.Background(), 2*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(sig("X", 99)))
	wg.Wait()

	require.True(t, ok)
	assert.Equal(t, "X", got.Symbol)
}

func TestSignalQueue_PopCancelAndClose(t *testing.T) {
	q := NewSignalQueue(4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := q.Pop(ctx, time.Second)
	assert.False(t, ok)

	require.NoError(t, q.Push(sig("A", 1)))
	q.Close()
	assert.ErrorIs(t, q.Push(sig("B", 2)), ErrQueueClosed)

	// уже лежащие сигналы можно дочитать
	s, ok := q.Pop(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "A", s.Symbol)

	_, ok = q.Pop(context.Background(), time.Second)
	assert.False(t, ok)
}
