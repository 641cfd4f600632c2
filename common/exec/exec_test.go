package exec

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQueue_FIFO(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	q := NewQueue("ue-0", 64, logger)
	defer q.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, q.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestQueue_PostAfterStop(t *testing.T) {
	q := NewQueue("ue-1", 4, nil)
	q.Stop()
	q.Join()
	assert.ErrorIs(t, q.Post(func() {}), ErrStopped)
}

func TestQueue_StopDiscardsUnstartedTasks(t *testing.T) {
	q := NewQueue("ue-2", 16, nil)

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, q.Post(func() {
		close(started)
		<-block
	}))
	<-started

	ran := false
	require.NoError(t, q.Post(func() { ran = true }))
	q.Stop()
	close(block)
	q.Join()
	assert.False(t, ran)
}

func TestTimers_FireAndStop(t *testing.T) {
	timers := NewTimers()

	fired := false
	tm := timers.Start(3*TickResolution, nil, func() { fired = true })

	timers.Tick()
	timers.Tick()
	assert.False(t, fired)
	timers.Tick()
	assert.True(t, fired)
	assert.False(t, tm.Stop())

	fired2 := false
	tm2 := timers.Start(2*TickResolution, nil, func() { fired2 = true })
	assert.True(t, tm2.Stop())
	timers.Tick()
	timers.Tick()
	timers.Tick()
	assert.False(t, fired2)
}

func TestTimers_CallbackOnQueue(t *testing.T) {
	timers := NewTimers()
	q := NewQueue("cell-0", 4, nil)
	defer q.Stop()

	done := make(chan struct{})
	timers.Start(TickResolution, q, func() { close(done) })
	timers.Tick()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer callback not delivered to queue")
	}
}

func TestTransactions_ResolveDeliversOutcome(t *testing.T) {
	timers := NewTimers()
	txs := NewTransactions(timers)

	tx, err := txs.Begin(time.Second)
	require.NoError(t, err)

	go func() {
		assert.True(t, txs.Resolve(tx.ID, "response", nil))
	}()

	out := tx.Await(context.Background())
	require.NoError(t, out.Err)
	assert.Equal(t, "response", out.Msg)

	// The slot is free again; a late duplicate is reported as unknown.
	assert.False(t, txs.Resolve(tx.ID, "dup", nil))
}

func TestTransactions_GuardTimeout(t *testing.T) {
	timers := NewTimers()
	txs := NewTransactions(timers)

	tx, err := txs.Begin(2 * TickResolution)
	require.NoError(t, err)

	timers.Tick()
	timers.Tick()

	out := tx.Await(context.Background())
	assert.ErrorIs(t, out.Err, ErrTimeout)
}

func TestTransactions_DistinctIDs(t *testing.T) {
	timers := NewTimers()
	txs := NewTransactions(timers)

	a, err := txs.Begin(time.Second)
	require.NoError(t, err)
	b, err := txs.Begin(time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestTransactions_FailAll(t *testing.T) {
	timers := NewTimers()
	txs := NewTransactions(timers)

	a, err := txs.Begin(time.Second)
	require.NoError(t, err)
	b, err := txs.Begin(time.Second)
	require.NoError(t, err)

	transportDown := assert.AnError
	txs.FailAll(transportDown)

	assert.ErrorIs(t, a.Await(context.Background()).Err, transportDown)
	assert.ErrorIs(t, b.Await(context.Background()).Err, transportDown)
}

func TestTransactions_Exhaustion(t *testing.T) {
	timers := NewTimers()
	txs := NewTransactions(timers)

	for i := 0; i < MaxNofTransactions; i++ {
		_, err := txs.Begin(time.Minute)
		require.NoError(t, err)
	}
	_, err := txs.Begin(time.Minute)
	assert.ErrorIs(t, err, ErrTransactionsExhausted)
}

func TestTransactions_AwaitCancellation(t *testing.T) {
	timers := NewTimers()
	txs := NewTransactions(timers)

	tx, err := txs.Begin(time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := tx.Await(ctx)
	assert.Error(t, out.Err)

	// The cancelled slot is reusable.
	_, err = txs.Begin(time.Minute)
	require.NoError(t, err)
}
