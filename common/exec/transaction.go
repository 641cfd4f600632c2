package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// MaxNofTransactions is the size of the per-connection transaction table.
const MaxNofTransactions = 256

// Transaction-level errors.
var (
	ErrTimeout               = errors.New("exec: transaction guard timer expired")
	ErrTransactionsExhausted = errors.New("exec: no free transaction slot")
)

// Outcome is the result a transaction resolves with: the peer's message, or
// an error (guard timeout, transport drop, explicit failure).
type Outcome struct {
	Msg any
	Err error
}

// Transactions correlates outgoing requests with peer responses via an
// integer transaction id placed in the PDU. A slot is armed with a guard
// timer; on expiry the awaiting procedure resolves with ErrTimeout.
type Transactions struct {
	mu     sync.Mutex
	timers *Timers
	slots  [MaxNofTransactions]*txSlot
	next   int
}

type txSlot struct {
	ch    chan Outcome
	guard *Timer
}

// NewTransactions returns a transaction table armed on the given wheel.
func NewTransactions(timers *Timers) *Transactions {
	return &Transactions{timers: timers}
}

// Transaction is one armed slot.
type Transaction struct {
	ID     uint8
	parent *Transactions
	ch     chan Outcome
}

// Begin allocates a slot and arms its guard timer. The returned transaction
// id is placed into the outgoing PDU by the caller.
func (t *Transactions) Begin(timeout time.Duration) (*Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < MaxNofTransactions; i++ {
		id := (t.next + i) % MaxNofTransactions
		if t.slots[id] != nil {
			continue
		}
		t.next = (id + 1) % MaxNofTransactions
		slot := &txSlot{ch: make(chan Outcome, 1)}
		slot.guard = t.timers.Start(timeout, nil, func() {
			t.Resolve(uint8(id), nil, ErrTimeout)
		})
		t.slots[id] = slot
		return &Transaction{ID: uint8(id), parent: t, ch: slot.ch}, nil
	}
	return nil, ErrTransactionsExhausted
}

// Resolve completes the slot with the given outcome. It reports whether a
// transaction with that id was pending; late or unknown responses return
// false and are dropped by the caller.
func (t *Transactions) Resolve(id uint8, msg any, err error) bool {
	t.mu.Lock()
	slot := t.slots[id]
	t.slots[id] = nil
	t.mu.Unlock()
	if slot == nil {
		return false
	}
	slot.guard.Stop()
	slot.ch <- Outcome{Msg: msg, Err: err}
	return true
}

// FailAll resolves every pending transaction with err. Used on association
// drop so awaiting procedures finish deterministically.
func (t *Transactions) FailAll(err error) {
	t.mu.Lock()
	var pending []*txSlot
	for i, slot := range t.slots {
		if slot != nil {
			pending = append(pending, slot)
			t.slots[i] = nil
		}
	}
	t.mu.Unlock()
	for _, slot := range pending {
		slot.guard.Stop()
		slot.ch <- Outcome{Err: err}
	}
}

// Await blocks until the transaction resolves or ctx is cancelled. A
// cancelled procedure is marked dead: its slot is released and any late
// response is dropped.
func (tx *Transaction) Await(ctx context.Context) Outcome {
	select {
	case out := <-tx.ch:
		return out
	case <-ctx.Done():
		tx.parent.Resolve(tx.ID, nil, ctx.Err())
		// Drain the outcome the resolve above (or a racing peer
		// response) produced, so the slot's channel is empty.
		<-tx.ch
		return Outcome{Err: fmt.Errorf("exec: transaction cancelled: %w", ctx.Err())}
	}
}
