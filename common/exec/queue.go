// Package exec provides the cooperative execution runtime for the control
// plane: serialized task queues (one per UE, per cell and per DU control
// block), a millisecond tick source driving all timers, and the protocol
// transaction manager used to correlate request/response PDUs.
package exec

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrStopped is returned by Post after the queue has been stopped.
var ErrStopped = errors.New("exec: queue stopped")

// Queue runs posted tasks one at a time, in FIFO order, on a dedicated
// goroutine. State owned by a queue is never touched concurrently because
// only one task progresses at a time.
type Queue struct {
	name   string
	tasks  chan func()
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewQueue creates and starts a queue. depth bounds the number of tasks
// waiting to run; Post blocks when the queue is full.
func NewQueue(name string, depth int, logger *zap.Logger) *Queue {
	q := &Queue{
		name:   name,
		tasks:  make(chan func(), depth),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.quit:
			// Tasks not yet started are discarded.
			return
		case task := <-q.tasks:
			select {
			case <-q.quit:
				return
			default:
			}
			task()
		}
	}
}

// Post enqueues a task. It blocks while the queue is full and returns
// ErrStopped once the queue has been stopped.
func (q *Queue) Post(task func()) error {
	select {
	case <-q.quit:
		return ErrStopped
	default:
	}
	select {
	case q.tasks <- task:
		return nil
	case <-q.quit:
		return ErrStopped
	}
}

// Stop terminates the queue. The running task finishes; tasks that have not
// started are discarded. Stop does not wait for the running task.
func (q *Queue) Stop() {
	q.once.Do(func() {
		close(q.quit)
		if q.logger != nil {
			q.logger.Debug("task queue stopped", zap.String("queue", q.name))
		}
	})
}

// Join blocks until the queue goroutine has exited.
func (q *Queue) Join() {
	<-q.done
}

// Name returns the queue's diagnostic name.
func (q *Queue) Name() string {
	return q.name
}
