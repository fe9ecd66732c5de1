package channel

import (
	"context"
	"sync"

	"github.com/roach88/xqflow/internal/message"
)

// QueueChannel is an unbounded, thread-safe FIFO channel.
//
// Send never blocks. Receive waits on a signal channel so that blocked
// consumers observe context cancellation and Close.
type QueueChannel struct {
	name string

	mu       sync.Mutex
	messages []*message.Message
	closed   bool
	signal   chan struct{} // buffered, size 1
}

var _ PollableChannel = (*QueueChannel)(nil)

// NewQueue returns an empty queue channel.
func NewQueue(name string) *QueueChannel {
	return &QueueChannel{
		name:     name,
		messages: make([]*message.Message, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

func (q *QueueChannel) Name() string { return q.name }

// Send appends msg to the queue.
func (q *QueueChannel) Send(ctx context.Context, msg *message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.messages = append(q.messages, msg)
	q.notify()
	return nil
}

// notify wakes one waiter. Callers hold q.mu.
func (q *QueueChannel) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Poll removes and returns the front message without blocking.
func (q *QueueChannel) Poll(ctx context.Context) (*message.Message, bool, error) {
	msg, ok := q.tryDequeue()
	return msg, ok, nil
}

func (q *QueueChannel) tryDequeue() (*message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return nil, false
	}

	msg := q.messages[0]
	q.messages[0] = nil
	if len(q.messages) == 1 {
		q.messages = q.messages[:0]
	} else {
		q.messages = q.messages[1:]
		if !q.closed {
			// Pass the wakeup on to the next waiter.
			q.notify()
		}
	}
	return msg, true
}

// Receive removes and returns the front message, waiting for one if the
// queue is empty. Messages sent before Close are still delivered.
func (q *QueueChannel) Receive(ctx context.Context) (*message.Message, error) {
	for {
		if msg, ok := q.tryDequeue(); ok {
			return msg, nil
		}

		q.mu.Lock()
		closed := q.closed && len(q.messages) == 0
		q.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len returns the number of queued messages.
func (q *QueueChannel) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Close stops the channel accepting messages and wakes all waiters.
func (q *QueueChannel) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)
	return nil
}
