// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import (
	"context"
	"errors"
	"sync"
)

// errInboxDone is returned by get once the producer side has finished.
var errInboxDone = errors.New("postman: inbox producer finished")

// inbox is an unbounded FIFO of inbound messages. put never blocks, so a
// sender can never wait on a slow or stalled receiver.
type inbox struct {
	mu     sync.Mutex
	queue  []Message
	ready  chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newInbox() *inbox {
	return &inbox{
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// put appends msg. It reports false once the inbox is closed.
func (b *inbox) put(msg Message) bool {
	select {
	case <-b.closed:
		return false
	default:
	}
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()
	select {
	case b.ready <- struct{}{}:
	default:
	}
	return true
}

func (b *inbox) pop() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return Message{}, false
	}
	msg := b.queue[0]
	b.queue[0] = Message{}
	b.queue = b.queue[1:]
	if len(b.queue) == 0 {
		b.queue = nil
	}
	return msg, true
}

// get blocks for the next message. Queued messages are drained before
// done is reported; done is nil when ctx ended first.
func (b *inbox) get(ctx context.Context, done <-chan struct{}) (Message, error) {
	for {
		if msg, ok := b.pop(); ok {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-b.closed:
			return Message{}, ErrTransportClosed
		case <-done:
			if msg, ok := b.pop(); ok {
				return msg, nil
			}
			return Message{}, errInboxDone
		case <-b.ready:
		}
	}
}

func (b *inbox) close() {
	b.once.Do(func() { close(b.closed) })
}
