// Package pubsub fans messages out to any number of subscribers without ever letting a slow subscriber hold up the
// publisher.
package pubsub

import (
	"errors"
	"sync"
)

const DefaultSubscriberBufSize = 16

var ErrPublisherClosed = errors.New("publisher closed")

type Receiver[T any] interface {
	Receive() <-chan T
}

type Closer interface {
	Close()
}

type ReceiverCloser[T any] interface {
	Receiver[T]
	Closer
}

// Publisher delivers each sent message to every current subscriber. A subscriber whose buffer is full when a message
// arrives is dropped: it is unsubscribed and its channel closed.
type Publisher[T any] struct {
	mu          sync.Mutex
	subscribers map[*subscription[T]]struct{}
	closed      bool
}

func NewPublisher[T any]() *Publisher[T] {
	return &Publisher[T]{
		subscribers: make(map[*subscription[T]]struct{}),
	}
}

type subscription[T any] struct {
	p  *Publisher[T]
	ch chan T
}

func (s *subscription[T]) Receive() <-chan T {
	return s.ch
}

// Close unsubscribes, closing the receive channel. It is idempotent.
func (s *subscription[T]) Close() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.remove(s)
}

// Subscribe adds a subscriber that can hold up to bufSize undelivered messages.
func (p *Publisher[T]) Subscribe(bufSize int) (ReceiverCloser[T], error) {
	if bufSize < 1 {
		bufSize = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPublisherClosed
	}
	s := &subscription[T]{p: p, ch: make(chan T, bufSize)}
	p.subscribers[s] = struct{}{}
	return s, nil
}

// Send publishes msg without blocking, returning the number of subscribers it was delivered to, or false if the
// publisher is closed.
func (p *Publisher[T]) Send(msg T) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, false
	}
	delivered := 0
	for s := range p.subscribers {
		select {
		case s.ch <- msg:
			delivered++
		default:
			p.remove(s)
		}
	}
	return delivered, true
}

// Len returns the number of current subscribers.
func (p *Publisher[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

// Close idempotently shuts down the publisher, closing all subscribers too.
func (p *Publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for s := range p.subscribers {
		p.remove(s)
	}
	p.closed = true
}

// remove must be called with p.mu held. A subscription's channel is closed exactly when it leaves the map.
func (p *Publisher[T]) remove(s *subscription[T]) {
	if _, ok := p.subscribers[s]; !ok {
		return
	}
	delete(p.subscribers, s)
	close(s.ch)
}
