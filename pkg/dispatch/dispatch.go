package dispatch

import (
	"errors"
	"sync"
)

var ErrExited = errors.New("dispatch: exited")

type Kind byte

const (
	KindData Kind = iota
	KindFlush
	KindExit
)

type node[T any] struct {
	kind  Kind
	value T
	done  chan struct{} // KindFlush
}

// Thread - FIFO queue with one worker goroutine. Handle is called for every
// value strictly in enqueue order.
type Thread[T any] struct {
	name   string
	handle func(T)

	mu     sync.Mutex
	queue  []node[T]
	exited bool

	wake chan struct{}
	done chan struct{}
}

func Start[T any](name string, handle func(T)) *Thread[T] {
	t := &Thread[T]{
		name:   name,
		handle: handle,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Thread[T]) Name() string {
	return t.name
}

// Enqueue - ErrExited means value was not accepted and still belongs to caller
func (t *Thread[T]) Enqueue(v T) error {
	t.mu.Lock()
	if t.exited {
		t.mu.Unlock()
		return ErrExited
	}
	t.queue = append(t.queue, node[T]{kind: KindData, value: v})
	t.mu.Unlock()

	t.signal()
	return nil
}

// Flush - remove pending values and wait for the running handle to finish.
// Removed values are passed to drop in enqueue order.
func (t *Thread[T]) Flush(drop func(T)) {
	t.mu.Lock()

	var dropped []T
	queue := t.queue[:0]
	for _, n := range t.queue {
		if n.kind == KindData {
			dropped = append(dropped, n.value)
		} else {
			queue = append(queue, n)
		}
	}
	t.queue = queue

	var done chan struct{}
	if !t.exited {
		done = make(chan struct{})
		t.queue = append(t.queue, node[T]{kind: KindFlush, done: done})
	}

	t.mu.Unlock()

	t.signal()

	if drop != nil {
		for _, v := range dropped {
			drop(v)
		}
	}

	if done != nil {
		<-done
	} else {
		<-t.done
	}
}

// Stop - worker handles everything queued before exit. Must not be called
// from handle.
func (t *Thread[T]) Stop() {
	t.mu.Lock()
	if !t.exited {
		t.exited = true
		t.queue = append(t.queue, node[T]{kind: KindExit})
	}
	t.mu.Unlock()

	t.signal()

	<-t.done
}

// Len - pending values count
func (t *Thread[T]) Len() (n int) {
	t.mu.Lock()
	for _, node := range t.queue {
		if node.kind == KindData {
			n++
		}
	}
	t.mu.Unlock()
	return
}

func (t *Thread[T]) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Thread[T]) run() {
	defer close(t.done)

	for range t.wake {
		t.mu.Lock()
		nodes := t.queue
		t.queue = nil
		t.mu.Unlock()

		for _, n := range nodes {
			switch n.kind {
			case KindData:
				t.handle(n.value)
			case KindFlush:
				close(n.done)
			case KindExit:
				return
			}
		}
	}
}
