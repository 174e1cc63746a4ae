package camera

import (
	"fmt"
	"sync"
)

type BufStatus struct {
	RefCount int  `json:"ref_count"`
	InKernel bool `json:"in_kernel"`
}

// BufferPool - buffers of one stream and their status. A buffer in kernel
// always has zero refcount. All methods except exported ones must be called
// with mu locked.
type BufferPool struct {
	mu sync.Mutex // buffer status lock

	bufs    []*Buffer
	initial []bool
	status  []BufStatus
	queued  int
}

func (p *BufferPool) init(bufs []*Buffer, initial []bool) {
	p.bufs = bufs
	p.initial = initial
	p.status = make([]BufStatus, len(bufs))
	p.reset()
}

// reset - nothing in kernel, buffers not owned by kernel are held by upper layer
func (p *BufferPool) reset() {
	for i := range p.status {
		if p.initial[i] {
			p.status[i] = BufStatus{}
		} else {
			p.status[i] = BufStatus{RefCount: 1}
		}
	}
	p.queued = 0
}

func (p *BufferPool) clear() {
	p.bufs = nil
	p.initial = nil
	p.status = nil
	p.queued = 0
}

func (p *BufferPool) check(idx int) error {
	if idx < 0 || idx >= len(p.status) {
		return fmt.Errorf("%w: %d", ErrBufIndex, idx)
	}
	return nil
}

func (p *BufferPool) hold(idx, n int) {
	p.status[idx].RefCount += n
}

// release - returns true when last reference is gone
func (p *BufferPool) release(idx int) (bool, error) {
	if err := p.check(idx); err != nil {
		return false, err
	}

	st := &p.status[idx]
	if st.RefCount == 0 {
		return false, fmt.Errorf("%w: buffer=%d in_kernel=%t", ErrRefCount, idx, st.InKernel)
	}

	st.RefCount--
	return st.RefCount == 0, nil
}

func (p *BufferPool) dequeued(idx int) error {
	if err := p.check(idx); err != nil {
		return err
	}

	st := &p.status[idx]
	if !st.InKernel {
		return fmt.Errorf("camera: buffer=%d dequeued twice", idx)
	}

	st.InKernel = false
	p.queued--
	return nil
}

func (p *BufferPool) enqueued(idx int) {
	p.status[idx].InKernel = true
	p.queued++
}

// idle - buffer is outside kernel and nobody holds it
func (p *BufferPool) idle(idx int) bool {
	st := p.status[idx]
	return !st.InKernel && st.RefCount == 0
}

func (p *BufferPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bufs)
}

func (p *BufferPool) Buffer(idx int) *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.check(idx) != nil {
		return nil
	}
	return p.bufs[idx]
}

func (p *BufferPool) Status(idx int) BufStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.check(idx) != nil {
		return BufStatus{}
	}
	return p.status[idx]
}

func (p *BufferPool) Statuses() []BufStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]BufStatus(nil), p.status...)
}

// QueuedCount - buffers currently in kernel
func (p *BufferPool) QueuedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queued
}
