//go:build linux

package camera

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AlexxIT/go2cam/pkg/dispatch"
	"github.com/AlexxIT/go2cam/pkg/poll"
	"github.com/rs/zerolog"
)

// Channel - group of streams with one poll goroutine and optional bundle
// consumer
type Channel struct {
	handle uint32
	name   string
	camera *Camera
	log    zerolog.Logger

	poller *poll.Poller

	mu      sync.Mutex
	streams [MaxStreams]*Stream
	counter uint32
	bundle  *dispatch.Thread[*Frame]
}

func newChannel(cam *Camera, handle uint32, name string) (*Channel, error) {
	poller, err := poll.New(name, cam.log)
	if err != nil {
		return nil, err
	}

	return &Channel{
		handle: handle,
		name:   name,
		camera: cam,
		log:    cam.log,
		poller: poller,
	}, nil
}

func (c *Channel) Handle() uint32 {
	return c.handle
}

func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) Camera() *Camera {
	return c.camera
}

// AddStream - new stream in INITED state
func (c *Channel) AddStream() (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.streams {
		if s != nil {
			continue
		}

		c.counter++
		s = newStream(c, c.counter<<8|uint32(i))
		c.streams[i] = s
		return s, nil
	}

	return nil, ErrStreamsFull
}

func (c *Channel) Stream(handle uint32) *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := int(handle & 0xFF)
	if i < MaxStreams && c.streams[i] != nil && c.streams[i].handle == handle {
		return c.streams[i]
	}
	return nil
}

// Streams - in creation slot order
func (c *Channel) Streams() []*Stream {
	c.mu.Lock()
	defer c.mu.Unlock()

	var streams []*Stream
	for _, s := range c.streams {
		if s != nil {
			streams = append(streams, s)
		}
	}
	return streams
}

// DelStream - release stream and free its slot
func (c *Channel) DelStream(handle uint32) error {
	s := c.Stream(handle)
	if s == nil {
		return fmt.Errorf("%w: stream=%x", ErrNotFound, handle)
	}

	err := s.Release()

	c.mu.Lock()
	c.streams[handle&0xFF] = nil
	c.mu.Unlock()

	return err
}

// Bundle - deliver frames of streams to fn in arrival order, fn must call
// Frame.Done for every frame
func (c *Channel) Bundle(fn BundleFunc, streams ...*Stream) error {
	for _, s := range streams {
		if s.channel != c {
			return fmt.Errorf("camera: stream=%x not in channel %s", s.handle, c.name)
		}
	}

	c.mu.Lock()
	if c.bundle != nil {
		c.mu.Unlock()
		return errors.New("camera: channel already bundled")
	}
	c.bundle = dispatch.Start(c.name, func(frame *Frame) {
		fn(frame)
	})
	c.mu.Unlock()

	for _, s := range streams {
		s.setBundled(true)
	}
	return nil
}

// Unbundle - pending frames go back to their streams without the consumer
func (c *Channel) Unbundle() {
	for _, s := range c.Streams() {
		s.setBundled(false)
	}

	c.mu.Lock()
	b := c.bundle
	c.bundle = nil
	c.mu.Unlock()

	if b == nil {
		return
	}

	b.Flush(func(frame *Frame) {
		_ = frame.Done()
	})
	b.Stop()
}

func (c *Channel) deliver(frame *Frame) error {
	c.mu.Lock()
	b := c.bundle
	c.mu.Unlock()

	if b == nil {
		return dispatch.ErrExited
	}
	return b.Enqueue(frame)
}

// Start - all streams in REG state. On error streams started by this call are
// stopped, already active ones keep running.
func (c *Channel) Start() error {
	var started []*Stream

	for _, s := range c.Streams() {
		if s.State() != StateReg {
			continue
		}
		if err := s.Start(); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				_ = started[i].Stop()
			}
			return err
		}
		started = append(started, s)
	}
	return nil
}

// Stop - in reverse order
func (c *Channel) Stop() error {
	streams := c.Streams()

	var errs []error
	for i := len(streams) - 1; i >= 0; i-- {
		if streams[i].State() == StateActive {
			errs = append(errs, streams[i].Stop())
		}
	}
	return errors.Join(errs...)
}

func (c *Channel) Close() error {
	errs := []error{c.Stop()}

	c.Unbundle()

	for _, s := range c.Streams() {
		errs = append(errs, c.DelStream(s.handle))
	}

	errs = append(errs, c.poller.Close())

	return errors.Join(errs...)
}
