//go:build linux

package camera

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Camera - one capture device path, every stream opens its own descriptor
type Camera struct {
	path string
	open Opener
	log  zerolog.Logger

	mu       sync.Mutex
	channels [MaxChannels]*Channel
	counter  uint32
}

func NewCamera(path string, open Opener, log zerolog.Logger) *Camera {
	return &Camera{path: path, open: open, log: log}
}

func (c *Camera) Path() string {
	return c.path
}

func (c *Camera) AddChannel(name string) (*Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, ch := range c.channels {
		if ch != nil {
			continue
		}

		ch, err := newChannel(c, (c.counter+1)<<8|uint32(i), name)
		if err != nil {
			return nil, err
		}

		c.counter++
		c.channels[i] = ch
		return ch, nil
	}

	return nil, fmt.Errorf("camera: channels table full: %s", c.path)
}

func (c *Camera) Channel(handle uint32) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := int(handle & 0xFF)
	if i < MaxChannels && c.channels[i] != nil && c.channels[i].handle == handle {
		return c.channels[i]
	}
	return nil
}

func (c *Camera) ChannelByName(name string) *Channel {
	for _, ch := range c.Channels() {
		if ch.name == name {
			return ch
		}
	}
	return nil
}

func (c *Camera) Channels() []*Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	var channels []*Channel
	for _, ch := range c.channels {
		if ch != nil {
			channels = append(channels, ch)
		}
	}
	return channels
}

// DelChannel - close channel with all its streams
func (c *Camera) DelChannel(handle uint32) error {
	ch := c.Channel(handle)
	if ch == nil {
		return fmt.Errorf("%w: channel=%x", ErrNotFound, handle)
	}

	err := ch.Close()

	c.mu.Lock()
	c.channels[handle&0xFF] = nil
	c.mu.Unlock()

	return err
}

func (c *Camera) Close() error {
	var errs []error
	for _, ch := range c.Channels() {
		errs = append(errs, c.DelChannel(ch.handle))
	}
	return errors.Join(errs...)
}
