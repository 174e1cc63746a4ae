//go:build linux

package camera

import (
	"sync"
	"testing"

	"github.com/AlexxIT/go2cam/pkg/layout"
	"github.com/AlexxIT/go2cam/pkg/v4l2/device"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeDevice - kernel queue emulation, readiness is a byte in the pipe per
// captured buffer
type fakeDevice struct {
	r, w int

	mu        sync.Mutex
	planes    int
	requested int
	queue     []int
	captured  []int
	streaming bool
	seq       uint32
	qbufs     int
	controls  map[uint32]int32
	mapped    map[[2]int]int
	closed    bool

	streamOnErr error
}

func newFakeDevice(t *testing.T) *fakeDevice {
	var fds [2]int
	require.Nil(t, unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	return &fakeDevice{
		r:        fds[0],
		w:        fds[1],
		controls: map[uint32]int32{},
		mapped:   map[[2]int]int{},
	}
}

func (d *fakeDevice) Fd() int {
	return d.r
}

func (d *fakeDevice) SetExtendedMode() (uint32, error) {
	return 7, nil
}

func (d *fakeDevice) SetFormat(width, height int, pixFmt uint32, sizes, strides []uint32) error {
	d.mu.Lock()
	d.planes = len(sizes)
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) RequestBuffers(count int) error {
	d.mu.Lock()
	d.requested = count
	if count == 0 {
		d.queue = nil
		d.captured = nil
	}
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) QueryBuffer(index int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index >= d.requested {
		return 0, unix.EINVAL
	}
	return d.planes, nil
}

func (d *fakeDevice) QueueBuffer(index int, planes []device.Plane) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if index >= d.requested || len(planes) != d.planes {
		return unix.EINVAL
	}
	// already owned by kernel
	for _, i := range d.queue {
		if i == index {
			return unix.EINVAL
		}
	}
	for _, i := range d.captured {
		if i == index {
			return unix.EINVAL
		}
	}

	d.queue = append(d.queue, index)
	d.qbufs++
	return nil
}

func (d *fakeDevice) DequeueBuffer(numPlanes int) (*device.Dequeued, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.captured) == 0 {
		return nil, unix.EAGAIN
	}

	var b [1]byte
	if _, err := unix.Read(d.r, b[:]); err != nil {
		return nil, err
	}

	idx := d.captured[0]
	d.captured = d.captured[1:]
	d.seq++

	return &device.Dequeued{Index: idx, Sequence: d.seq, BytesUsed: make([]uint32, numPlanes)}, nil
}

func (d *fakeDevice) StreamOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streamOnErr != nil {
		return d.streamOnErr
	}
	d.streaming = true
	return nil
}

func (d *fakeDevice) StreamOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.streaming = false
	d.queue = nil
	d.captured = nil

	var b [64]byte
	for {
		if n, _ := unix.Read(d.r, b[:]); n <= 0 {
			break
		}
	}
	return nil
}

func (d *fakeDevice) SetControl(id uint32, value int32) error {
	d.mu.Lock()
	d.controls[id] = value
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) GetControl(id uint32) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	value, ok := d.controls[id]
	if !ok {
		return 0, unix.EINVAL
	}
	return value, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) MapBuf(bufIdx, planeIdx, fd, size int) error {
	d.mu.Lock()
	d.mapped[[2]int{bufIdx, planeIdx}] = size
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) UnmapBuf(bufIdx, planeIdx int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.mapped[[2]int{bufIdx, planeIdx}]; !ok {
		return unix.EINVAL
	}
	delete(d.mapped, [2]int{bufIdx, planeIdx})
	return nil
}

// capture - kernel fills the oldest queued buffer
func (d *fakeDevice) capture() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.streaming || len(d.queue) == 0 {
		return -1, false
	}

	idx := d.queue[0]
	d.queue = d.queue[1:]
	d.captured = append(d.captured, idx)

	_, _ = unix.Write(d.w, []byte{1})
	return idx, true
}

func (d *fakeDevice) setStreamOnErr(err error) {
	d.mu.Lock()
	d.streamOnErr = err
	d.mu.Unlock()
}

func (d *fakeDevice) qbufCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.qbufs
}

func (d *fakeDevice) kernelQueue() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue) + len(d.captured)
}

func (d *fakeDevice) mappedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mapped)
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func newTestCamera(t *testing.T, dev *fakeDevice) *Camera {
	cam := NewCamera("/dev/fake", func(string) (Device, error) {
		return dev, nil
	}, zerolog.Nop())
	t.Cleanup(func() {
		_ = cam.Close()
	})
	return cam
}

func testConfig(buffers, reserved int) StreamConfig {
	return StreamConfig{
		Format:   layout.FormatNV12,
		Width:    64,
		Height:   48,
		Padding:  layout.Padding{Width: 16, Height: 2, Plane: 16},
		Buffers:  buffers,
		Reserved: reserved,
	}
}

// newTestStream - stream in REG state
func newTestStream(t *testing.T, dev *fakeDevice, buffers, reserved int) (*Channel, *Stream) {
	cam := newTestCamera(t, dev)

	ch, err := cam.AddChannel("main")
	require.Nil(t, err)

	s, err := ch.AddStream()
	require.Nil(t, err)

	require.Nil(t, s.Acquire())
	require.Nil(t, s.SetFormat(testConfig(buffers, reserved)))
	require.Nil(t, s.GetBufs())
	require.Nil(t, s.RegBufs())

	return ch, s
}

// heapAllocator - returns one buffer less than asked
type heapAllocator struct {
	short int
	put   int
}

func (a *heapAllocator) GetBufs(geom *layout.Geometry, count int) ([]*Buffer, []bool, error) {
	var bufs []*Buffer
	var initial []bool

	for i := 0; i < count-a.short; i++ {
		buf := &Buffer{Index: i, fd: -1}
		for _, p := range geom.Planes {
			buf.Planes = append(buf.Planes, Plane{Fd: -1, Data: make([]byte, p.Len), Plane: p})
		}
		bufs = append(bufs, buf)
		initial = append(initial, true)
	}

	return bufs, initial, nil
}

func (a *heapAllocator) PutBufs(bufs []*Buffer) error {
	a.put += len(bufs)
	return nil
}
