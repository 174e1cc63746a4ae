package camera

import (
	"errors"
	"fmt"

	"github.com/AlexxIT/go2cam/pkg/layout"
	"golang.org/x/sys/unix"
)

// MemfdAllocator - one anonymous shared memory region per buffer, planes are
// carved at their layout offsets. Last Reserved buffers are not initially
// owned by kernel.
type MemfdAllocator struct {
	Name     string
	Reserved int
}

func (a *MemfdAllocator) GetBufs(geom *layout.Geometry, count int) ([]*Buffer, []bool, error) {
	if count <= 0 || a.Reserved < 0 || a.Reserved >= count {
		return nil, nil, fmt.Errorf("%w: count=%d reserved=%d", ErrNoBuffers, count, a.Reserved)
	}

	bufs := make([]*Buffer, 0, count)
	initial := make([]bool, 0, count)

	for i := 0; i < count; i++ {
		buf, err := a.alloc(geom, i)
		if err != nil {
			return nil, nil, errors.Join(err, a.PutBufs(bufs))
		}
		bufs = append(bufs, buf)
		initial = append(initial, i < count-a.Reserved)
	}

	return bufs, initial, nil
}

func (a *MemfdAllocator) alloc(geom *layout.Geometry, index int) (*Buffer, error) {
	name := a.Name
	if name == "" {
		name = "go2cam"
	}

	fd, err := unix.MemfdCreate(fmt.Sprintf("%s-%d", name, index), unix.MFD_CLOEXEC)
	if err != nil {
		return nil, err
	}

	if err = unix.Ftruncate(fd, int64(geom.FrameLen)); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	mem, err := unix.Mmap(fd, 0, geom.FrameLen, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	buf := &Buffer{Index: index, mem: mem, fd: fd}
	for _, p := range geom.Planes {
		buf.Planes = append(buf.Planes, Plane{
			Fd:    fd,
			Data:  mem[p.Offset : p.Offset+p.Len],
			Plane: p,
		})
	}
	return buf, nil
}

func (a *MemfdAllocator) PutBufs(bufs []*Buffer) error {
	var errs []error
	for _, buf := range bufs {
		if buf.mem != nil {
			errs = append(errs, unix.Munmap(buf.mem))
			buf.mem = nil
		}
		errs = append(errs, unix.Close(buf.fd))
		buf.Planes = nil
	}
	return errors.Join(errs...)
}
