package camera

import (
	"github.com/AlexxIT/go2cam/pkg/layout"
)

// Allocator - external owner of buffers memory. Initial flags buffers that
// are queued to kernel on registration, others start held by upper layer.
type Allocator interface {
	GetBufs(geom *layout.Geometry, count int) (bufs []*Buffer, initial []bool, err error)
	PutBufs(bufs []*Buffer) error
}

// Mapper - optional Device interface, serving side wants every plane mapped
// before registration and unmapped after release
type Mapper interface {
	MapBuf(bufIdx, planeIdx, fd, size int) error
	UnmapBuf(bufIdx, planeIdx int) error
}

func mapBufs(m Mapper, bufs []*Buffer) (err error) {
	for i, buf := range bufs {
		for j, plane := range buf.Planes {
			if err = m.MapBuf(i, j, plane.Fd, plane.Len); err != nil {
				// unmap everything mapped before
				for ; j > 0; j-- {
					_ = m.UnmapBuf(i, j-1)
				}
				_ = unmapBufs(m, bufs[:i])
				return err
			}
		}
	}
	return nil
}

func unmapBufs(m Mapper, bufs []*Buffer) (err error) {
	for i, buf := range bufs {
		for j := range buf.Planes {
			if e := m.UnmapBuf(i, j); e != nil && err == nil {
				err = e
			}
		}
	}
	return
}
