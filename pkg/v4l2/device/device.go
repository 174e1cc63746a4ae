//go:build linux && (386 || arm || amd64 || arm64)

package device

import (
	"errors"
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"github.com/AlexxIT/go2cam/pkg/ioctl"
	"golang.org/x/sys/unix"
)

// Device - multi-planar capture device with user pointer memory
type Device struct {
	fd   int
	path string
}

func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &Device{fd: fd, path: path}, nil
}

type Capability struct {
	Driver  string `json:"driver"`
	Card    string `json:"card"`
	BusInfo string `json:"bus_info"`
	Version string `json:"version"`

	Multiplanar bool `json:"multiplanar"`
	Streaming   bool `json:"streaming"`
}

func (d *Device) Fd() int {
	return d.fd
}

func (d *Device) Path() string {
	return d.path
}

func (d *Device) Capability() (*Capability, error) {
	c := v4l2_capability{}
	if err := ioctl.Ioctl(d.fd, VIDIOC_QUERYCAP, unsafe.Pointer(&c)); err != nil {
		return nil, err
	}

	caps := c.capabilities
	if caps&V4L2_CAP_DEVICE_CAPS != 0 {
		caps = c.device_caps
	}

	return &Capability{
		Driver:      ioctl.Str(c.driver[:]),
		Card:        ioctl.Str(c.card[:]),
		BusInfo:     ioctl.Str(c.bus_info[:]),
		Version:     fmt.Sprintf("%d.%d.%d", byte(c.version>>16), byte(c.version>>8), byte(c.version)),
		Multiplanar: caps&V4L2_CAP_VIDEO_CAPTURE_MPLANE != 0,
		Streaming:   caps&V4L2_CAP_STREAMING != 0,
	}, nil
}

func (d *Device) ListFormats() ([]uint32, error) {
	var items []uint32

	for i := uint32(0); ; i++ {
		fd := v4l2_fmtdesc{
			index: i,
			typ:   V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE,
		}
		if err := ioctl.Ioctl(d.fd, VIDIOC_ENUM_FMT, unsafe.Pointer(&fd)); err != nil {
			if !errors.Is(err, syscall.EINVAL) {
				return nil, err
			}
			break
		}

		items = append(items, fd.pixelformat)
	}

	return items, nil
}

func (d *Device) ListSizes(pixFmt uint32) ([][2]uint32, error) {
	var items [][2]uint32

	for i := uint32(0); ; i++ {
		fs := v4l2_frmsizeenum{
			index:        i,
			pixel_format: pixFmt,
		}
		if err := ioctl.Ioctl(d.fd, VIDIOC_ENUM_FRAMESIZES, unsafe.Pointer(&fs)); err != nil {
			if !errors.Is(err, syscall.EINVAL) {
				return nil, err
			}
			break
		}

		if fs.typ != V4L2_FRMSIZE_TYPE_DISCRETE {
			continue
		}

		items = append(items, [2]uint32{fs.discrete.width, fs.discrete.height})
	}

	return items, nil
}

// SetExtendedMode - bind this descriptor to new server stream and return its id
func (d *Device) SetExtendedMode() (uint32, error) {
	p := v4l2_streamparm{typ: V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE}
	if err := ioctl.Ioctl(d.fd, VIDIOC_S_PARM, unsafe.Pointer(&p)); err != nil {
		return 0, err
	}
	return p.capture.extendedmode, nil
}

func (d *Device) SetFormat(width, height int, pixFmt uint32, sizes, strides []uint32) error {
	if len(sizes) == 0 || len(sizes) > VIDEO_MAX_PLANES || len(strides) != len(sizes) {
		return fmt.Errorf("v4l2: wrong planes count: %d", len(sizes))
	}

	f := v4l2_format{
		typ: V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE,
		pix_mp: v4l2_pix_format_mplane{
			width:       uint32(width),
			height:      uint32(height),
			pixelformat: pixFmt,
			field:       V4L2_FIELD_NONE,
			colorspace:  V4L2_COLORSPACE_DEFAULT,
			num_planes:  uint8(len(sizes)),
		},
	}
	for i := range sizes {
		f.pix_mp.plane_fmt[i].sizeimage = sizes[i]
		f.pix_mp.plane_fmt[i].bytesperline = strides[i]
	}
	return ioctl.Ioctl(d.fd, VIDIOC_S_FMT, unsafe.Pointer(&f))
}

func (d *Device) RequestBuffers(count int) error {
	rb := v4l2_requestbuffers{
		count:  uint32(count),
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE,
		memory: V4L2_MEMORY_USERPTR,
	}
	if err := ioctl.Ioctl(d.fd, VIDIOC_REQBUFS, unsafe.Pointer(&rb)); err != nil {
		return err
	}
	if count > 0 && int(rb.count) < count {
		return fmt.Errorf("v4l2: driver gave %d buffers of %d", rb.count, count)
	}
	return nil
}

// QueryBuffer - return number of planes the driver expects for buffer
func (d *Device) QueryBuffer(index int) (int, error) {
	var planes [VIDEO_MAX_PLANES]v4l2_plane

	qb := v4l2_buffer{
		index:  uint32(index),
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE,
		memory: V4L2_MEMORY_USERPTR,
		planes: unsafe.Pointer(&planes[0]),
		length: VIDEO_MAX_PLANES,
	}
	err := ioctl.Ioctl(d.fd, VIDIOC_QUERYBUF, unsafe.Pointer(&qb))
	return int(qb.length), err
}

func (d *Device) QueueBuffer(index int, planes []Plane) error {
	if len(planes) == 0 || len(planes) > VIDEO_MAX_PLANES {
		return fmt.Errorf("v4l2: wrong planes count: %d", len(planes))
	}

	var mp [VIDEO_MAX_PLANES]v4l2_plane
	for i, p := range planes {
		mp[i] = v4l2_plane{
			bytesused:   p.BytesUsed,
			length:      p.Length,
			userptr:     p.Ptr,
			data_offset: p.DataOffset,
		}
	}

	qb := v4l2_buffer{
		index:  uint32(index),
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE,
		memory: V4L2_MEMORY_USERPTR,
		planes: unsafe.Pointer(&mp[0]),
		length: uint32(len(planes)),
	}
	err := ioctl.Ioctl(d.fd, VIDIOC_QBUF, unsafe.Pointer(&qb))
	return err
}

func (d *Device) DequeueBuffer(numPlanes int) (*Dequeued, error) {
	if numPlanes <= 0 || numPlanes > VIDEO_MAX_PLANES {
		return nil, fmt.Errorf("v4l2: wrong planes count: %d", numPlanes)
	}

	var mp [VIDEO_MAX_PLANES]v4l2_plane

	qb := v4l2_buffer{
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE,
		memory: V4L2_MEMORY_USERPTR,
		planes: unsafe.Pointer(&mp[0]),
		length: uint32(numPlanes),
	}
	err := ioctl.Ioctl(d.fd, VIDIOC_DQBUF, unsafe.Pointer(&qb))
	if err != nil {
		return nil, err
	}

	dq := &Dequeued{
		Index:     int(qb.index),
		Sequence:  qb.sequence,
		Timestamp: time.Duration(qb.timestamp.sec)*time.Second + time.Duration(qb.timestamp.usec)*time.Microsecond,
		Flags:     qb.flags,
		BytesUsed: make([]uint32, numPlanes),
	}
	for i := range dq.BytesUsed {
		dq.BytesUsed[i] = mp[i].bytesused
	}
	return dq, nil
}

func (d *Device) StreamOn() error {
	typ := uint32(V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE)
	return ioctl.Ioctl(d.fd, VIDIOC_STREAMON, unsafe.Pointer(&typ))
}

// StreamOff - kernel returns all queued buffers to user space
func (d *Device) StreamOff() error {
	typ := uint32(V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE)
	return ioctl.Ioctl(d.fd, VIDIOC_STREAMOFF, unsafe.Pointer(&typ))
}

func (d *Device) SetControl(id uint32, value int32) error {
	c := v4l2_control{id: id, value: value}
	return ioctl.Ioctl(d.fd, VIDIOC_S_CTRL, unsafe.Pointer(&c))
}

func (d *Device) GetControl(id uint32) (int32, error) {
	c := v4l2_control{id: id}
	if err := ioctl.Ioctl(d.fd, VIDIOC_G_CTRL, unsafe.Pointer(&c)); err != nil {
		return 0, err
	}
	return c.value, nil
}

func (d *Device) Close() error {
	return unix.Close(d.fd)
}
