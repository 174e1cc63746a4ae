//go:build linux && (386 || arm || amd64 || arm64)

package device

import (
	"unsafe"

	"github.com/AlexxIT/go2cam/pkg/ioctl"
)

// https://github.com/torvalds/linux/blob/master/include/uapi/linux/videodev2.h

var (
	VIDIOC_QUERYCAP = ioctl.IOR('V', 0, unsafe.Sizeof(v4l2_capability{}))
	VIDIOC_ENUM_FMT = ioctl.IORW('V', 2, unsafe.Sizeof(v4l2_fmtdesc{}))
	VIDIOC_S_FMT    = ioctl.IORW('V', 5, unsafe.Sizeof(v4l2_format{}))
	VIDIOC_REQBUFS  = ioctl.IORW('V', 8, unsafe.Sizeof(v4l2_requestbuffers{}))
	VIDIOC_QUERYBUF = ioctl.IORW('V', 9, unsafe.Sizeof(v4l2_buffer{}))

	VIDIOC_QBUF      = ioctl.IORW('V', 15, unsafe.Sizeof(v4l2_buffer{}))
	VIDIOC_DQBUF     = ioctl.IORW('V', 17, unsafe.Sizeof(v4l2_buffer{}))
	VIDIOC_STREAMON  = ioctl.IOW('V', 18, unsafe.Sizeof(int32(0)))
	VIDIOC_STREAMOFF = ioctl.IOW('V', 19, unsafe.Sizeof(int32(0)))
	VIDIOC_G_PARM    = ioctl.IORW('V', 21, unsafe.Sizeof(v4l2_streamparm{}))
	VIDIOC_S_PARM    = ioctl.IORW('V', 22, unsafe.Sizeof(v4l2_streamparm{}))
	VIDIOC_G_CTRL    = ioctl.IORW('V', 27, unsafe.Sizeof(v4l2_control{}))
	VIDIOC_S_CTRL    = ioctl.IORW('V', 28, unsafe.Sizeof(v4l2_control{}))

	VIDIOC_ENUM_FRAMESIZES = ioctl.IORW('V', 74, unsafe.Sizeof(v4l2_frmsizeenum{}))
)

const (
	V4L2_BUF_TYPE_VIDEO_CAPTURE        = 1
	V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE = 9

	V4L2_CAP_VIDEO_CAPTURE_MPLANE = 0x00001000
	V4L2_CAP_STREAMING            = 0x04000000
	V4L2_CAP_DEVICE_CAPS          = 0x80000000

	V4L2_COLORSPACE_DEFAULT    = 0
	V4L2_FIELD_NONE            = 1
	V4L2_FRMSIZE_TYPE_DISCRETE = 1
	V4L2_MEMORY_USERPTR        = 2

	VIDEO_MAX_PLANES = 8
)

type v4l2_capability struct { // size 104
	driver       [16]byte  // offset 0, size 16
	card         [32]byte  // offset 16, size 32
	bus_info     [32]byte  // offset 48, size 32
	version      uint32    // offset 80, size 4
	capabilities uint32    // offset 84, size 4
	device_caps  uint32    // offset 88, size 4
	reserved     [3]uint32 // offset 92, size 12
}

type v4l2_pix_format_mplane struct { // size 192
	width        uint32                                  // offset 0, size 4
	height       uint32                                  // offset 4, size 4
	pixelformat  uint32                                  // offset 8, size 4
	field        uint32                                  // offset 12, size 4
	colorspace   uint32                                  // offset 16, size 4
	plane_fmt    [VIDEO_MAX_PLANES]v4l2_plane_pix_format // offset 20, size 160
	num_planes   uint8                                   // offset 180, size 1
	flags        uint8                                   // offset 181, size 1
	ycbcr_enc    uint8                                   // offset 182, size 1
	quantization uint8                                   // offset 183, size 1
	xfer_func    uint8                                   // offset 184, size 1
	reserved     [7]uint8                                // offset 185, size 7
}

type v4l2_plane_pix_format struct { // size 20
	sizeimage    uint32    // offset 0, size 4
	bytesperline uint32    // offset 4, size 4
	reserved     [6]uint16 // offset 8, size 12
}

type v4l2_requestbuffers struct { // size 20
	count        uint32   // offset 0, size 4
	typ          uint32   // offset 4, size 4
	memory       uint32   // offset 8, size 4
	capabilities uint32   // offset 12, size 4
	flags        uint8    // offset 16, size 1
	reserved     [3]uint8 // offset 17, size 3
}

type v4l2_timecode struct { // size 16
	typ      uint32   // offset 0, size 4
	flags    uint32   // offset 4, size 4
	frames   uint8    // offset 8, size 1
	seconds  uint8    // offset 9, size 1
	minutes  uint8    // offset 10, size 1
	hours    uint8    // offset 11, size 1
	userbits [4]uint8 // offset 12, size 4
}

type v4l2_streamparm struct { // size 204
	typ     uint32           // offset 0, size 4
	capture v4l2_captureparm // offset 4, size 40
	_       [160]byte        // filler
}

type v4l2_captureparm struct { // size 40
	capability   uint32     // offset 0, size 4
	capturemode  uint32     // offset 4, size 4
	timeperframe v4l2_fract // offset 8, size 8
	extendedmode uint32     // offset 16, size 4
	readbuffers  uint32     // offset 20, size 4
	reserved     [4]uint32  // offset 24, size 16
}

type v4l2_fract struct { // size 8
	numerator   uint32 // offset 0, size 4
	denominator uint32 // offset 4, size 4
}

type v4l2_control struct { // size 8
	id    uint32 // offset 0, size 4
	value int32  // offset 4, size 4
}

type v4l2_fmtdesc struct { // size 64
	index       uint32    // offset 0, size 4
	typ         uint32    // offset 4, size 4
	flags       uint32    // offset 8, size 4
	description [32]byte  // offset 12, size 32
	pixelformat uint32    // offset 44, size 4
	mbus_code   uint32    // offset 48, size 4
	reserved    [3]uint32 // offset 52, size 12
}

type v4l2_frmsizeenum struct { // size 44
	index        uint32                // offset 0, size 4
	pixel_format uint32                // offset 4, size 4
	typ          uint32                // offset 8, size 4
	discrete     v4l2_frmsize_discrete // offset 12, size 8
	_            [24]byte              // filler
}

type v4l2_frmsize_discrete struct { // size 8
	width  uint32 // offset 0, size 4
	height uint32 // offset 4, size 4
}
