//go:build linux && (amd64 || arm64)

package device

import "unsafe"

type v4l2_format struct { // size 208
	typ    uint32                 // offset 0, size 4
	_      [4]byte                // align
	pix_mp v4l2_pix_format_mplane // offset 8, size 192
	_      [8]byte                // filler
}

type v4l2_buffer struct { // size 88
	index     uint32         // offset 0, size 4
	typ       uint32         // offset 4, size 4
	bytesused uint32         // offset 8, size 4
	flags     uint32         // offset 12, size 4
	field     uint32         // offset 16, size 4
	_         [4]byte        // align
	timestamp v4l2_timeval   // offset 24, size 16
	timecode  v4l2_timecode  // offset 40, size 16
	sequence  uint32         // offset 56, size 4
	memory    uint32         // offset 60, size 4
	planes    unsafe.Pointer // offset 64, size 8
	length    uint32         // offset 72, size 4
	reserved2 uint32         // offset 76, size 4
	requestfd int32          // offset 80, size 4
	_         [4]byte        // filler
}

type v4l2_timeval struct { // size 16
	sec  int64 // offset 0, size 8
	usec int64 // offset 8, size 8
}

type v4l2_plane struct { // size 64
	bytesused   uint32     // offset 0, size 4
	length      uint32     // offset 4, size 4
	userptr     uintptr    // offset 8, size 8
	data_offset uint32     // offset 16, size 4
	reserved    [11]uint32 // offset 20, size 44
}
