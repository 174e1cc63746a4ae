package device

import "time"

// Plane - user memory for one plane of the buffer
type Plane struct {
	Ptr        uintptr
	Length     uint32
	BytesUsed  uint32
	DataOffset uint32
}

// Dequeued - buffer returned by the kernel
type Dequeued struct {
	Index     int
	Sequence  uint32
	Timestamp time.Duration
	Flags     uint32
	BytesUsed []uint32
}
