package camera

import (
	"errors"
	"time"

	"github.com/AlexxIT/go2cam/pkg/layout"
	"github.com/AlexxIT/go2cam/pkg/v4l2/device"
)

const (
	MaxChannels  = 8
	MaxStreams   = 8 // per channel, same as poller entries
	MaxCallbacks = 16
)

var (
	ErrInvalidState = errors.New("camera: invalid state")
	ErrRefCount     = errors.New("camera: buffer refcount underflow")
	ErrBufIndex     = errors.New("camera: wrong buffer index")
	ErrNoBuffers    = errors.New("camera: not enough buffers")
	ErrCallbackFull = errors.New("camera: callbacks table full")
	ErrCallbackID   = errors.New("camera: unknown callback")
	ErrStreamsFull  = errors.New("camera: streams table full")
	ErrNotFound     = errors.New("camera: not found")
)

type StreamType byte

const (
	StreamPreview StreamType = iota
	StreamVideo
	StreamSnapshot
	StreamRaw
	StreamMetadata
	StreamOffline
)

var streamTypes = [...]string{"preview", "video", "snapshot", "raw", "metadata", "offline"}

func (t StreamType) String() string {
	if int(t) < len(streamTypes) {
		return streamTypes[t]
	}
	return "unknown"
}

func ParseStreamType(s string) (StreamType, bool) {
	for i, name := range streamTypes {
		if s == name {
			return StreamType(i), true
		}
	}
	return 0, false
}

func (t StreamType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

type State byte

const (
	StateNotUsed State = iota
	StateInited
	StateAcquired
	StateCfg
	StateBuffed
	StateReg
	StateActive
)

var states = [...]string{"NOTUSED", "INITED", "ACQUIRED", "CFG", "BUFFED", "REG", "ACTIVE"}

func (s State) String() string {
	if int(s) < len(states) {
		return states[s]
	}
	return "UNKNOWN"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Plane - part of buffer memory with its layout
type Plane struct {
	Fd   int // backing descriptor for the serving side
	Data []byte

	layout.Plane // Offset is from start of the backing memory
}

type Buffer struct {
	Index  int
	Planes []Plane

	// last arrival, written by the poll goroutine under the buffer lock
	Sequence  uint32
	Timestamp time.Duration
	BytesUsed []uint32

	mem []byte // whole mapping, MemfdAllocator
	fd  int
}

// Frame - one arrived buffer, every consumer must call Done exactly once
type Frame struct {
	Stream *Stream `json:"-"`
	Buffer *Buffer `json:"-"`

	Handle    uint32        `json:"stream"`
	Type      StreamType    `json:"type"`
	Index     int           `json:"index"`
	Sequence  uint32        `json:"sequence"`
	Timestamp time.Duration `json:"timestamp"`
	BytesUsed []uint32      `json:"bytes_used"`
}

func (f *Frame) Done() error {
	return f.Stream.QBuf(f.Buffer)
}

// FrameFunc - stream callback, frame must be returned with Done
type FrameFunc func(frame *Frame, user any)

// BundleFunc - channel consumer, frame must be returned with Done
type BundleFunc func(frame *Frame)

type StreamConfig struct {
	Type    StreamType
	Format  layout.Format
	Width   int
	Height  int
	Padding layout.Padding

	Buffers  int
	Reserved int // not initially owned by kernel, MemfdAllocator only

	Allocator Allocator // nil for MemfdAllocator
}

// Device - kernel capture device of one stream
type Device interface {
	Fd() int
	SetExtendedMode() (uint32, error)
	SetFormat(width, height int, pixFmt uint32, sizes, strides []uint32) error
	RequestBuffers(count int) error
	QueryBuffer(index int) (int, error)
	QueueBuffer(index int, planes []device.Plane) error
	DequeueBuffer(numPlanes int) (*device.Dequeued, error)
	StreamOn() error
	StreamOff() error
	SetControl(id uint32, value int32) error
	GetControl(id uint32) (int32, error)
	Close() error
}

type Opener func(path string) (Device, error)
