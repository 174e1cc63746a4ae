//go:build linux

package camera

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/AlexxIT/go2cam/pkg/dispatch"
	"github.com/AlexxIT/go2cam/pkg/layout"
	"github.com/AlexxIT/go2cam/pkg/poll"
	"github.com/AlexxIT/go2cam/pkg/v4l2/device"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

type callback struct {
	id      uint32
	fn      FrameFunc
	user    any
	count   int // -1 for infinite
	removed bool
}

// delivery - one frame for all callbacks reserved on arrival
type delivery struct {
	frame *Frame
	regs  []*callback
}

// Stream - one capture pipeline with its own device descriptor and buffers.
// Lock order: mu, cbMu, pool.mu, poller. Arrival path never takes mu.
type Stream struct {
	handle  uint32
	channel *Channel
	log     zerolog.Logger

	mu        sync.Mutex // state lock
	state     State
	dev       Device
	streamID  uint32
	config    StreamConfig
	geom      *layout.Geometry
	numPlanes int
	alloc     Allocator

	cbMu       sync.Mutex // callbacks table lock
	callbacks  [MaxCallbacks]*callback
	cbCounter  uint32
	bundled    bool
	peer       *Stream
	dispatcher *dispatch.Thread[delivery]
	retiring   []*dispatch.Thread[delivery] // exit after queued deliveries

	pool BufferPool

	// guarded by pool.mu
	registered bool
	active     bool
	watching   bool
}

func newStream(ch *Channel, handle uint32) *Stream {
	return &Stream{
		handle:  handle,
		channel: ch,
		log:     ch.log,
		state:   StateInited,
	}
}

func (s *Stream) Handle() uint32 {
	return s.handle
}

func (s *Stream) Channel() *Channel {
	return s.channel
}

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) Acquire() error {
	return s.send(evAcquire{})
}

func (s *Stream) SetFormat(cfg StreamConfig) error {
	return s.send(evSetFmt{cfg: cfg})
}

func (s *Stream) GetBufs() error {
	return s.send(evGetBuf{})
}

func (s *Stream) PutBufs() error {
	return s.send(evPutBuf{})
}

func (s *Stream) RegBufs() error {
	return s.send(evRegBuf{})
}

func (s *Stream) UnregBufs() error {
	return s.send(evUnregBuf{})
}

func (s *Stream) Start() error {
	return s.send(evStart{})
}

// Stop - must not be called from frame callbacks of the same stream
func (s *Stream) Stop() error {
	return s.send(evStop{})
}

func (s *Stream) Release() error {
	return s.send(evRelease{})
}

// QueuedCount - buffers in kernel queue of active stream
func (s *Stream) QueuedCount() (int, error) {
	var n int
	err := s.send(evQueuedCount{n: &n})
	return n, err
}

func (s *Stream) SetParm(id uint32, value int32) error {
	return s.send(evSetParm{id: id, value: value})
}

func (s *Stream) GetParm(id uint32) (int32, error) {
	var value int32
	err := s.send(evGetParm{id: id, value: &value})
	return value, err
}

func (s *Stream) DoAction(id uint32, value int32) error {
	return s.send(evDoAction{id: id, value: value})
}

// QBuf - buffer done. Doesn't take state lock, so consumers can call it from
// callbacks while Stop waits for them. Accepted in REG and ACTIVE.
func (s *Stream) QBuf(buf *Buffer) error {
	if buf == nil {
		return ErrBufIndex
	}

	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()

	if !s.registered {
		return fmt.Errorf("%w: QBUF on unregistered stream=%x", ErrInvalidState, s.handle)
	}

	if s.pool.check(buf.Index) != nil || s.pool.bufs[buf.Index] != buf {
		return fmt.Errorf("%w: %d", ErrBufIndex, buf.Index)
	}

	return s.releaseLocked(buf.Index)
}

func (s *Stream) bufDone(idx int) {
	s.pool.mu.Lock()
	if s.registered {
		_ = s.releaseLocked(idx)
	}
	s.pool.mu.Unlock()
}

func (s *Stream) releaseLocked(idx int) error {
	last, err := s.pool.release(idx)
	if err != nil {
		s.log.Error().Err(err).Caller().Msgf("[camera] stream=%x", s.handle)
		return err
	}
	if last {
		s.requeueLocked(idx)
	}
	return nil
}

// RegisterCallback - count is the number of frames to deliver, -1 for infinite
func (s *Stream) RegisterCallback(fn FrameFunc, user any, count int) (uint32, error) {
	if fn == nil || count == 0 || count < -1 {
		return 0, fmt.Errorf("camera: wrong callback count: %d", count)
	}

	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	for i, cb := range s.callbacks {
		if cb != nil {
			continue
		}

		s.cbCounter++
		id := s.cbCounter<<8 | uint32(i)
		s.callbacks[i] = &callback{id: id, fn: fn, user: user, count: count}
		return id, nil
	}

	return 0, ErrCallbackFull
}

// UnregisterCallback - frames already reserved for this callback are returned
// to the stream without calling it
func (s *Stream) UnregisterCallback(id uint32) error {
	s.cbMu.Lock()

	i := int(id & 0xFF)
	if i >= MaxCallbacks || s.callbacks[i] == nil || s.callbacks[i].id != id {
		s.cbMu.Unlock()
		return fmt.Errorf("%w: %x", ErrCallbackID, id)
	}

	s.callbacks[i].removed = true
	s.callbacks[i] = nil

	d := s.retireLocked()
	s.cbMu.Unlock()

	if d != nil {
		go s.retire(d)
	}
	return nil
}

// Link - every frame of this stream is also delivered to peer channel bundle
func (s *Stream) Link(peer *Stream) error {
	if peer == nil || peer == s {
		return errors.New("camera: wrong link peer")
	}

	s.cbMu.Lock()
	s.peer = peer
	s.cbMu.Unlock()
	return nil
}

func (s *Stream) Unlink() {
	s.cbMu.Lock()
	s.peer = nil
	s.cbMu.Unlock()
}

func (s *Stream) setBundled(b bool) {
	s.cbMu.Lock()
	s.bundled = b
	s.cbMu.Unlock()
}

type CallbackInfo struct {
	ID    uint32 `json:"id"`
	Count int    `json:"count"`
}

type StreamInfo struct {
	Handle     uint32           `json:"handle"`
	State      State            `json:"state"`
	Type       StreamType       `json:"type"`
	StreamID   uint32           `json:"stream_id,omitempty"`
	Format     string           `json:"format,omitempty"`
	Geometry   *layout.Geometry `json:"geometry,omitempty"`
	Buffers    []BufStatus      `json:"buffers,omitempty"`
	Queued     int              `json:"queued"`
	Callbacks  []CallbackInfo   `json:"callbacks,omitempty"`
	Bundled    bool             `json:"bundled,omitempty"`
	Linked     bool             `json:"linked,omitempty"`
	Dispatcher bool             `json:"dispatcher,omitempty"`
}

func (s *Stream) Info() *StreamInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := &StreamInfo{
		Handle:   s.handle,
		State:    s.state,
		Type:     s.config.Type,
		StreamID: s.streamID,
		Geometry: s.geom,
	}
	if s.geom != nil {
		info.Format = s.geom.Format.Name()
	}

	s.cbMu.Lock()
	for _, cb := range s.callbacks {
		if cb != nil {
			info.Callbacks = append(info.Callbacks, CallbackInfo{ID: cb.id, Count: cb.count})
		}
	}
	info.Bundled = s.bundled
	info.Linked = s.peer != nil
	info.Dispatcher = s.dispatcher != nil
	s.cbMu.Unlock()

	s.pool.mu.Lock()
	info.Buffers = append(info.Buffers, s.pool.status...)
	info.Queued = s.pool.queued
	s.pool.mu.Unlock()

	return info
}

// send - run event in current state, invalid events don't change state
func (s *Stream) send(ev event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state

	var err error
	switch s.state {
	case StateNotUsed:
		err = s.stateNotUsed(ev)
	case StateInited:
		err = s.stateInited(ev)
	case StateAcquired:
		err = s.stateAcquired(ev)
	case StateCfg:
		err = s.stateCfg(ev)
	case StateBuffed:
		err = s.stateBuffed(ev)
	case StateReg:
		err = s.stateReg(ev)
	case StateActive:
		err = s.stateActive(ev)
	default:
		err = s.invalid(ev)
	}

	if err != nil {
		s.log.Debug().Err(err).Msgf("[camera] stream=%x event=%s state=%s", s.handle, ev, s.state)
	} else if s.state != prev {
		s.log.Trace().Msgf("[camera] stream=%x %s: %s -> %s", s.handle, ev, prev, s.state)
	}

	return err
}

func (s *Stream) invalid(ev event) error {
	return fmt.Errorf("%w: %s in %s", ErrInvalidState, ev, s.state)
}

func (s *Stream) stateNotUsed(ev event) error {
	switch ev.(type) {
	case evRelease:
		return nil
	default:
		return s.invalid(ev)
	}
}

func (s *Stream) stateInited(ev event) error {
	switch ev.(type) {
	case evAcquire:
		return s.acquire()
	case evRelease:
		s.reset()
		return nil
	default:
		return s.invalid(ev)
	}
}

func (s *Stream) stateAcquired(ev event) error {
	switch ev := ev.(type) {
	case evSetFmt:
		return s.setFormat(ev.cfg)
	case evRelease:
		return s.release()
	case evSetParm, evGetParm, evDoAction:
		return s.control(ev)
	default:
		return s.invalid(ev)
	}
}

func (s *Stream) stateCfg(ev event) error {
	switch ev := ev.(type) {
	case evSetFmt:
		return s.setFormat(ev.cfg)
	case evGetBuf:
		return s.getBufs()
	case evRelease:
		return s.release()
	case evSetParm, evGetParm, evDoAction:
		return s.control(ev)
	default:
		return s.invalid(ev)
	}
}

func (s *Stream) stateBuffed(ev event) error {
	switch ev.(type) {
	case evPutBuf:
		s.putBufs()
		return nil
	case evRegBuf:
		return s.regBufs()
	case evRelease:
		return s.release()
	case evSetParm, evGetParm, evDoAction:
		return s.control(ev)
	default:
		return s.invalid(ev)
	}
}

func (s *Stream) stateReg(ev event) error {
	switch ev.(type) {
	case evUnregBuf:
		s.unregBufs()
		return nil
	case evStart:
		return s.start()
	case evStop:
		return nil
	case evRelease:
		return s.release()
	case evSetParm, evGetParm, evDoAction:
		return s.control(ev)
	default:
		return s.invalid(ev)
	}
}

func (s *Stream) stateActive(ev event) error {
	switch ev := ev.(type) {
	case evStop:
		s.stop()
		return nil
	case evQueuedCount:
		*ev.n = s.pool.QueuedCount()
		return nil
	case evRelease:
		return s.release()
	case evSetParm, evGetParm, evDoAction:
		return s.control(ev)
	default:
		return s.invalid(ev)
	}
}

func (s *Stream) acquire() error {
	dev, err := s.channel.camera.open(s.channel.camera.path)
	if err != nil {
		return err
	}

	id, err := dev.SetExtendedMode()
	if err != nil {
		_ = dev.Close()
		return err
	}

	s.dev = dev
	s.streamID = id
	s.state = StateAcquired
	return nil
}

func (s *Stream) setFormat(cfg StreamConfig) error {
	geom, err := layout.Calc(cfg.Format, cfg.Width, cfg.Height, cfg.Padding)
	if err != nil {
		return err
	}

	sizes, strides := geom.Sizes()
	if err = s.dev.SetFormat(geom.Width, geom.Height, uint32(geom.Format), sizes, strides); err != nil {
		return err
	}

	s.config = cfg
	s.geom = geom
	s.numPlanes = len(geom.Planes)
	s.state = StateCfg
	return nil
}

func (s *Stream) getBufs() error {
	count := s.config.Buffers

	alloc := s.config.Allocator
	if alloc == nil {
		alloc = &MemfdAllocator{Name: fmt.Sprintf("go2cam-%x", s.handle), Reserved: s.config.Reserved}
	}

	bufs, initial, err := alloc.GetBufs(s.geom, count)
	if err != nil {
		return err
	}

	if len(bufs) < count || len(initial) != len(bufs) {
		err = fmt.Errorf("%w: got %d of %d", ErrNoBuffers, len(bufs), count)
		return errors.Join(err, alloc.PutBufs(bufs))
	}

	for i, buf := range bufs {
		buf.Index = i
	}

	if m, ok := s.dev.(Mapper); ok {
		if err = mapBufs(m, bufs); err != nil {
			return errors.Join(err, alloc.PutBufs(bufs))
		}
	}

	s.pool.mu.Lock()
	s.pool.init(bufs, initial)
	s.pool.mu.Unlock()

	s.alloc = alloc
	s.state = StateBuffed
	return nil
}

func (s *Stream) putBufs() {
	s.pool.mu.Lock()
	bufs := s.pool.bufs
	s.pool.clear()
	s.pool.mu.Unlock()

	var errs []error
	if m, ok := s.dev.(Mapper); ok {
		errs = append(errs, unmapBufs(m, bufs))
	}
	errs = append(errs, s.alloc.PutBufs(bufs))

	if err := errors.Join(errs...); err != nil {
		s.log.Warn().Err(err).Caller().Msgf("[camera] stream=%x put bufs", s.handle)
	}

	s.alloc = nil
	s.state = StateCfg
}

func (s *Stream) regBufs() error {
	s.pool.mu.Lock()
	bufs := s.pool.bufs
	s.pool.mu.Unlock()

	if err := s.dev.RequestBuffers(len(bufs)); err != nil {
		return err
	}

	for i, buf := range bufs {
		n, err := s.dev.QueryBuffer(i)
		if err == nil && n != len(buf.Planes) {
			err = fmt.Errorf("camera: buffer=%d planes=%d, driver wants %d", i, len(buf.Planes), n)
		}
		if err != nil {
			_ = s.dev.RequestBuffers(0)
			return err
		}
	}

	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()

	for i := range bufs {
		if !s.pool.initial[i] {
			continue
		}
		if err := s.queueLocked(i); err != nil {
			s.pool.reset()
			_ = s.dev.RequestBuffers(0)
			return err
		}
	}

	s.registered = true
	s.state = StateReg
	return nil
}

func (s *Stream) unregBufs() {
	s.pool.mu.Lock()
	s.registered = false
	s.pool.reset()
	s.pool.mu.Unlock()

	if err := s.dev.RequestBuffers(0); err != nil {
		s.log.Warn().Err(err).Caller().Msgf("[camera] stream=%x unreg bufs", s.handle)
	}

	s.state = StateBuffed
}

func (s *Stream) start() error {
	var d *dispatch.Thread[delivery]

	s.cbMu.Lock()
	if s.dispatcher == nil && s.hasCallbacksLocked() {
		d = s.startDispatcherLocked()
	}
	s.cbMu.Unlock()

	if err := s.dev.StreamOn(); err != nil {
		if d != nil {
			s.cbMu.Lock()
			if s.dispatcher == d {
				s.dispatcher = nil
			}
			s.cbMu.Unlock()
			d.Stop()
		}
		return err
	}

	s.pool.mu.Lock()
	s.active = true
	s.updatePollLocked()
	s.pool.mu.Unlock()

	if err := s.channel.poller.Commit(); err != nil {
		s.log.Warn().Err(err).Caller().Send()
	}

	s.state = StateActive
	return nil
}

// stop - best effort, always ends in REG
func (s *Stream) stop() {
	s.pool.mu.Lock()
	s.active = false
	s.watching = false
	s.pool.mu.Unlock()

	// no notify for this stream after sync remove
	if err := s.channel.poller.Remove(s.handle, poll.Sync); err != nil {
		s.log.Warn().Err(err).Caller().Send()
	}

	s.pool.mu.Lock()

	if err := s.dev.StreamOff(); err != nil {
		s.log.Warn().Err(err).Caller().Msgf("[camera] stream=%x stream off", s.handle)
	}

	// kernel gave back everything, queue idle buffers for the next start
	for i, st := range s.pool.status {
		if st.InKernel {
			s.pool.status[i].InKernel = false
			s.pool.queued--
		}
	}
	for i := range s.pool.status {
		if s.pool.idle(i) {
			if err := s.queueLocked(i); err != nil {
				s.log.Warn().Err(err).Caller().Msgf("[camera] stream=%x buffer=%d", s.handle, i)
			}
		}
	}
	s.pool.mu.Unlock()

	s.cbMu.Lock()
	ds := s.retiring
	if s.dispatcher != nil {
		ds = append(ds, s.dispatcher)
	}
	s.dispatcher = nil
	s.retiring = nil
	s.cbMu.Unlock()

	// callbacks return their frames while REG
	for _, d := range ds {
		d.Stop()
	}

	s.state = StateReg
}

func (s *Stream) release() error {
	if s.state == StateActive {
		s.stop()
	}
	if s.state == StateReg {
		s.unregBufs()
	}
	if s.state == StateBuffed {
		s.putBufs()
	}

	if err := s.dev.Close(); err != nil {
		s.log.Warn().Err(err).Caller().Msgf("[camera] stream=%x close", s.handle)
	}

	s.reset()
	return nil
}

// reset - zero state, stream can't be used anymore
func (s *Stream) reset() {
	s.cbMu.Lock()
	for i, cb := range s.callbacks {
		if cb != nil {
			cb.removed = true
			s.callbacks[i] = nil
		}
	}
	s.bundled = false
	s.peer = nil
	s.cbMu.Unlock()

	s.dev = nil
	s.streamID = 0
	s.config = StreamConfig{}
	s.geom = nil
	s.numPlanes = 0
	s.state = StateNotUsed
}

func (s *Stream) control(ev event) error {
	switch ev := ev.(type) {
	case evSetParm:
		return s.dev.SetControl(ev.id, ev.value)
	case evGetParm:
		value, err := s.dev.GetControl(ev.id)
		*ev.value = value
		return err
	case evDoAction:
		return s.dev.SetControl(ev.id, ev.value)
	default:
		return s.invalid(ev)
	}
}

func (s *Stream) hasCallbacksLocked() bool {
	for _, cb := range s.callbacks {
		if cb != nil {
			return true
		}
	}
	return false
}

func (s *Stream) startDispatcherLocked() *dispatch.Thread[delivery] {
	name := fmt.Sprintf("%s/%x", s.channel.name, s.handle)
	s.dispatcher = dispatch.Start(name, s.deliver)
	return s.dispatcher
}

// retireLocked - detach dispatcher when callbacks table is empty
func (s *Stream) retireLocked() *dispatch.Thread[delivery] {
	d := s.dispatcher
	if d == nil || s.hasCallbacksLocked() {
		return nil
	}

	s.dispatcher = nil
	s.retiring = append(s.retiring, d)
	return d
}

// retire - may run from the dispatcher's own callback, so never inline
func (s *Stream) retire(d *dispatch.Thread[delivery]) {
	d.Stop()

	s.cbMu.Lock()
	for i, r := range s.retiring {
		if r == d {
			s.retiring = append(s.retiring[:i], s.retiring[i+1:]...)
			break
		}
	}
	s.cbMu.Unlock()
}

// notify - poll goroutine, frame arrived to the stream descriptor
func (s *Stream) notify() {
	s.cbMu.Lock()
	s.pool.mu.Lock()

	if !s.active {
		// stop in progress, the descriptor is being removed
		s.pool.mu.Unlock()
		s.cbMu.Unlock()
		return
	}

	dq, err := s.dev.DequeueBuffer(s.numPlanes)
	if err != nil {
		s.pool.mu.Unlock()
		s.cbMu.Unlock()
		if !errors.Is(err, unix.EAGAIN) {
			s.log.Error().Err(err).Caller().Msgf("[camera] stream=%x dequeue", s.handle)
		}
		return
	}

	if err = s.pool.dequeued(dq.Index); err != nil {
		// kernel and pool disagree, nobody can return an idle buffer
		s.log.Error().Err(err).Caller().Msgf("[camera] stream=%x buffer status broken", s.handle)
		if s.pool.check(dq.Index) == nil && s.pool.idle(dq.Index) {
			s.requeueLocked(dq.Index)
		}
		s.pool.mu.Unlock()
		s.cbMu.Unlock()
		return
	}

	s.updatePollLocked()

	idx := dq.Index
	buf := s.pool.bufs[idx]
	buf.Sequence = dq.Sequence
	buf.Timestamp = dq.Timestamp
	buf.BytesUsed = dq.BytesUsed

	frame := &Frame{
		Stream:    s,
		Buffer:    buf,
		Handle:    s.handle,
		Type:      s.config.Type,
		Index:     idx,
		Sequence:  dq.Sequence,
		Timestamp: dq.Timestamp,
		BytesUsed: dq.BytesUsed,
	}

	var refs int
	var bundle, linked *Channel

	if s.bundled {
		bundle = s.channel
		refs++
	}
	if s.peer != nil {
		linked = s.peer.channel
		refs++
	}

	var regs []*callback
	for i, cb := range s.callbacks {
		if cb == nil {
			continue
		}
		regs = append(regs, cb)
		if cb.count > 0 {
			if cb.count--; cb.count == 0 {
				// exhausted, still gets this frame
				s.callbacks[i] = nil
			}
		}
	}
	refs += len(regs)

	var d *dispatch.Thread[delivery]
	var retire bool
	if regs != nil {
		if d = s.dispatcher; d == nil {
			d = s.startDispatcherLocked()
		}
		// last finite callback exhausted
		retire = s.retireLocked() != nil
	}

	if refs == 0 {
		s.requeueLocked(idx)
	} else {
		s.pool.hold(idx, refs)
	}

	s.pool.mu.Unlock()
	s.cbMu.Unlock()

	if bundle != nil {
		if err = bundle.deliver(frame); err != nil {
			s.bufDone(idx)
		}
	}

	if linked != nil {
		if err = linked.deliver(frame); err != nil {
			s.bufDone(idx)
		}
	}

	if d != nil {
		if err = d.Enqueue(delivery{frame: frame, regs: regs}); err != nil {
			for range regs {
				s.bufDone(idx)
			}
		}
		if retire {
			go s.retire(d)
		}
	}
}

// deliver - stream dispatcher goroutine
func (s *Stream) deliver(d delivery) {
	for _, cb := range d.regs {
		s.cbMu.Lock()
		removed := cb.removed
		s.cbMu.Unlock()

		if removed {
			s.bufDone(d.frame.Index)
			continue
		}

		cb.fn(d.frame, cb.user)
	}
}

func (s *Stream) queueLocked(idx int) error {
	buf := s.pool.bufs[idx]

	planes := make([]device.Plane, len(buf.Planes))
	for i, p := range buf.Planes {
		planes[i] = device.Plane{
			Ptr:    uintptr(unsafe.Pointer(&p.Data[0])),
			Length: uint32(len(p.Data)),
		}
	}

	if err := s.dev.QueueBuffer(idx, planes); err != nil {
		return err
	}

	s.pool.enqueued(idx)
	return nil
}

func (s *Stream) requeueLocked(idx int) {
	if err := s.queueLocked(idx); err != nil {
		s.log.Error().Err(err).Caller().Msgf("[camera] stream=%x buffer=%d", s.handle, idx)
		return
	}
	s.updatePollLocked()
}

// updatePollLocked - descriptor is watched only while active and kernel has
// at least one buffer
func (s *Stream) updatePollLocked() {
	want := s.active && s.pool.queued > 0
	if want == s.watching {
		return
	}

	var err error
	if want {
		err = s.channel.poller.Add(s.handle, s.dev.Fd(), s.notify, poll.Async)
	} else {
		err = s.channel.poller.Remove(s.handle, poll.Async)
	}
	if err != nil {
		s.log.Error().Err(err).Caller().Msgf("[camera] stream=%x watch=%t", s.handle, want)
		return
	}

	s.watching = want
}
