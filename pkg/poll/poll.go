//go:build linux

package poll

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// MaxEntries - data descriptors per poller, control pipe is not counted
const MaxEntries = 8

type Mode byte

const (
	Async Mode = iota
	Sync
)

// control pipe record tags
const (
	cmdEntriesUpdated uint32 = iota + 1
	cmdEntriesUpdatedAsync
	cmdCommit
	cmdExit
)

const recordSize = 8

var (
	ErrClosed    = errors.New("poll: closed")
	ErrTableFull = errors.New("poll: table full")
	ErrHandle    = errors.New("poll: zero handle")
)

type entry struct {
	handle uint32
	fd     int
	notify func()
}

// Poller - single goroutine waiting in poll(2) on all registered descriptors.
// Table changes are requested through the control pipe and applied only by
// the poll goroutine.
type Poller struct {
	name string
	log  zerolog.Logger

	rfd, wfd int

	mu      sync.Mutex
	cond    *sync.Cond
	entries [MaxEntries]entry
	seq     uint32 // last written record
	applied uint32 // last processed record
	closed  bool
	err     error // poll goroutine failed

	poll func(fds []unix.PollFd, timeout int) (int, error)
	done chan struct{}
}

func New(name string, log zerolog.Logger) (*Poller, error) {
	return newPoller(name, log, unix.Poll)
}

func newPoller(name string, log zerolog.Logger, poll func([]unix.PollFd, int) (int, error)) (*Poller, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, err
	}

	p := &Poller{
		name: name,
		log:  log,
		rfd:  fds[0],
		wfd:  fds[1],
		poll: poll,
		done: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	go p.run()

	return p, nil
}

// Add - start watching fd, existing handle is replaced
func (p *Poller) Add(handle uint32, fd int, notify func(), mode Mode) error {
	if handle == 0 {
		return ErrHandle
	}

	p.mu.Lock()

	free := -1
	for i, e := range p.entries {
		if e.handle == handle {
			free = i
			break
		}
		if e.handle == 0 && free < 0 {
			free = i
		}
	}

	if free < 0 {
		p.mu.Unlock()
		return ErrTableFull
	}

	p.entries[free] = entry{handle: handle, fd: fd, notify: notify}

	return p.update(mode)
}

// Remove - stop watching handle. Sync mode guarantees notify for this handle
// won't be called after return.
func (p *Poller) Remove(handle uint32, mode Mode) error {
	p.mu.Lock()

	for i, e := range p.entries {
		if e.handle == handle {
			p.entries[i] = entry{}
			break
		}
	}

	return p.update(mode)
}

// Commit - wait until all previous async updates are applied
func (p *Poller) Commit() error {
	p.mu.Lock()
	return p.request(cmdCommit, true)
}

func (p *Poller) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	// failed goroutine is already gone
	if p.err == nil {
		if err := p.write(cmdExit); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	p.closed = true
	p.mu.Unlock()

	<-p.done

	return errors.Join(unix.Close(p.rfd), unix.Close(p.wfd))
}

func (p *Poller) Len() (n int) {
	p.mu.Lock()
	for _, e := range p.entries {
		if e.handle != 0 {
			n++
		}
	}
	p.mu.Unlock()
	return
}

// update must be called with locked mutex, unlocks it
func (p *Poller) update(mode Mode) error {
	if mode == Sync {
		return p.request(cmdEntriesUpdated, true)
	}
	return p.request(cmdEntriesUpdatedAsync, false)
}

// request must be called with locked mutex, unlocks it
func (p *Poller) request(tag uint32, wait bool) error {
	defer p.mu.Unlock()

	if err := p.write(tag); err != nil {
		return err
	}

	if wait {
		seq := p.seq
		for p.applied < seq && !p.closed && p.err == nil {
			p.cond.Wait()
		}
	}

	return nil
}

func (p *Poller) write(tag uint32) error {
	if p.closed {
		return ErrClosed
	}
	if p.err != nil {
		return p.err
	}

	p.seq++

	var b [recordSize]byte
	binary.LittleEndian.PutUint32(b[0:], tag)
	binary.LittleEndian.PutUint32(b[4:], p.seq)

	if _, err := unix.Write(p.wfd, b[:]); err != nil {
		p.seq--
		return err
	}

	return nil
}

func (p *Poller) run() {
	defer close(p.done)

	const events = unix.POLLIN | unix.POLLRDNORM | unix.POLLPRI

	fds := []unix.PollFd{{Fd: int32(p.rfd), Events: unix.POLLIN}}
	var table []entry

	p.log.Trace().Msgf("[poll] %s started", p.name)

	for {
		if _, err := p.poll(fds, -1); err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			p.fail(err)
			return
		}

		// data events first, with the table they were polled for
		for i, pfd := range fds[1:] {
			if pfd.Revents == 0 {
				continue
			}
			if pfd.Revents&events == 0 {
				p.log.Trace().Msgf("[poll] %s handle=%d revents=%x", p.name, table[i].handle, pfd.Revents)
			}
			table[i].notify()
		}

		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		exit, changed := p.readControl()

		if changed || exit {
			table = p.snapshot()
			fds = fds[:1]
			for _, e := range table {
				fds = append(fds, unix.PollFd{Fd: int32(e.fd), Events: events})
			}
		}

		if exit {
			p.log.Trace().Msgf("[poll] %s exit", p.name)
			return
		}
	}
}

// fail - stop the goroutine, pending and future requests get err
func (p *Poller) fail(err error) {
	p.log.Error().Err(err).Caller().Msgf("[poll] %s", p.name)

	p.mu.Lock()
	p.err = fmt.Errorf("poll: %s: %w", p.name, err)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// readControl drains control pipe and wakes up waiting callers
func (p *Poller) readControl() (exit, changed bool) {
	var last uint32
	var b [recordSize * 16]byte

	for {
		n, err := unix.Read(p.rfd, b[:])
		if n <= 0 || err != nil {
			break
		}

		for i := 0; i+recordSize <= n; i += recordSize {
			tag := binary.LittleEndian.Uint32(b[i:])
			last = binary.LittleEndian.Uint32(b[i+4:])

			switch tag {
			case cmdEntriesUpdated, cmdEntriesUpdatedAsync, cmdCommit:
				changed = true
			case cmdExit:
				exit = true
			default:
				p.log.Error().Msgf("[poll] %s unknown command: %d", p.name, tag)
			}
		}
	}

	if last != 0 {
		p.mu.Lock()
		p.applied = last
		p.cond.Broadcast()
		p.mu.Unlock()
	}

	return
}

func (p *Poller) snapshot() []entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var table []entry
	for _, e := range p.entries {
		if e.handle != 0 {
			table = append(table, e)
		}
	}
	return table
}
