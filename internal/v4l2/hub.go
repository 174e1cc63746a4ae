//go:build linux && (386 || arm || amd64 || arm64)

package v4l2

import (
	"sync"

	"github.com/AlexxIT/go2cam/internal/api/ws"
	"github.com/AlexxIT/go2cam/pkg/camera"
)

// hub - WebSocket subscribers of channel bundle
type hub struct {
	mu   sync.Mutex
	subs []*ws.Transport
}

func (h *hub) add(tr *ws.Transport) {
	h.mu.Lock()
	h.subs = append(h.subs, tr)
	h.mu.Unlock()
}

func (h *hub) remove(tr *ws.Transport) {
	h.mu.Lock()
	for i, sub := range h.subs {
		if sub == tr {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// consume - bundle consumer, buffer is returned after fan-out
func (h *hub) consume(frame *camera.Frame) {
	h.mu.Lock()
	subs := append([]*ws.Transport(nil), h.subs...)
	h.mu.Unlock()

	msg := &ws.Message{Type: "frame", Value: frame}
	for _, tr := range subs {
		_ = tr.Write(msg)
	}

	if err := frame.Done(); err != nil {
		log.Warn().Err(err).Msgf("[v4l2] stream=%x buffer=%d", frame.Handle, frame.Index)
	}
}

// onFrame - stream callback, user is subscriber transport
func onFrame(frame *camera.Frame, user any) {
	if tr, ok := user.(*ws.Transport); ok {
		_ = tr.Write(&ws.Message{Type: "frame", Value: frame})
	}

	if err := frame.Done(); err != nil {
		log.Warn().Err(err).Msgf("[v4l2] stream=%x buffer=%d", frame.Handle, frame.Index)
	}
}
