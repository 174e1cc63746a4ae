package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/AlexxIT/go2cam/internal/api"
	"github.com/AlexxIT/go2cam/internal/app"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func Init() {
	var cfg struct {
		Mod struct {
			Origin string `yaml:"origin"`
		} `yaml:"api"`
	}

	app.LoadConfig(&cfg)

	log = app.GetLogger("api")

	initWS(cfg.Mod.Origin)

	api.HandleFunc("api/ws", apiWS)
}

var log = zerolog.Nop()

// Message - struct for data exchange in Web API
type Message struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
	Raw   []byte `json:"-"`
}

func (m *Message) String() (value string) {
	_ = json.Unmarshal(m.Raw, &value)
	return
}

func (m *Message) Unmarshal(v any) error {
	return json.Unmarshal(m.Raw, v)
}

type WSHandler func(tr *Transport, msg *Message) error

var handlersMu sync.RWMutex
var wsHandlers = make(map[string]WSHandler)

func HandleFunc(msgType string, handler WSHandler) {
	handlersMu.Lock()
	wsHandlers[msgType] = handler
	handlersMu.Unlock()
}

func getHandler(msgType string) WSHandler {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return wsHandlers[msgType]
}

func initWS(origin string) {
	wsUp = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 64 * 1024,
	}

	switch origin {
	case "":
		// same origin + ignore port
		wsUp.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header["Origin"]
			if len(origin) == 0 {
				return true
			}
			o, err := url.Parse(origin[0])
			if err != nil {
				return false
			}
			if o.Host == r.Host {
				return true
			}
			log.Trace().Msgf("[api] ws origin=%s, host=%s", o.Host, r.Host)
			if i := strings.IndexByte(o.Host, ':'); i > 0 {
				return o.Host[:i] == r.Host
			}
			return false
		}
	case "*":
		wsUp.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
}

func apiWS(w http.ResponseWriter, r *http.Request) {
	ws, err := wsUp.Upgrade(w, r, nil)
	if err != nil {
		origin := r.Header.Get("Origin")
		log.Error().Err(err).Caller().Msgf("host=%s origin=%s", r.Host, origin)
		return
	}

	tr := NewTransport(r, func(msg any) error {
		_ = ws.SetWriteDeadline(time.Now().Add(time.Second * 5))
		return ws.WriteJSON(msg)
	})

	for {
		var raw struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		}
		if err = ws.ReadJSON(&raw); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
				log.Trace().Err(err).Caller().Send()
			}
			break
		}

		msg := &Message{Type: raw.Type, Raw: raw.Value}

		log.Trace().Str("type", msg.Type).Msg("[api] ws msg")

		if handler := getHandler(msg.Type); handler != nil {
			go func() {
				if err := handler(tr, msg); err != nil {
					_ = tr.Write(&Message{Type: "error", Value: msg.Type + ": " + err.Error()})
				}
			}()
		} else {
			_ = tr.Write(&Message{Type: "error", Value: "unknown type: " + msg.Type})
		}
	}

	tr.Close()
	_ = ws.Close()
}

var wsUp *websocket.Upgrader

var ErrClosed = errors.New("ws: transport closed")

// Transport - one WebSocket connection, Write is safe from any goroutine
type Transport struct {
	Request *http.Request

	closed bool
	mx     sync.Mutex
	wrmx   sync.Mutex

	onWrite func(msg any) error
	onClose []func()
}

func NewTransport(r *http.Request, onWrite func(msg any) error) *Transport {
	return &Transport{Request: r, onWrite: onWrite}
}

func (t *Transport) Write(msg any) error {
	t.mx.Lock()
	closed := t.closed
	t.mx.Unlock()
	if closed {
		return ErrClosed
	}

	t.wrmx.Lock()
	defer t.wrmx.Unlock()
	return t.onWrite(msg)
}

// Close - run OnClose functions in reverse order
func (t *Transport) Close() {
	t.mx.Lock()
	if t.closed {
		t.mx.Unlock()
		return
	}
	t.closed = true
	fns := t.onClose
	t.onClose = nil
	t.mx.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// OnClose - f is called immediately if transport already closed
func (t *Transport) OnClose(f func()) {
	t.mx.Lock()
	if t.closed {
		t.mx.Unlock()
		f()
		return
	}
	t.onClose = append(t.onClose, f)
	t.mx.Unlock()
}
