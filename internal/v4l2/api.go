//go:build linux && (386 || arm || amd64 || arm64)

package v4l2

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/AlexxIT/go2cam/internal/api"
	"github.com/AlexxIT/go2cam/internal/api/ws"
	"github.com/AlexxIT/go2cam/pkg/camera"
	"github.com/AlexxIT/go2cam/pkg/layout"
	"github.com/AlexxIT/go2cam/pkg/v4l2/device"
)

type formatInfo struct {
	Name   string   `json:"name"`
	FourCC string   `json:"fourcc"`
	Sizes  []string `json:"sizes,omitempty"`
}

type deviceInfo struct {
	Path string `json:"path"`
	*device.Capability
	Formats []formatInfo `json:"formats,omitempty"`
}

// apiDevices - capability probe of all /dev/video* nodes
func apiDevices(w http.ResponseWriter, r *http.Request) {
	files, err := os.ReadDir("/dev")
	if err != nil {
		api.Error(w, err)
		return
	}

	devices := []*deviceInfo{}

	for _, file := range files {
		if !strings.HasPrefix(file.Name(), "video") {
			continue
		}

		path := "/dev/" + file.Name()

		dev, err := device.Open(path)
		if err != nil {
			continue
		}

		if info := probeDevice(dev); info != nil {
			devices = append(devices, info)
		}

		_ = dev.Close()
	}

	api.ResponsePrettyJSON(w, devices)
}

func probeDevice(dev *device.Device) *deviceInfo {
	caps, err := dev.Capability()
	if err != nil {
		log.Trace().Err(err).Msgf("[v4l2] probe %s", dev.Path())
		return nil
	}

	info := &deviceInfo{Path: dev.Path(), Capability: caps}

	formats, _ := dev.ListFormats()
	for _, fourCC := range formats {
		format := layout.Format(fourCC)
		fi := formatInfo{Name: format.Name(), FourCC: format.String()}

		sizes, _ := dev.ListSizes(fourCC)
		for _, size := range sizes {
			fi.Sizes = append(fi.Sizes, fmt.Sprintf("%dx%d", size[0], size[1]))
		}

		info.Formats = append(info.Formats, fi)
	}

	return info
}

type channelInfo struct {
	Name    string               `json:"name"`
	Handle  uint32               `json:"handle"`
	Bundle  bool                 `json:"bundle,omitempty"`
	Clients int                  `json:"clients,omitempty"`
	Streams []*camera.StreamInfo `json:"streams"`
}

type cameraInfo struct {
	Name     string         `json:"name"`
	Path     string         `json:"path"`
	Channels []*channelInfo `json:"channels"`
}

func streamsInfo(filter string) []*cameraInfo {
	mu.Lock()
	names := sortedKeys(cameras)
	mu.Unlock()

	items := []*cameraInfo{}

	for _, name := range names {
		if filter != "" && filter != name {
			continue
		}

		cam := getCamera(name)
		if cam == nil {
			continue
		}

		item := &cameraInfo{Name: name, Path: cam.Path(), Channels: []*channelInfo{}}

		for _, ch := range cam.Channels() {
			ci := &channelInfo{Name: ch.Name(), Handle: ch.Handle(), Streams: []*camera.StreamInfo{}}
			if h := getHub(ch); h != nil {
				ci.Bundle = true
				ci.Clients = h.len()
			}
			for _, s := range ch.Streams() {
				ci.Streams = append(ci.Streams, s.Info())
			}
			item.Channels = append(item.Channels, ci)
		}

		items = append(items, item)
	}

	return items
}

// apiStreams:
// - GET  ?camera=  - status of all streams
// - POST ?camera=&channel=&action=start|stop[&stream=]
func apiStreams(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	switch r.Method {
	case "GET":
		api.ResponseJSON(w, streamsInfo(query.Get("camera")))

	case "POST":
		handle, err := parseHandle(query.Get("stream"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ch, s, err := findStream(query.Get("camera"), query.Get("channel"), handle)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		switch action := query.Get("action"); action {
		case "start":
			if s != nil {
				err = s.Start()
			} else {
				err = ch.Start()
			}
		case "stop":
			if s != nil {
				err = s.Stop()
			} else {
				err = ch.Stop()
			}
		default:
			http.Error(w, "wrong action: "+action, http.StatusBadRequest)
			return
		}

		if err != nil {
			responseError(w, err)
			return
		}

		api.Response(w, "OK", api.MimeText)

	default:
		http.Error(w, "Method not allowed", http.StatusBadRequest)
	}
}

// apiParm:
// - GET  ?camera=&channel=&stream=&id=
// - POST ?camera=&channel=&stream=&id=&value=[&action=1]
func apiParm(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	handle, err := parseHandle(query.Get("stream"))
	if err != nil || handle == 0 {
		http.Error(w, "wrong stream", http.StatusBadRequest)
		return
	}

	id, err := strconv.ParseUint(query.Get("id"), 0, 32)
	if err != nil {
		http.Error(w, "wrong id", http.StatusBadRequest)
		return
	}

	_, s, err := findStream(query.Get("camera"), query.Get("channel"), handle)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	switch r.Method {
	case "GET":
		value, err := s.GetParm(uint32(id))
		if err != nil {
			responseError(w, err)
			return
		}
		api.ResponseJSON(w, map[string]any{"id": id, "value": value})

	case "POST":
		value, err := strconv.ParseInt(query.Get("value"), 0, 32)
		if err != nil {
			http.Error(w, "wrong value", http.StatusBadRequest)
			return
		}

		if query.Get("action") != "" {
			err = s.DoAction(uint32(id), int32(value))
		} else {
			err = s.SetParm(uint32(id), int32(value))
		}
		if err != nil {
			responseError(w, err)
			return
		}

		api.Response(w, "OK", api.MimeText)

	default:
		http.Error(w, "Method not allowed", http.StatusBadRequest)
	}
}

func parseHandle(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	handle, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("v4l2: wrong handle: %s", s)
	}
	return uint32(handle), nil
}

func responseError(w http.ResponseWriter, err error) {
	if errors.Is(err, camera.ErrInvalidState) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	api.Error(w, err)
}

type subscribeRequest struct {
	Camera  string `json:"camera"`
	Channel string `json:"channel"`
	Stream  uint32 `json:"stream"`
	Count   int    `json:"count"`
}

// wsHandler - subscribe to stream frames, or to channel bundle when stream
// is empty
func wsHandler(tr *ws.Transport, msg *ws.Message) error {
	var req subscribeRequest
	if err := msg.Unmarshal(&req); err != nil {
		return err
	}

	ch, s, err := findStream(req.Camera, req.Channel, req.Stream)
	if err != nil {
		return err
	}

	if s == nil {
		h := getHub(ch)
		if h == nil {
			return fmt.Errorf("v4l2: channel not bundled: %s", ch.Name())
		}

		h.add(tr)
		tr.OnClose(func() {
			h.remove(tr)
		})

		return tr.Write(&ws.Message{Type: "v4l2", Value: map[string]any{"channel": ch.Handle()}})
	}

	count := req.Count
	if count == 0 {
		count = -1
	}

	id, err := s.RegisterCallback(onFrame, tr, count)
	if err != nil {
		return err
	}

	tr.OnClose(func() {
		// finite callback may be already exhausted
		_ = s.UnregisterCallback(id)
	})

	log.Trace().Msgf("[v4l2] stream=%x callback=%x", s.Handle(), id)

	return tr.Write(&ws.Message{Type: "v4l2", Value: map[string]any{"stream": s.Handle(), "callback": id}})
}
