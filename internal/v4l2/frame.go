//go:build linux && (386 || arm || amd64 || arm64)

package v4l2

import (
	"net/http"
	"strconv"
	"time"

	"github.com/AlexxIT/go2cam/pkg/camera"
	"github.com/AlexxIT/go2cam/pkg/layout"
	"github.com/AlexxIT/go2cam/pkg/mjpeg"
)

var frameTimeout = 5 * time.Second

// frameBytes - copy of used part of all planes
func frameBytes(frame *camera.Frame) []byte {
	var b []byte
	for i, p := range frame.Buffer.Planes {
		n := len(p.Data)
		if i < len(frame.BytesUsed) && frame.BytesUsed[i] > 0 && int(frame.BytesUsed[i]) < n {
			n = int(frame.BytesUsed[i])
		}
		b = append(b, p.Data[:n]...)
	}
	return b
}

func streamFromQuery(w http.ResponseWriter, r *http.Request) *camera.Stream {
	query := r.URL.Query()

	handle, err := parseHandle(query.Get("stream"))
	if err != nil || handle == 0 {
		http.Error(w, "wrong stream", http.StatusBadRequest)
		return nil
	}

	_, s, err := findStream(query.Get("camera"), query.Get("channel"), handle)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil
	}

	return s
}

// apiFrame - next frame of stream, JPEG as image, other formats as raw planes
func apiFrame(w http.ResponseWriter, r *http.Request) {
	s := streamFromQuery(w, r)
	if s == nil {
		return
	}

	ch := make(chan []byte, 1)

	id, err := s.RegisterCallback(func(frame *camera.Frame, _ any) {
		b := frameBytes(frame)
		_ = frame.Done()
		ch <- b
	}, nil, 1)
	if err != nil {
		responseError(w, err)
		return
	}

	var b []byte

	select {
	case b = <-ch:
	case <-time.After(frameTimeout):
		_ = s.UnregisterCallback(id)
		http.Error(w, "frame timeout", http.StatusGatewayTimeout)
		return
	case <-r.Context().Done():
		_ = s.UnregisterCallback(id)
		return
	}

	info := s.Info()

	header := w.Header()
	header.Set("Cache-Control", "no-cache")
	header.Set("Content-Length", strconv.Itoa(len(b)))

	if info.Geometry != nil && info.Geometry.Format == layout.FormatJPEG {
		header.Set("Content-Type", "image/jpeg")
	} else {
		header.Set("Content-Type", "application/octet-stream")
		header.Set("X-Format", info.Format)
		if info.Geometry != nil {
			header.Set("X-Size", strconv.Itoa(info.Geometry.Width)+"x"+strconv.Itoa(info.Geometry.Height))
		}
	}

	if _, err = w.Write(b); err != nil {
		log.Trace().Err(err).Caller().Send()
	}
}

// apiMJPEG - multipart stream of JPEG stream frames, slow client skips frames
func apiMJPEG(w http.ResponseWriter, r *http.Request) {
	s := streamFromQuery(w, r)
	if s == nil {
		return
	}

	if info := s.Info(); info.Geometry == nil || info.Geometry.Format != layout.FormatJPEG {
		http.Error(w, "stream format is not JPEG", http.StatusBadRequest)
		return
	}

	ch := make(chan []byte, 1)

	id, err := s.RegisterCallback(func(frame *camera.Frame, _ any) {
		b := frameBytes(frame)
		_ = frame.Done()
		// single callback goroutine, newest frame replaces unsent one
		select {
		case <-ch:
		default:
		}
		ch <- b
	}, nil, -1)
	if err != nil {
		responseError(w, err)
		return
	}

	defer func() {
		_ = s.UnregisterCallback(id)
	}()

	wr := mjpeg.NewWriter(w)

	for {
		select {
		case b := <-ch:
			if _, err = wr.Write(b); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
