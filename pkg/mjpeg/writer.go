package mjpeg

import (
	"io"
	"net/http"
	"strconv"
)

const ContentType = "multipart/x-mixed-replace; boundary=frame"

// NewWriter - every Write is one JPEG part of multipart response
func NewWriter(w http.ResponseWriter) io.Writer {
	w.Header().Set("Content-Type", ContentType)
	wr := &writer{wr: w, buf: []byte(header)}
	wr.flusher, _ = w.(http.Flusher)
	return wr
}

const header = "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: "

type writer struct {
	wr      io.Writer
	flusher http.Flusher
	buf     []byte
}

func (w *writer) Write(p []byte) (n int, err error) {
	w.buf = w.buf[:len(header)]
	w.buf = append(w.buf, strconv.Itoa(len(p))...)
	w.buf = append(w.buf, "\r\n\r\n"...)
	w.buf = append(w.buf, p...)
	w.buf = append(w.buf, "\r\n"...)

	// part and its tail in one write, some browsers show previous image
	if _, err = w.wr.Write(w.buf); err != nil {
		return 0, err
	}

	if w.flusher != nil {
		w.flusher.Flush()
	}

	return len(p), nil
}
