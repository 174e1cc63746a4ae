package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AlexxIT/go2cam/internal/app"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Response(w, "OK", MimeText)
	})
	handler := newHandler(next, "", "admin", "secret")

	r := httptest.NewRequest("GET", "/api", nil)
	r.RemoteAddr = "192.168.1.10:5000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, `Basic realm="go2cam"`, w.Header().Get("Www-Authenticate"))

	r.SetBasicAuth("admin", "secret")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())

	// localhost without auth
	r = httptest.NewRequest("GET", "/api", nil)
	r.RemoteAddr = "127.0.0.1:5000"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMiddlewareCORS(t *testing.T) {
	handler := newHandler(http.NotFoundHandler(), "*", "", "")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api", nil))
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPIHandler(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://cam.local:1984/api", nil)
	apiHandler(w, r)

	require.Equal(t, MimeJSON, w.Header().Get("Content-Type"))

	var info map[string]any
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.Equal(t, app.Version, info["version"])
	require.Equal(t, "cam.local:1984", info["host"])
}

func TestLogHandler(t *testing.T) {
	app.MemoryLog.Reset()
	_, _ = app.MemoryLog.Write([]byte(`{"level":"info","message":"[v4l2] start"}` + "\n"))

	w := httptest.NewRecorder()
	logHandler(w, httptest.NewRequest("GET", "/api/log", nil))
	require.Equal(t, "application/jsonlines", w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), "[v4l2] start")

	w = httptest.NewRecorder()
	logHandler(w, httptest.NewRequest("DELETE", "/api/log", nil))
	require.Equal(t, "OK", w.Body.String())
	require.Empty(t, app.MemoryLog.Bytes())

	w = httptest.NewRecorder()
	logHandler(w, httptest.NewRequest("PUT", "/api/log", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
