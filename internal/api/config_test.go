package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlexxIT/go2cam/internal/app"
	"github.com/stretchr/testify/require"
)

func TestConfigHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "go2cam.yaml")
	require.Nil(t, os.WriteFile(path, []byte("api:\n  listen: :1984\n"), 0644))

	app.ConfigPath = path
	defer func() { app.ConfigPath = "" }()

	w := httptest.NewRecorder()
	configHandler(w, httptest.NewRequest("GET", "/api/config", nil))
	require.Equal(t, MimeYAML, w.Header().Get("Content-Type"))
	require.Equal(t, "api:\n  listen: :1984\n", w.Body.String())

	// broken YAML is not saved
	w = httptest.NewRecorder()
	configHandler(w, httptest.NewRequest("POST", "/api/config", strings.NewReader("api: [")))
	require.Equal(t, http.StatusBadRequest, w.Code)

	data := "v4l2:\n  cameras: {}\n"
	w = httptest.NewRecorder()
	configHandler(w, httptest.NewRequest("POST", "/api/config", strings.NewReader(data)))
	require.Equal(t, http.StatusOK, w.Code)

	b, err := os.ReadFile(path)
	require.Nil(t, err)
	require.Equal(t, data, string(b))
}

func TestConfigHandlerNoPath(t *testing.T) {
	w := httptest.NewRecorder()
	configHandler(w, httptest.NewRequest("GET", "/api/config", nil))
	require.Equal(t, http.StatusGone, w.Code)
}
