package api

import (
	"io"
	"net/http"
	"os"

	"github.com/AlexxIT/go2cam/internal/app"
	"github.com/AlexxIT/go2cam/pkg/yaml"
)

// configHandler - config file is applied on next start
func configHandler(w http.ResponseWriter, r *http.Request) {
	if app.ConfigPath == "" {
		http.Error(w, "", http.StatusGone)
		return
	}

	switch r.Method {
	case "GET":
		data, err := os.ReadFile(app.ConfigPath)
		if err != nil {
			http.Error(w, "", http.StatusNotFound)
			return
		}
		Response(w, data, MimeYAML)

	case "POST":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err = yaml.Validate(data); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err = os.WriteFile(app.ConfigPath, data, 0644); err != nil {
			Error(w, err)
			return
		}

	default:
		http.Error(w, "Method not allowed", http.StatusBadRequest)
	}
}
