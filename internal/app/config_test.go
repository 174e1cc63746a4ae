package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConfString(t *testing.T) {
	require.Equal(t, "{log: {level: trace}}", string(parseConfString("log.level=trace")))
	require.Equal(t, "{v4l2: {cam: {path: /dev/video0}}}", string(parseConfString("v4l2.cam.path=/dev/video0")))
	require.Nil(t, parseConfString("go2cam.yaml"))
	require.Nil(t, parseConfString("level=trace"))
}

func TestLoadConfig(t *testing.T) {
	defer func() {
		configs = nil
		ConfigPath = ""
		delete(Info, "config_path")
	}()

	t.Setenv("GO2CAM_TEST_LISTEN", ":1985")

	path := filepath.Join(t.TempDir(), "go2cam.yaml")
	data := "api:\n  listen: \"${GO2CAM_TEST_LISTEN}\"\nlog:\n  level: debug\n"
	require.Nil(t, os.WriteFile(path, []byte(data), 0644))

	initConfig(flagConfig{path, "log.level=trace", `{"api": {"base_path": "/cam"}}`, ""})
	require.Equal(t, path, ConfigPath)
	require.Len(t, configs, 3)

	var cfg struct {
		API struct {
			Listen   string `yaml:"listen"`
			BasePath string `yaml:"base_path"`
		} `yaml:"api"`
		Log map[string]string `yaml:"log"`
	}
	LoadConfig(&cfg)

	require.Equal(t, ":1985", cfg.API.Listen)
	require.Equal(t, "/cam", cfg.API.BasePath)
	require.Equal(t, "trace", cfg.Log["level"])
}
