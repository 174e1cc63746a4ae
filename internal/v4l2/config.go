//go:build linux && (386 || arm || amd64 || arm64)

package v4l2

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AlexxIT/go2cam/pkg/camera"
	"github.com/AlexxIT/go2cam/pkg/layout"
)

type Config struct {
	Cameras map[string]*CameraConfig `yaml:"cameras"`
}

type CameraConfig struct {
	Device    string                    `yaml:"device"`
	Autostart bool                      `yaml:"autostart"`
	Channels  map[string]*ChannelConfig `yaml:"channels"`
}

type ChannelConfig struct {
	Bundle  bool            `yaml:"bundle"`
	Streams []*StreamConfig `yaml:"streams"`
}

type StreamConfig struct {
	Type     string         `yaml:"type"`
	Format   string         `yaml:"format"`
	Size     string         `yaml:"size"`
	Buffers  int            `yaml:"buffers"`
	Reserved int            `yaml:"reserved"`
	Padding  layout.Padding `yaml:"padding"`

	// control id => value, applied right after acquire
	Controls map[uint32]int32 `yaml:"controls"`
}

const defaultBuffers = 4

func (c *StreamConfig) Parse() (cfg camera.StreamConfig, err error) {
	cfg.Type = camera.StreamPreview
	if c.Type != "" {
		var ok bool
		if cfg.Type, ok = camera.ParseStreamType(c.Type); !ok {
			return cfg, fmt.Errorf("v4l2: unknown stream type: %s", c.Type)
		}
	}

	cfg.Format = layout.FormatNV12
	if c.Format != "" {
		var ok bool
		if cfg.Format, ok = layout.ParseFormat(c.Format); !ok {
			return cfg, fmt.Errorf("v4l2: unknown format: %s", c.Format)
		}
	}

	if cfg.Width, cfg.Height, err = parseSize(c.Size); err != nil {
		return
	}

	cfg.Buffers = c.Buffers
	if cfg.Buffers == 0 {
		cfg.Buffers = defaultBuffers
	}
	cfg.Reserved = c.Reserved
	cfg.Padding = c.Padding

	return
}

// parseSize - `1280x720`
func parseSize(s string) (width, height int, err error) {
	if s == "" {
		return 0, 0, errors.New("v4l2: empty size")
	}

	w, h, ok := strings.Cut(s, "x")
	if ok {
		if width, err = strconv.Atoi(w); err == nil {
			height, err = strconv.Atoi(h)
		}
	}
	if !ok || err != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("v4l2: wrong size: %s", s)
	}

	return
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
