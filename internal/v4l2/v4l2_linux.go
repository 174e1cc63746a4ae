//go:build linux && (386 || arm || amd64 || arm64)

package v4l2

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AlexxIT/go2cam/internal/api"
	"github.com/AlexxIT/go2cam/internal/api/ws"
	"github.com/AlexxIT/go2cam/internal/app"
	"github.com/AlexxIT/go2cam/pkg/camera"
	"github.com/AlexxIT/go2cam/pkg/v4l2/device"
	"github.com/rs/zerolog"
)

func Init() {
	var cfg struct {
		Mod Config `yaml:"v4l2"`
	}

	app.LoadConfig(&cfg)

	log = app.GetLogger("v4l2")

	api.HandleFunc("api/v4l2", apiDevices)
	api.HandleFunc("api/v4l2/streams", apiStreams)
	api.HandleFunc("api/v4l2/parm", apiParm)
	api.HandleFunc("api/v4l2/frame", apiFrame)
	api.HandleFunc("api/v4l2/stream.mjpeg", apiMJPEG)

	ws.HandleFunc("v4l2", wsHandler)

	for _, name := range sortedKeys(cfg.Mod.Cameras) {
		if _, err := openCamera(name, cfg.Mod.Cameras[name], openDevice); err != nil {
			log.Error().Err(err).Msgf("[v4l2] camera=%s", name)
		}
	}
}

// Close - stop and release all cameras
func Close() {
	mu.Lock()
	cams := cameras
	cameras = map[string]*camera.Camera{}
	mu.Unlock()

	for _, name := range sortedKeys(cams) {
		if err := cams[name].Close(); err != nil {
			log.Warn().Err(err).Msgf("[v4l2] close camera=%s", name)
		}
	}

	mu.Lock()
	hubs = map[*camera.Channel]*hub{}
	mu.Unlock()
}

var log = zerolog.Nop()

var (
	mu      sync.Mutex
	cameras = map[string]*camera.Camera{}
	hubs    = map[*camera.Channel]*hub{}
)

func openDevice(path string) (camera.Device, error) {
	dev, err := device.Open(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// openCamera - stream setup errors are logged, other streams keep working
func openCamera(name string, cfg *CameraConfig, open camera.Opener) (*camera.Camera, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, errors.New("v4l2: empty device path")
	}

	mu.Lock()
	_, ok := cameras[name]
	mu.Unlock()
	if ok {
		return nil, fmt.Errorf("v4l2: camera already exists: %s", name)
	}

	cam := camera.NewCamera(cfg.Device, open, log)

	for _, chName := range sortedKeys(cfg.Channels) {
		chCfg := cfg.Channels[chName]

		ch, err := cam.AddChannel(chName)
		if err != nil {
			log.Error().Err(err).Msgf("[v4l2] camera=%s channel=%s", name, chName)
			continue
		}

		var streams []*camera.Stream

		for i, sc := range chCfg.Streams {
			s, err := ch.AddStream()
			if err != nil {
				log.Error().Err(err).Msgf("[v4l2] camera=%s channel=%s stream=%d", name, chName, i)
				break
			}

			if err = setupStream(s, sc); err != nil {
				log.Error().Err(err).Msgf("[v4l2] camera=%s channel=%s stream=%d", name, chName, i)
				_ = ch.DelStream(s.Handle())
				continue
			}

			log.Debug().Msgf("[v4l2] camera=%s channel=%s stream=%x ready", name, chName, s.Handle())

			streams = append(streams, s)
		}

		if chCfg.Bundle && streams != nil {
			h := &hub{}
			if err = ch.Bundle(h.consume, streams...); err != nil {
				log.Error().Err(err).Msgf("[v4l2] camera=%s channel=%s bundle", name, chName)
			} else {
				mu.Lock()
				hubs[ch] = h
				mu.Unlock()
			}
		}

		if cfg.Autostart {
			if err = ch.Start(); err != nil {
				log.Error().Err(err).Msgf("[v4l2] camera=%s channel=%s start", name, chName)
			}
		}
	}

	mu.Lock()
	cameras[name] = cam
	mu.Unlock()

	return cam, nil
}

// setupStream - ACQUIRE, SET_FMT, GET_BUF, REG_BUF
func setupStream(s *camera.Stream, sc *StreamConfig) error {
	if sc == nil {
		return errors.New("v4l2: empty stream config")
	}

	cfg, err := sc.Parse()
	if err != nil {
		return err
	}

	if err = s.Acquire(); err != nil {
		return err
	}

	for id, value := range sc.Controls {
		if err = s.SetParm(id, value); err != nil {
			return fmt.Errorf("v4l2: control=%x: %w", id, err)
		}
	}

	if err = s.SetFormat(cfg); err != nil {
		return err
	}
	if err = s.GetBufs(); err != nil {
		return err
	}
	return s.RegBufs()
}

func getCamera(name string) *camera.Camera {
	mu.Lock()
	defer mu.Unlock()
	return cameras[name]
}

func getHub(ch *camera.Channel) *hub {
	mu.Lock()
	defer mu.Unlock()
	return hubs[ch]
}

func findChannel(camName, chName string) (*camera.Channel, error) {
	cam := getCamera(camName)
	if cam == nil {
		return nil, fmt.Errorf("%w: camera=%s", camera.ErrNotFound, camName)
	}
	ch := cam.ChannelByName(chName)
	if ch == nil {
		return nil, fmt.Errorf("%w: channel=%s", camera.ErrNotFound, chName)
	}
	return ch, nil
}

func findStream(camName, chName string, handle uint32) (*camera.Channel, *camera.Stream, error) {
	ch, err := findChannel(camName, chName)
	if err != nil {
		return nil, nil, err
	}
	if handle == 0 {
		return ch, nil, nil
	}
	s := ch.Stream(handle)
	if s == nil {
		return nil, nil, fmt.Errorf("%w: stream=%x", camera.ErrNotFound, handle)
	}
	return ch, s, nil
}
