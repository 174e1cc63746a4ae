//go:build !(linux && (386 || arm || amd64 || arm64))

package v4l2

import "github.com/AlexxIT/go2cam/internal/app"

func Init() {
	app.GetLogger("v4l2").Warn().Msg("[v4l2] not supported on this platform")
}

func Close() {}
