package main

import (
	"github.com/AlexxIT/go2cam/internal/api"
	"github.com/AlexxIT/go2cam/internal/api/ws"
	"github.com/AlexxIT/go2cam/internal/app"
	"github.com/AlexxIT/go2cam/internal/v4l2"
	"github.com/AlexxIT/go2cam/pkg/shell"
)

func main() {
	app.Init() // init config and logs

	if app.Daemon {
		daemonize(run)
		return
	}

	run()
}

func run() {
	api.Init()  // init HTTP API server
	ws.Init()   // init WS API endpoint
	v4l2.Init() // open cameras from config

	sig := shell.RunUntilSignal()
	app.Logger.Info().Str("signal", sig.String()).Msg("[app] exit")

	v4l2.Close()
}
