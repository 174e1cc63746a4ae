//go:build linux || darwin || freebsd

package main

import (
	"github.com/AlexxIT/go2cam/internal/app"
	"github.com/sevlyar/go-daemon"
)

func daemonize(run func()) {
	ctx := &daemon.Context{
		PidFileName: app.PidFile,
		PidFilePerm: 0644,
		LogFileName: app.LogFile,
		LogFilePerm: 0640,
		Umask:       027,
	}

	child, err := ctx.Reborn()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("[app] daemon")
	}

	if child != nil {
		app.Logger.Info().Int("pid", child.Pid).Msg("[app] daemon started")
		return
	}

	defer func() {
		_ = ctx.Release()
	}()

	run()
}
