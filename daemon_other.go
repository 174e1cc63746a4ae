//go:build !(linux || darwin || freebsd)

package main

import "github.com/AlexxIT/go2cam/internal/app"

func daemonize(run func()) {
	app.Logger.Warn().Msg("[app] daemon mode not supported, run in foreground")
	run()
}
