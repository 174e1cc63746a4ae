package app

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
)

var Version = "0.1.0"

var Info = map[string]any{
	"version": Version,
}

var (
	Daemon  bool
	PidFile string
	LogFile string
)

func Init() {
	var confs flagConfig
	var version bool

	flag.Var(&confs, "config", "go2cam config (path to file or raw text), support multiple")
	flag.BoolVar(&version, "version", false, "Print the version of the application and exit")
	flag.BoolVar(&Daemon, "daemon", false, "Run in background")
	flag.StringVar(&PidFile, "pidfile", "go2cam.pid", "PID file for daemon mode")
	flag.StringVar(&LogFile, "logfile", "go2cam.log", "Output file for daemon mode")
	flag.Parse()

	revision, vcsTime := readRevisionTime()

	if version {
		fmt.Printf("go2cam version %s (%s) %s/%s\n", Version, revision, runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	if revision != "" {
		Info["revision"] = revision
	}

	initConfig(confs)
	initLogger()

	platform := fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	Logger.Info().Str("version", Version).Str("platform", platform).Str("revision", revision).Msg("go2cam")
	Logger.Debug().Str("version", runtime.Version()).Str("vcs.time", vcsTime).Msg("build")

	if ConfigPath != "" {
		Logger.Info().Str("path", ConfigPath).Msg("config")
	}
}

func readRevisionTime() (revision, vcsTime string) {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if len(setting.Value) > 7 {
					revision = setting.Value[:7]
				} else {
					revision = setting.Value
				}
			case "vcs.time":
				vcsTime = setting.Value
			case "vcs.modified":
				if setting.Value == "true" {
					revision += ".dirty"
				}
			}
		}
	}
	return
}
