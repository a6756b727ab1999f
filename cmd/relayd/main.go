// Command relayd runs the message relay daemon: webhook ingest, the
// conversation store, and the websocket fan-out server.
package main

import (
	"flag"

	"github.com/matheus3301/relay/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "path to TOML config file (optional)")
	flag.Parse()

	app := fx.New(
		daemon.Module(daemon.Params{ConfigPath: *configFlag}),
	)

	app.Run()
}
