package webd

import (
	"github.com/rotblauer/velofuse/fusion"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/source"
)

// newTestWebDaemon creates a WebDaemon over a pushed source for testing purposes.
// The router is built and the pump is running; teardown stops both the engine and the pump.
func newTestWebDaemon(config *params.WebDaemonConfig) (daemon *WebDaemon, pushed *source.Manual, teardown func()) {
	if config == nil {
		config = params.DefaultTestWebDaemonConfig()
	}
	pushed = source.NewManual()
	engine := fusion.NewEngine(params.DefaultFusionConfig(), pushed, pushed)
	daemon, err := NewWebDaemon(config, engine, pushed)
	if err != nil {
		panic(err)
	}
	daemon.router = daemon.NewRouter()
	daemon.startPump()
	teardown = func() {
		engine.Stop()
		daemon.stopPump()
	}
	return daemon, pushed, teardown
}
