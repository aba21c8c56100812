package params

import "time"

type ListenerConfig struct {
	// Network is "tcp", "tcp4", "tcp6" or "unix".
	Network string
	Address string
}

type WebDaemonConfig struct {
	ListenerConfig

	// EstimateTTL is how long the last published estimate is served before it is considered stale.
	EstimateTTL time.Duration

	// AutoStart starts a tracking session as soon as the daemon runs.
	AutoStart bool

	// PushDedupeSize is the number of recently pushed records remembered to drop resends.
	PushDedupeSize int
}

func DefaultWebListenerConfig() ListenerConfig {
	return ListenerConfig{
		Network: "tcp",
		Address: "localhost:3000",
	}
}

func DefaultWebDaemonConfig() *WebDaemonConfig {
	return &WebDaemonConfig{
		ListenerConfig: DefaultWebListenerConfig(),
		EstimateTTL:    10 * time.Second,
		AutoStart:      true,
		PushDedupeSize: 10_000,
	}
}

func DefaultTestWebDaemonConfig() *WebDaemonConfig {
	return &WebDaemonConfig{
		ListenerConfig: ListenerConfig{
			Network: "tcp",
			Address: "localhost:3333",
		},
		EstimateTTL:    time.Minute,
		AutoStart:      false,
		PushDedupeSize: 100,
	}
}
