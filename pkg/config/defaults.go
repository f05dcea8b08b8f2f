package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultDirPerm is the default permissions used when creating directories.
	DefaultDirPerm = 0o750

	// DefaultDataDir is the default directory for data files (database).
	DefaultDataDir = "data"

	// Version is the current romulus version.
	Version = "0.2.0"

	// DefaultLogLevel is the default log level for the daemon.
	DefaultLogLevel = "info"
)

// DefaultRootDir returns the default root directory for romulus.
func DefaultRootDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".romulus")
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() Config {
	return Config{
		RootDir: DefaultRootDir(),
		DBPath:  DefaultDataDir,
		Node: NodeConfig{
			BlockTime:     2 * time.Second,
			HistoryWindow: 8191,
		},
		RPC: RPCConfig{
			Address: "127.0.0.1",
			Port:    7272,
		},
		Instrumentation: InstrumentationConfig{
			Prometheus:           false,
			PrometheusListenAddr: ":26660",
			Namespace:            "romulus",
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}
