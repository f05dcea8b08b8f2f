package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// FlagRootDir is a flag for specifying the root directory
	FlagRootDir = "home"
	// FlagDBPath is a flag for specifying the database path
	FlagDBPath = "romulus.db_path"

	// FlagOwner is a flag for the owner address allowed to invoke privileged operations
	FlagOwner = "romulus.node.owner"
	// FlagBlockTime is a flag for the simulated chain's block interval
	FlagBlockTime = "romulus.node.block_time"
	// FlagHistoryWindow is a flag for the number of retained block hashes
	FlagHistoryWindow = "romulus.node.history_window"

	// FlagRPCAddress is a flag for the RPC listen address
	FlagRPCAddress = "romulus.rpc.address"
	// FlagRPCPort is a flag for the RPC listen port
	FlagRPCPort = "romulus.rpc.port"

	// FlagPrometheus is a flag for enabling Prometheus metrics
	FlagPrometheus = "romulus.instrumentation.prometheus"
	// FlagPrometheusListenAddr is a flag for the Prometheus listen address
	FlagPrometheusListenAddr = "romulus.instrumentation.prometheus_listen_addr"

	// FlagLogLevel is a flag for specifying the log level
	FlagLogLevel = "romulus.log.level"
)

// ConfigName is the file the daemon reads from the root directory.
const ConfigName = "romulus.yaml"

// NodeConfig holds chain-facing daemon settings.
type NodeConfig struct {
	// Owner may invoke invalidate_seed and set_callback_budget.
	Owner string `mapstructure:"owner" yaml:"owner"`
	// BlockTime is the simulated sequencer's block interval.
	BlockTime time.Duration `mapstructure:"block_time" yaml:"block_time"`
	// HistoryWindow is the number of most-recent block hashes kept queryable.
	HistoryWindow uint64 `mapstructure:"history_window" yaml:"history_window"`
}

// RPCConfig holds the HTTP surface settings.
type RPCConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Port    uint16 `mapstructure:"port" yaml:"port"`
}

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	Prometheus           bool   `mapstructure:"prometheus" yaml:"prometheus"`
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr" yaml:"prometheus_listen_addr"`
	Namespace            string `mapstructure:"namespace" yaml:"namespace"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Config is the top-level daemon configuration.
type Config struct {
	RootDir string `mapstructure:"-" yaml:"-"`
	DBPath  string `mapstructure:"db_path" yaml:"db_path"`

	Node            NodeConfig            `mapstructure:"node" yaml:"node"`
	RPC             RPCConfig             `mapstructure:"rpc" yaml:"rpc"`
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation" yaml:"instrumentation"`
	Log             LogConfig             `mapstructure:"log" yaml:"log"`
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	var errs *multierror.Error
	if c.Node.BlockTime <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("block time must be positive, got %s", c.Node.BlockTime))
	}
	if c.Node.HistoryWindow < 2 {
		errs = multierror.Append(errs, fmt.Errorf("history window must be at least 2, got %d", c.Node.HistoryWindow))
	}
	if c.Node.Owner != "" && !common.IsHexAddress(c.Node.Owner) {
		errs = multierror.Append(errs, fmt.Errorf("owner %q is not a hex address", c.Node.Owner))
	}
	if c.RPC.Port == 0 {
		errs = multierror.Append(errs, fmt.Errorf("rpc port must be set"))
	}
	return errs.ErrorOrNil()
}

// OwnerAddress returns the parsed owner address.
func (c Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Node.Owner)
}

// AddFlags registers all configuration flags on the command.
func AddFlags(cmd *cobra.Command) {
	def := DefaultConfig()
	cmd.Flags().String(FlagRootDir, DefaultRootDir(), "root directory for config and data")
	cmd.Flags().String(FlagDBPath, def.DBPath, "path inside the root directory for the database")
	cmd.Flags().String(FlagOwner, def.Node.Owner, "owner address for privileged operations")
	cmd.Flags().Duration(FlagBlockTime, def.Node.BlockTime, "simulated chain block interval")
	cmd.Flags().Uint64(FlagHistoryWindow, def.Node.HistoryWindow, "number of retained block hashes")
	cmd.Flags().String(FlagRPCAddress, def.RPC.Address, "RPC listen address")
	cmd.Flags().Uint16(FlagRPCPort, def.RPC.Port, "RPC listen port")
	cmd.Flags().Bool(FlagPrometheus, def.Instrumentation.Prometheus, "enable Prometheus metrics")
	cmd.Flags().String(FlagPrometheusListenAddr, def.Instrumentation.PrometheusListenAddr, "Prometheus listen address")
	cmd.Flags().String(FlagLogLevel, def.Log.Level, "log level (debug|info|warn|error)")
}

// Load builds the configuration from defaults, an optional romulus.yaml in
// the root directory, and command-line flags, in increasing precedence.
func Load(cmd *cobra.Command) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return cfg, fmt.Errorf("failed to bind flags: %w", err)
	}

	rootDir := v.GetString(FlagRootDir)
	cfg.RootDir = rootDir

	path := filepath.Join(rootDir, ConfigName)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		))); err != nil {
			return cfg, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	// Explicitly set flags win over the file.
	flags := cmd.Flags()
	if flags.Changed(FlagDBPath) {
		cfg.DBPath = v.GetString(FlagDBPath)
	}
	if flags.Changed(FlagOwner) {
		cfg.Node.Owner = v.GetString(FlagOwner)
	}
	if flags.Changed(FlagBlockTime) {
		cfg.Node.BlockTime = v.GetDuration(FlagBlockTime)
	}
	if flags.Changed(FlagHistoryWindow) {
		cfg.Node.HistoryWindow = v.GetUint64(FlagHistoryWindow)
	}
	if flags.Changed(FlagRPCAddress) {
		cfg.RPC.Address = v.GetString(FlagRPCAddress)
	}
	if flags.Changed(FlagRPCPort) {
		cfg.RPC.Port = uint16(v.GetUint(FlagRPCPort))
	}
	if flags.Changed(FlagPrometheus) {
		cfg.Instrumentation.Prometheus = v.GetBool(FlagPrometheus)
	}
	if flags.Changed(FlagPrometheusListenAddr) {
		cfg.Instrumentation.PrometheusListenAddr = v.GetString(FlagPrometheusListenAddr)
	}
	if flags.Changed(FlagLogLevel) {
		cfg.Log.Level = v.GetString(FlagLogLevel)
	}

	return cfg, cfg.Validate()
}

// WriteYaml writes the configuration to romulus.yaml in the root directory.
func (c Config) WriteYaml() error {
	if err := os.MkdirAll(c.RootDir, DefaultDirPerm); err != nil {
		return fmt.Errorf("failed to create %s: %w", c.RootDir, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(c.RootDir, ConfigName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
