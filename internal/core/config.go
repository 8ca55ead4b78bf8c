package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/spf13/cobra"
)

const (
	BaseDirName      = ".config/i2pwarden"
	PidFileName      = "daemon.pid"
	SocketName       = "daemon.sock"
	ConfigFileName   = "config.hcl"
	RouterConfigName = "router_config.json"
	DatabaseName     = "i2pwarden.db"
)

// Config is the global configuration instance
var Config *Configuration

// Configuration represents the complete i2pwarden configuration
type Configuration struct {
	ConfigPath string // Directory containing config files, socket, and database
	Verbose    int    // Verbosity level
	Router     RouterSettings
	Log        LogSettings
}

// RouterSettings controls how the supervised i2pd process is launched and polled
type RouterSettings struct {
	Binary       string        // Path to the i2pd binary
	DataDir      string        // Router data directory (netDb, keys, ...)
	APIHost      string        // Control API host
	APIPort      int           // Control API port
	APIKey       string        // Bearer token for the control API ("" = none, or stored in keyring)
	PollInterval time.Duration // Status/tunnel poll cadence while connected
	StopGrace    time.Duration // Graceful termination window before SIGKILL
	RestartDelay time.Duration // Settle time between stop and start on restart
}

// LogSettings controls daemon log streaming and event retention
type LogSettings struct {
	HistorySize    int           // Lines of log history kept for late subscribers
	StatsRetention time.Duration // How long statistics samples are kept in the database
}

// HCL parsing structs

type hclConfig struct {
	Verbose int        `hcl:"verbose,optional"`
	Router  *hclRouter `hcl:"router,block"`
	Log     *hclLog    `hcl:"log,block"`
}

type hclRouter struct {
	Binary       string `hcl:"binary,optional"`
	DataDir      string `hcl:"data_dir,optional"`
	APIHost      string `hcl:"api_host,optional"`
	APIPort      int    `hcl:"api_port,optional"`
	APIKey       string `hcl:"api_key,optional"`
	PollInterval string `hcl:"poll_interval,optional"`
	StopGrace    string `hcl:"stop_grace,optional"`
	RestartDelay string `hcl:"restart_delay,optional"`
}

type hclLog struct {
	HistorySize    int    `hcl:"history_size,optional"`
	StatsRetention string `hcl:"stats_retention,optional"`
}

func GetSocketPath() string {
	return filepath.Join(Config.ConfigPath, SocketName)
}

func GetPIDFilePath() string {
	return filepath.Join(Config.ConfigPath, PidFileName)
}

func GetDatabasePath() string {
	return filepath.Join(Config.ConfigPath, DatabaseName)
}

func GetRouterConfigPath() string {
	return filepath.Join(Config.ConfigPath, RouterConfigName)
}

// LoadConfig loads the HCL configuration file and returns a Configuration struct
func LoadConfig(filename string) (*Configuration, error) {
	var hclCfg hclConfig

	err := hclsimple.DecodeFile(filename, nil, &hclCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HCL config: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.Verbose = hclCfg.Verbose

	if hclCfg.Router != nil {
		if hclCfg.Router.Binary != "" {
			cfg.Router.Binary = expandPath(hclCfg.Router.Binary)
		}
		if hclCfg.Router.DataDir != "" {
			cfg.Router.DataDir = expandPath(hclCfg.Router.DataDir)
		}
		if hclCfg.Router.APIHost != "" {
			cfg.Router.APIHost = hclCfg.Router.APIHost
		}
		if hclCfg.Router.APIPort != 0 {
			cfg.Router.APIPort = hclCfg.Router.APIPort
		}
		if hclCfg.Router.APIKey != "" {
			cfg.Router.APIKey = hclCfg.Router.APIKey
		}
		if hclCfg.Router.PollInterval != "" {
			d, err := time.ParseDuration(hclCfg.Router.PollInterval)
			if err != nil {
				return nil, fmt.Errorf("invalid poll_interval: %w", err)
			}
			cfg.Router.PollInterval = d
		}
		if hclCfg.Router.StopGrace != "" {
			d, err := time.ParseDuration(hclCfg.Router.StopGrace)
			if err != nil {
				return nil, fmt.Errorf("invalid stop_grace: %w", err)
			}
			cfg.Router.StopGrace = d
		}
		if hclCfg.Router.RestartDelay != "" {
			d, err := time.ParseDuration(hclCfg.Router.RestartDelay)
			if err != nil {
				return nil, fmt.Errorf("invalid restart_delay: %w", err)
			}
			cfg.Router.RestartDelay = d
		}
	}

	if hclCfg.Log != nil {
		if hclCfg.Log.HistorySize > 0 {
			cfg.Log.HistorySize = hclCfg.Log.HistorySize
		}
		if hclCfg.Log.StatsRetention != "" {
			d, err := time.ParseDuration(hclCfg.Log.StatsRetention)
			if err != nil {
				return nil, fmt.Errorf("invalid stats_retention: %w", err)
			}
			cfg.Log.StatsRetention = d
		}
	}

	return cfg, nil
}

// GetDefaultConfig returns a Configuration with default values
func GetDefaultConfig() *Configuration {
	homeDir, _ := os.UserHomeDir()
	return &Configuration{
		Verbose: 0,
		Router: RouterSettings{
			Binary:       "i2pd",
			DataDir:      filepath.Join(homeDir, BaseDirName, "i2p"),
			APIHost:      "127.0.0.1",
			APIPort:      7657,
			PollInterval: 5 * time.Second,
			StopGrace:    10 * time.Second,
			RestartDelay: 2 * time.Second,
		},
		Log: LogSettings{
			HistorySize:    1000,
			StatsRetention: 7 * 24 * time.Hour,
		},
	}
}

// InitializeConfig loads the configuration for a command invocation. On first
// run the config directory is created and a commented default config file is
// written.
func InitializeConfig(cmd *cobra.Command) error {
	configPath, err := cmd.Flags().GetString("config-path")
	if err != nil {
		return fmt.Errorf("unable to determine config path: %w", err)
	}
	configPath = expandPath(configPath)

	if err := os.MkdirAll(configPath, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, ConfigFileName)
	var cfg *Configuration
	if ConfigExists(configFile) {
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return err
		}
	} else {
		cfg = GetDefaultConfig()
		if err := writeDefaultConfigFile(configFile); err != nil {
			return fmt.Errorf("failed to write default config: %w", err)
		}
	}

	cfg.ConfigPath = configPath
	if verbose, err := cmd.Flags().GetCount("verbose"); err == nil && verbose > 0 {
		cfg.Verbose = verbose
	}

	Config = cfg
	return nil
}

// writeDefaultConfigFile writes a commented starter config so users can see
// what is tunable without reading documentation
func writeDefaultConfigFile(path string) error {
	content := `# i2pwarden configuration

# verbose = 0

router {
  # binary        = "i2pd"
  # data_dir      = "~/.config/i2pwarden/i2p"
  # api_host      = "127.0.0.1"
  # api_port      = 7657
  # poll_interval = "5s"
  # stop_grace    = "10s"
  # restart_delay = "2s"
}

log {
  # history_size    = 1000
  # stats_retention = "168h"
}
`
	return os.WriteFile(path, []byte(content), 0o644)
}

// ConfigExists checks if a config file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return err == nil
}

// expandPath expands ~ to the user's home directory
func expandPath(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home + path[1:]
	}
	return path
}
