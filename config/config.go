// Package config defines the node configuration and its on-disk layout:
// <home>/config/config.toml, <home>/config/genesis.json, <home>/data.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Default directory and file names under the node home.
const (
	DefaultConfigDir  = "config"
	DefaultDataDir    = "data"
	DefaultConfigFile = "config.toml"
	DefaultGenesis    = "genesis.json"
)

// Config is the top-level node configuration.
type Config struct {
	// RootDir is the node home. Set at load time, never serialized.
	RootDir string `mapstructure:"home" toml:"-"`

	// ListenAddr is where the ABCI server accepts consensus connections.
	ListenAddr string `mapstructure:"listen_addr" toml:"listen_addr"`

	// Transport selects the ABCI server flavor: socket or grpc.
	Transport string `mapstructure:"transport" toml:"transport"`

	// DBBackend names the tm-db backend holding committed state.
	DBBackend string `mapstructure:"db_backend" toml:"db_backend"`

	LogLevel  string `mapstructure:"log_level" toml:"log_level"`
	LogFormat string `mapstructure:"log_format" toml:"log_format"`

	// Prometheus exposes node metrics over HTTP when enabled.
	Prometheus           bool   `mapstructure:"prometheus" toml:"prometheus"`
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr" toml:"prometheus_listen_addr"`
	MetricsNamespace     string `mapstructure:"metrics_namespace" toml:"metrics_namespace"`
}

// DefaultConfig returns the development defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:           "tcp://127.0.0.1:26658",
		Transport:            "socket",
		DBBackend:            "goleveldb",
		LogLevel:             "info",
		LogFormat:            "plain",
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		MetricsNamespace:     "ordsys",
	}
}

// ValidateBasic checks the fields that would otherwise fail deep inside
// startup.
func (cfg *Config) ValidateBasic() error {
	switch cfg.Transport {
	case "socket", "grpc":
	default:
		return fmt.Errorf("unknown abci transport %q", cfg.Transport)
	}
	switch cfg.LogFormat {
	case "plain", "json":
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	return nil
}

// ConfigFile returns the path of the toml file under the node home.
func (cfg *Config) ConfigFile() string {
	return filepath.Join(cfg.RootDir, DefaultConfigDir, DefaultConfigFile)
}

// GenesisFile returns the path of the genesis document.
func (cfg *Config) GenesisFile() string {
	return filepath.Join(cfg.RootDir, DefaultConfigDir, DefaultGenesis)
}

// DBDir returns the directory holding the state database.
func (cfg *Config) DBDir() string {
	return filepath.Join(cfg.RootDir, DefaultDataDir)
}

// EnsureDirs creates the home layout.
func (cfg *Config) EnsureDirs() error {
	for _, dir := range []string{
		cfg.RootDir,
		filepath.Join(cfg.RootDir, DefaultConfigDir),
		cfg.DBDir(),
	} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// Load reads the config file under home, layering file values over
// defaults. A missing file yields the defaults.
func Load(home string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.RootDir = home

	v := viper.New()
	v.SetConfigFile(cfg.ConfigFile())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.RootDir = home
	return cfg, nil
}

// WriteConfigFile renders cfg to its toml file.
func (cfg *Config) WriteConfigFile() error {
	f, err := os.OpenFile(cfg.ConfigFile(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, "# Sequencer node configuration."); err != nil {
		return err
	}
	return toml.NewEncoder(f).Encode(cfg)
}
