// Package config builds the typed configuration for cmd/tftpd and
// cmd/tftp from cobra flags, environment variables (TFTPD_*/TFTP_*),
// and defaults, using spf13/viper, generalizing the teacher's hand
// rolled utils.GetEnv[T] into one structured, validated layer.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServerConfig holds cmd/tftpd's tunables.
type ServerConfig struct {
	Listen         string        `mapstructure:"listen"`
	Root           string        `mapstructure:"root"`
	MaxBlksize     uint16        `mapstructure:"max-blksize"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Retries        int           `mapstructure:"retries"`
	AllowOverwrite bool          `mapstructure:"allow-overwrite"`
	LogLevel       string        `mapstructure:"log-level"`
	MetricsAddr    string        `mapstructure:"metrics-addr"`
	ReusePort      bool          `mapstructure:"reuse-port"`
}

// ClientConfig holds cmd/tftp's tunables.
type ClientConfig struct {
	LogLevel string        `mapstructure:"log-level"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Blksize  uint16        `mapstructure:"blksize"`
	Root     string        `mapstructure:"root"`
}

// ServerDefaults returns cmd/tftpd's default flag values.
func ServerDefaults() ServerConfig {
	return ServerConfig{
		Listen:      ":69",
		Root:        ".",
		MaxBlksize:  65464,
		Timeout:     3 * time.Second,
		Retries:     5,
		LogLevel:    "info",
		MetricsAddr: "",
	}
}

// ClientDefaults returns cmd/tftp's default flag values.
func ClientDefaults() ClientConfig {
	return ClientConfig{
		LogLevel: "warn",
		Timeout:  5 * time.Second,
		Blksize:  512,
	}
}

// LoadServerConfig binds flags to viper with TFTPD_ environment
// overrides and unmarshals the result.
func LoadServerConfig(flags *pflag.FlagSet) (ServerConfig, error) {
	v := newViper("TFTPD")
	if err := v.BindPFlags(flags); err != nil {
		return ServerConfig{}, err
	}

	cfg := ServerDefaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, err
	}

	return cfg, nil
}

// LoadClientConfig binds flags to viper with TFTP_ environment
// overrides and unmarshals the result.
func LoadClientConfig(flags *pflag.FlagSet) (ClientConfig, error) {
	v := newViper("TFTP")
	if err := v.BindPFlags(flags); err != nil {
		return ClientConfig{}, err
	}

	cfg := ClientDefaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return ClientConfig{}, err
	}

	return cfg, nil
}

func newViper(envPrefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}
