// Package config loads node configuration from defaults, an optional config
// file, PARLEY_ prefixed environment variables and command line flags.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmwaters/parley/p2p"
	"github.com/cmwaters/parley/pkg/gka"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override config keys,
// e.g. PARLEY_NETWORK_TOPIC for network.topic.
const EnvPrefix = "PARLEY"

// Config represents the complete node configuration
type Config struct {
	Network  NetworkConfig  `mapstructure:"network"`
	Group    GroupConfig    `mapstructure:"group"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Identity IdentityConfig `mapstructure:"identity"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// NetworkConfig controls the libp2p substrate
type NetworkConfig struct {
	// ListenAddrs are the multiaddrs the host listens on
	ListenAddrs []string `mapstructure:"listen_addrs"`
	// Topic is the broadcast topic shared by every participant
	Topic string `mapstructure:"topic"`
	// MDNS enables discovery of peers on the local network
	MDNS bool `mapstructure:"mdns"`
	// ServiceName is the mDNS service name peers advertise
	ServiceName string `mapstructure:"service_name"`
	// DiscoveryTTLSeconds is how long a discovered peer is remembered without
	// being seen again
	DiscoveryTTLSeconds int `mapstructure:"discovery_ttl_seconds"`
	// ConnectTimeoutSeconds bounds dialing a discovered peer
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds"`
}

// GroupConfig holds the group parameters. Every member should use the same
// values.
type GroupConfig struct {
	PaddingSize            int    `mapstructure:"padding_size"`
	OutOfOrderTolerance    uint64 `mapstructure:"out_of_order_tolerance"`
	MaximumForwardDistance uint64 `mapstructure:"maximum_forward_distance"`
}

// QueueConfig bounds the queues between the network and the processor. A
// capacity of zero means unbounded.
type QueueConfig struct {
	InboundCapacity  int `mapstructure:"inbound_capacity"`
	OutboundCapacity int `mapstructure:"outbound_capacity"`
}

// IdentityConfig controls where the network key comes from
type IdentityConfig struct {
	// KeyFile is an optional path to a libp2p marshalled private key. When
	// empty a new key is generated on every start.
	KeyFile string `mapstructure:"key_file"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn or error
	Level string `mapstructure:"level"`
	// Console selects human readable output instead of JSON
	Console bool `mapstructure:"console"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	group := gka.DefaultConfig()
	return &Config{
		Network: NetworkConfig{
			ListenAddrs:           []string{"/ip4/0.0.0.0/tcp/0", "/ip4/0.0.0.0/tcp/0/ws"},
			Topic:                 "airspaceA",
			MDNS:                  true,
			ServiceName:           p2p.DefaultServiceName,
			DiscoveryTTLSeconds:   int(p2p.DefaultDiscoveryTTL / time.Second),
			ConnectTimeoutSeconds: int(p2p.DefaultConnectTimeout / time.Second),
		},
		Group: GroupConfig{
			PaddingSize:            group.PaddingSize,
			OutOfOrderTolerance:    group.OutOfOrderTolerance,
			MaximumForwardDistance: group.MaximumForwardDistance,
		},
		Queue: QueueConfig{
			InboundCapacity:  1024,
			OutboundCapacity: 1024,
		},
		Logging: LoggingConfig{
			Level:   "warn",
			Console: true,
		},
	}
}

// SetDefaults registers the defaults with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("network.listen_addrs", defaults.Network.ListenAddrs)
	viper.SetDefault("network.topic", defaults.Network.Topic)
	viper.SetDefault("network.mdns", defaults.Network.MDNS)
	viper.SetDefault("network.service_name", defaults.Network.ServiceName)
	viper.SetDefault("network.discovery_ttl_seconds", defaults.Network.DiscoveryTTLSeconds)
	viper.SetDefault("network.connect_timeout_seconds", defaults.Network.ConnectTimeoutSeconds)

	viper.SetDefault("group.padding_size", defaults.Group.PaddingSize)
	viper.SetDefault("group.out_of_order_tolerance", defaults.Group.OutOfOrderTolerance)
	viper.SetDefault("group.maximum_forward_distance", defaults.Group.MaximumForwardDistance)

	viper.SetDefault("queue.inbound_capacity", defaults.Queue.InboundCapacity)
	viper.SetDefault("queue.outbound_capacity", defaults.Queue.OutboundCapacity)

	viper.SetDefault("identity.key_file", defaults.Identity.KeyFile)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.console", defaults.Logging.Console)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// GroupParams converts the group section into engine parameters
func (c *Config) GroupParams() gka.Config {
	params := gka.DefaultConfig()
	params.PaddingSize = c.Group.PaddingSize
	params.OutOfOrderTolerance = c.Group.OutOfOrderTolerance
	params.MaximumForwardDistance = c.Group.MaximumForwardDistance
	return params
}

func (c *NetworkConfig) DiscoveryTTL() time.Duration {
	return time.Duration(c.DiscoveryTTLSeconds) * time.Second
}

func (c *NetworkConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "parley")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parley"
	}
	return filepath.Join(home, ".config", "parley")
}

// envKeyReplacer maps nested keys to environment variables, e.g.
// network.topic to PARLEY_NETWORK_TOPIC.
var envKeyReplacer = strings.NewReplacer(".", "_")

// BindEnv makes viper consult PARLEY_ prefixed environment variables.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
}
