// Package config loads the peer's runtime Options from a config file,
// environment, and command-line flags. It follows the same "bind a flag
// set, let viper layer file/env/default on top" idiom the storj uplink CLI
// uses for its own configuration, scaled down to this peer's much smaller
// surface.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options is the peer's external configuration surface.
type Options struct {
	// KademliaEndpoint is the URI this node advertises to the rest of the
	// overlay, e.g. "udp://localhost:8001/kademlia".
	KademliaEndpoint string `mapstructure:"kademlia_endpoint"`

	// UDPPort is the local port the transport binds to. It is set
	// independently of the port embedded in KademliaEndpoint; the defaults
	// differ (9997 here, 8001 in the default endpoint).
	UDPPort int `mapstructure:"udp_port"`

	// KeywordRepositoryPath is the bbolt database file backing the keyword
	// index and resource store. TrackRepositoryPath is loaded and carried
	// here, but no component of this module opens it.
	KeywordRepositoryPath string `mapstructure:"keyword_repository_path"`
	TrackRepositoryPath   string `mapstructure:"track_repository_path"`

	// BootstrapEndpoint, if set, is PINGed once at startup to seed the
	// routing table. Empty means this node starts as the first of its swarm.
	BootstrapEndpoint string `mapstructure:"bootstrap_endpoint"`

	// ThreadPoolSize is the configured worker-pool size. Load checks that it
	// is positive; no component of this module reads it.
	ThreadPoolSize int `mapstructure:"thread_pool_size"`

	// ChunkLength is the configured audio chunk length in bytes. Load checks
	// that it is positive; no component of this module reads it.
	ChunkLength int `mapstructure:"chunk_length"`

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`
}

// Defaults returns the peer's out-of-the-box configuration.
func Defaults() Options {
	return Options{
		KademliaEndpoint:      "udp://localhost:8001/kademlia",
		UDPPort:               9997,
		KeywordRepositoryPath: "keywords.db",
		TrackRepositoryPath:   "tracks.db",
		BootstrapEndpoint:     "",
		ThreadPoolSize:        4,
		ChunkLength:           65536,
		LogLevel:              "info",
	}
}

// BindFlags registers the Options fields onto a flag set so a cobra command
// can expose them as command-line overrides, and returns the viper instance
// those flags (plus config file and TRACKLORE_* environment variables) feed
// into. Call Load once flags have been parsed.
func BindFlags(flags *pflag.FlagSet) *viper.Viper {
	v := viper.New()
	defaults := Defaults()

	flags.String("kademlia-endpoint", defaults.KademliaEndpoint, "Kademlia endpoint URI this node advertises")
	flags.Int("udp-port", defaults.UDPPort, "local UDP transport port")
	flags.String("keyword-repository-path", defaults.KeywordRepositoryPath, "path to the keyword index database")
	flags.String("track-repository-path", defaults.TrackRepositoryPath, "path to the track metadata database")
	flags.String("bootstrap-endpoint", defaults.BootstrapEndpoint, "endpoint of a peer to bootstrap against")
	flags.Int("thread-pool-size", defaults.ThreadPoolSize, "worker pool size for chunked ingestion")
	flags.Int("chunk-length", defaults.ChunkLength, "byte length of a streamed audio chunk")
	flags.String("log-level", defaults.LogLevel, "logrus level: debug, info, warn, error")
	flags.String("config", "", "path to a config file (YAML/JSON/TOML, auto-detected)")

	_ = v.BindPFlags(flags)

	v.SetEnvPrefix("tracklore")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// Load resolves Options from a previously-bound viper instance. If
// configPath is non-empty it is read explicitly; otherwise viper searches
// the working directory for a file named "tracklore.{yaml,json,toml}".
func Load(v *viper.Viper, configPath string) (Options, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("tracklore")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Options{}, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	opts := Defaults()
	opts.KademliaEndpoint = v.GetString("kademlia-endpoint")
	opts.UDPPort = v.GetInt("udp-port")
	opts.KeywordRepositoryPath = v.GetString("keyword-repository-path")
	opts.TrackRepositoryPath = v.GetString("track-repository-path")
	opts.BootstrapEndpoint = v.GetString("bootstrap-endpoint")
	opts.ThreadPoolSize = v.GetInt("thread-pool-size")
	opts.ChunkLength = v.GetInt("chunk-length")
	opts.LogLevel = v.GetString("log-level")

	if opts.ThreadPoolSize <= 0 {
		return Options{}, fmt.Errorf("config: thread_pool_size must be positive, got %d", opts.ThreadPoolSize)
	}
	if opts.ChunkLength <= 0 {
		return Options{}, fmt.Errorf("config: chunk_length must be positive, got %d", opts.ChunkLength)
	}

	return opts, nil
}
