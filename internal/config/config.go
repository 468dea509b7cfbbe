package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode           string        `mapstructure:"mode" yaml:"mode"`
	Port           int           `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ReadLimit      int64         `mapstructure:"read_limit" yaml:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period" yaml:"ping_period"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`

	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Presence PresenceConfig `mapstructure:"presence" yaml:"presence"`
	Chat     ChatConfig     `mapstructure:"chat" yaml:"chat"`
	Voice    VoiceConfig    `mapstructure:"voice" yaml:"voice"`
	Media    MediaConfig    `mapstructure:"media" yaml:"media"`
	Signal   SignalConfig   `mapstructure:"signal" yaml:"signal"`
}

type AuthConfig struct {
	Secret   string `mapstructure:"secret" yaml:"secret"`
	Issuer   string `mapstructure:"issuer" yaml:"issuer"`
	Audience string `mapstructure:"audience" yaml:"audience"`
}

type DatabaseConfig struct {
	// Path of the SQLite file. Empty disables chat persistence.
	Path string `mapstructure:"path" yaml:"path"`
}

type PresenceConfig struct {
	SpawnX float64 `mapstructure:"spawn_x" yaml:"spawn_x"`
	SpawnY float64 `mapstructure:"spawn_y" yaml:"spawn_y"`
	// PositionRate caps outbound position updates per connection, per second.
	PositionRate float64 `mapstructure:"position_rate" yaml:"position_rate"`
}

type ChatConfig struct {
	TypingTTL time.Duration `mapstructure:"typing_ttl" yaml:"typing_ttl"`
}

type VoiceConfig struct {
	DefaultBackend      string `mapstructure:"default_backend" yaml:"default_backend"`
	MeshMaxParticipants int    `mapstructure:"mesh_max_participants" yaml:"mesh_max_participants"`
}

type MediaConfig struct {
	RTCMinPort             uint16        `mapstructure:"rtc_min_port" yaml:"rtc_min_port"`
	RTCMaxPort             uint16        `mapstructure:"rtc_max_port" yaml:"rtc_max_port"`
	ListenIP               string        `mapstructure:"listen_ip" yaml:"listen_ip"`
	AnnouncedIP            string        `mapstructure:"announced_ip" yaml:"announced_ip"`
	InitialOutgoingBitrate int           `mapstructure:"initial_outgoing_bitrate" yaml:"initial_outgoing_bitrate"`
	MinimumOutgoingBitrate int           `mapstructure:"minimum_outgoing_bitrate" yaml:"minimum_outgoing_bitrate"`
	FatalGrace             time.Duration `mapstructure:"fatal_grace" yaml:"fatal_grace"`
}

type SignalConfig struct {
	SendBuffer       int  `mapstructure:"send_buffer" yaml:"send_buffer"`
	KickSlowClients  bool `mapstructure:"kick_slow_clients" yaml:"kick_slow_clients"`
	EventBusCapacity int  `mapstructure:"event_bus_capacity" yaml:"event_bus_capacity"`
}

// Default returns configuration with starter values for local development.
func Default() Config {
	return Config{
		Mode:           "release",
		Port:           8080,
		AllowedOrigins: []string{"localhost:*", "127.0.0.1:*"},
		ReadLimit:      32768,
		PingPeriod:     54 * time.Second,
		LogLevel:       "info",
		Auth: AuthConfig{
			Secret:   "change-me",
			Issuer:   "campus",
			Audience: "campus-realtime",
		},
		Database: DatabaseConfig{Path: "campus.db"},
		Presence: PresenceConfig{SpawnX: 0, SpawnY: 0, PositionRate: 20},
		Chat:     ChatConfig{TypingTTL: 3 * time.Second},
		Voice:    VoiceConfig{DefaultBackend: "mesh", MeshMaxParticipants: 6},
		Media: MediaConfig{
			RTCMinPort:             40000,
			RTCMaxPort:             49999,
			ListenIP:               "0.0.0.0",
			InitialOutgoingBitrate: 1_000_000,
			MinimumOutgoingBitrate: 100_000,
			FatalGrace:             2 * time.Second,
		},
		Signal: SignalConfig{SendBuffer: 64, KickSlowClients: true, EventBusCapacity: 1024},
	}
}

// Load builds configuration from defaults, the config file and CAMPUS_* env vars.
// A missing file is created from the defaults.
func Load(logger *zerolog.Logger, explicitPath string) (*Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix("CAMPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := resolvePath(explicitPath)
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, path, fmt.Errorf("read config: %w", err)
		}
		if werr := writeDefault(path, cfg); werr != nil {
			logger.Warn().Err(werr).Str("path", path).Msg("config file not found, using defaults")
		} else {
			logger.Info().Str("path", path).Msg("created default config")
		}
	} else {
		logger.Info().Str("path", path).Msg("loaded config")
	}

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return nil, path, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := out.validate(); err != nil {
		return nil, path, err
	}
	logger.Info().Str("mode", out.Mode).Int("port", out.Port).Str("voice", out.Voice.DefaultBackend).Msg("config resolved")
	return &out, path, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Media.RTCMinPort > c.Media.RTCMaxPort {
		return fmt.Errorf("media port range %d-%d is empty", c.Media.RTCMinPort, c.Media.RTCMaxPort)
	}
	switch c.Voice.DefaultBackend {
	case "mesh", "sfu":
	default:
		return fmt.Errorf("unknown voice backend %q", c.Voice.DefaultBackend)
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("allowed_origins", cfg.AllowedOrigins)
	v.SetDefault("read_limit", cfg.ReadLimit)
	v.SetDefault("ping_period", cfg.PingPeriod)
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetDefault("auth.secret", cfg.Auth.Secret)
	v.SetDefault("auth.issuer", cfg.Auth.Issuer)
	v.SetDefault("auth.audience", cfg.Auth.Audience)
	v.SetDefault("database.path", cfg.Database.Path)

	v.SetDefault("presence.spawn_x", cfg.Presence.SpawnX)
	v.SetDefault("presence.spawn_y", cfg.Presence.SpawnY)
	v.SetDefault("presence.position_rate", cfg.Presence.PositionRate)
	v.SetDefault("chat.typing_ttl", cfg.Chat.TypingTTL)
	v.SetDefault("voice.default_backend", cfg.Voice.DefaultBackend)
	v.SetDefault("voice.mesh_max_participants", cfg.Voice.MeshMaxParticipants)

	v.SetDefault("media.rtc_min_port", cfg.Media.RTCMinPort)
	v.SetDefault("media.rtc_max_port", cfg.Media.RTCMaxPort)
	v.SetDefault("media.listen_ip", cfg.Media.ListenIP)
	v.SetDefault("media.announced_ip", cfg.Media.AnnouncedIP)
	v.SetDefault("media.initial_outgoing_bitrate", cfg.Media.InitialOutgoingBitrate)
	v.SetDefault("media.minimum_outgoing_bitrate", cfg.Media.MinimumOutgoingBitrate)
	v.SetDefault("media.fatal_grace", cfg.Media.FatalGrace)

	v.SetDefault("signal.send_buffer", cfg.Signal.SendBuffer)
	v.SetDefault("signal.kick_slow_clients", cfg.Signal.KickSlowClients)
	v.SetDefault("signal.event_bus_capacity", cfg.Signal.EventBusCapacity)
}

// resolvePath prefers the explicit flag, then config/config.<CONFIG_ENV>.yaml.
func resolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return filepath.Join("config", fmt.Sprintf("config.%s.yaml", env))
}

func writeDefault(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
