// Package config loads the server configuration from a YAML file with
// TCG_ prefixed environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/magefree/tcg-server-go/internal/game/rules"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TCG_SERVER_ADDRESS.
const EnvPrefix = "TCG"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Game      GameConfig      `mapstructure:"game"`
	Data      DataConfig      `mapstructure:"data"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxMatches      int           `mapstructure:"max_matches"`
	// ReplayDir receives the match log of every finished match. Empty
	// disables replay files.
	ReplayDir string `mapstructure:"replay_dir"`
}

// WebSocketConfig tunes player connections.
type WebSocketConfig struct {
	RPCTimeout     time.Duration `mapstructure:"rpc_timeout"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig describes the PostgreSQL connection.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// DSN returns the connection URL of the database.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	if d.MaxConns > 0 {
		q.Set("pool_max_conns", fmt.Sprint(d.MaxConns))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// StorageConfig selects where matches are persisted.
type StorageConfig struct {
	// Driver is postgres, sqlite or none.
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GameConfig overrides the rule limits of new matches.
type GameConfig struct {
	Rules rules.GameConfig `mapstructure:",squash"`
	// Behavior is current or legacy.
	Behavior   string `mapstructure:"behavior"`
	AlwaysOmni bool   `mapstructure:"always_omni"`
}

// VersionBehavior resolves Behavior.
func (g GameConfig) VersionBehavior() (rules.VersionBehavior, error) {
	switch g.Behavior {
	case "", "current":
		return rules.CurrentVersionBehavior(), nil
	case "legacy":
		return rules.LegacyVersionBehavior(), nil
	}
	return rules.VersionBehavior{}, fmt.Errorf("unknown game behavior %q", g.Behavior)
}

// DataConfig locates the definitions file.
type DataConfig struct {
	Definitions string `mapstructure:"definitions"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_matches", 100)
	v.SetDefault("server.replay_dir", "")

	v.SetDefault("websocket.rpc_timeout", 2*time.Minute)
	v.SetDefault("websocket.write_wait", 10*time.Second)
	v.SetDefault("websocket.pong_wait", 60*time.Second)
	v.SetDefault("websocket.max_message_size", 64*1024)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.allowed_origins", []string{})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tcg")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "tcg")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.driver", "none")
	v.SetDefault("storage.sqlite_path", "data/matches.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	d := rules.DefaultGameConfig()
	v.SetDefault("game.random_seed", 0)
	v.SetDefault("game.initial_hands_count", d.InitialHandsCount)
	v.SetDefault("game.initial_dice_count", d.InitialDiceCount)
	v.SetDefault("game.max_hands_count", d.MaxHandsCount)
	v.SetDefault("game.max_dice_count", d.MaxDiceCount)
	v.SetDefault("game.max_pile_count", d.MaxPileCount)
	v.SetDefault("game.max_rounds_count", d.MaxRoundsCount)
	v.SetDefault("game.max_summons_count", d.MaxSummonsCount)
	v.SetDefault("game.max_supports_count", d.MaxSupportsCount)
	v.SetDefault("game.behavior", "current")
	v.SetDefault("game.always_omni", false)

	v.SetDefault("data.definitions", "configs/definitions.yaml")
}

// Load reads path and applies environment overrides. An empty path uses
// defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every inconsistent setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if c.Server.MaxMatches <= 0 {
		errs = append(errs, errors.New("server.max_matches must be positive"))
	}
	switch c.Storage.Driver {
	case "none", "postgres":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}
	if _, err := c.Game.VersionBehavior(); err != nil {
		errs = append(errs, err)
	}
	if c.Game.Rules.MaxRoundsCount <= 0 || c.Game.Rules.InitialHandsCount < 0 {
		errs = append(errs, errors.New("game limits must be positive"))
	}
	if c.Data.Definitions == "" {
		errs = append(errs, errors.New("data.definitions is required"))
	}
	return errors.Join(errs...)
}
