package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the config reads. A key
// such as canvas.move_burst is read from NODEGRID_CANVAS_MOVE_BURST.
const EnvPrefix = "NODEGRID"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Listen   string         `mapstructure:"listen" validate:"required"`
	Log      LogConfig      `mapstructure:"log"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Canvas   CanvasConfig   `mapstructure:"canvas"`
	Exec     ExecConfig     `mapstructure:"exec"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Relay    RelayConfig    `mapstructure:"relay"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=auto text json"`
}

// CatalogConfig points at the directory of *.hcl node kind files.
type CatalogConfig struct {
	Dir      string        `mapstructure:"dir"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

type GraphConfig struct {
	AllowSelfLoops       bool `mapstructure:"allow_self_loops"`
	RejectDuplicateEdges bool `mapstructure:"reject_duplicate_edges"`
}

type CanvasConfig struct {
	MoveMode string `mapstructure:"move_mode" validate:"oneof=drop continuous"`
	// MoveRate caps store writes per second during continuous node drags.
	MoveRate  float64 `mapstructure:"move_rate" validate:"gt=0"`
	MoveBurst int     `mapstructure:"move_burst" validate:"gte=1"`
}

type ExecConfig struct {
	MaxSteps int `mapstructure:"max_steps" validate:"gte=1"`
}

type SessionsConfig struct {
	// Max is the number of concurrently open sessions. Zero is unlimited.
	Max int `mapstructure:"max" validate:"gte=0"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=memory badger sqlite"`
	Path   string `mapstructure:"path" validate:"required_unless=Driver memory"`
}

// RelayConfig enables forwarding of session changes to a socket.io server.
// An empty URL disables the relay.
type RelayConfig struct {
	URL                string        `mapstructure:"url" validate:"omitempty,url"`
	Namespace          string        `mapstructure:"namespace"`
	Event              string        `mapstructure:"event"`
	Timeout            time.Duration `mapstructure:"timeout" validate:"gte=0"`
	QueueSize          int           `mapstructure:"queue_size" validate:"gte=0"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// DefaultConfig is the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		Listen:  ":8080",
		Log:     LogConfig{Level: "info", Format: "auto"},
		Catalog: CatalogConfig{Debounce: 200 * time.Millisecond},
		Canvas:  CanvasConfig{MoveMode: "drop", MoveRate: 30, MoveBurst: 1},
		Exec:    ExecConfig{MaxSteps: 10000},
		Storage: StorageConfig{Driver: "memory"},
		Relay:   RelayConfig{Event: "graph_change", Timeout: 15 * time.Second, QueueSize: 256},
	}
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LoadConfig builds the configuration from defaults, then the file at path
// (if any), then a .env file in the working directory and NODEGRID_*
// environment variables, then the flags that were set on the command line.
// flags maps config keys such as "log.level" to the flags that override them.
func LoadConfig(path string, flags map[string]*pflag.Flag) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return loadConfig(path, flags)
}

func loadConfig(path string, flags map[string]*pflag.Flag) (Config, error) {
	v := viper.New()
	setDefaults(v, "", reflect.ValueOf(DefaultConfig()))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		settings, err := decodeFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := v.MergeConfigMap(settings); err != nil {
			return Config{}, fmt.Errorf("failed to merge config file %s: %w", path, err)
		}
	}
	for key, f := range flags {
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return Config{}, fmt.Errorf("failed to bind flag --%s: %w", f.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every leaf of the config struct with viper, so each
// one can be set from the environment.
func setDefaults(v *viper.Viper, prefix string, rv reflect.Value) {
	rt := rv.Type()
	for i := range rt.NumField() {
		key := rt.Field(i).Tag.Get("mapstructure")
		if prefix != "" {
			key = prefix + "." + key
		}
		if f := rv.Field(i); f.Kind() == reflect.Struct {
			setDefaults(v, key, f)
		} else {
			v.SetDefault(key, f.Interface())
		}
	}
}

// decodeFile reads a .toml, .yaml or .yml config file into nested settings.
func decodeFile(path string) (map[string]any, error) {
	settings := make(map[string]any)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, &settings); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .yaml, .yml or .toml", ext)
	}
	return settings, nil
}
