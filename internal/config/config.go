package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MICMAGIC_JWT_SECRET.
const EnvPrefix = "MICMAGIC"

type RootConfig struct {
	ActiveConfig string             `mapstructure:"active_config" yaml:"active_config"`
	Configs      map[string]*Config `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Share   ShareConfig   `mapstructure:"share" yaml:"share"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`

	// Name of the profile this config was resolved from
	Profile string `mapstructure:"-" yaml:"-"`
	// Internal field to track inheritance information for config show
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

// InheritanceInfo records, per section, whether a value came from the
// selected profile or was inherited from default.
type InheritanceInfo struct {
	Sections map[string]string
}

type AudioConfig struct {
	Backend         string `mapstructure:"backend" yaml:"backend"` // "auto", "pulse", "alsa", "avfoundation", "dshow"
	Device          string `mapstructure:"device" yaml:"device"`
	SampleRate      int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels        int    `mapstructure:"channels" yaml:"channels"`
	AllowMicrophone bool   `mapstructure:"allow_microphone" yaml:"allow_microphone"`
	Player          string `mapstructure:"player" yaml:"player"` // empty picks the first installed player
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	Format    string `mapstructure:"format" yaml:"format"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"` // "sqlite", "postgres"
	Path        string `mapstructure:"path" yaml:"path"`
	PostgresURL string `mapstructure:"postgres_url" yaml:"postgres_url"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenFile string        `mapstructure:"token_file" yaml:"token_file"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

type ShareConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Bucket          string        `mapstructure:"bucket" yaml:"bucket"`
	Region          string        `mapstructure:"region" yaml:"region"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint"`
	Prefix          string        `mapstructure:"prefix" yaml:"prefix"`
	AccessKeyID     string        `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	URLExpiry       time.Duration `mapstructure:"url_expiry" yaml:"url_expiry"`
}

type RedisConfig struct {
	Addr          string `mapstructure:"addr" yaml:"addr"` // empty disables notifications
	Password      string `mapstructure:"password" yaml:"password"`
	DB            int    `mapstructure:"db" yaml:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix" yaml:"channel_prefix"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

type DisplayConfig struct {
	DateLayout string `mapstructure:"date_layout" yaml:"date_layout"`
	TimeLayout string `mapstructure:"time_layout" yaml:"time_layout"`
}

var (
	validBackends = []string{"auto", "pulse", "alsa", "avfoundation", "dshow"}
	validDrivers  = []string{"sqlite", "postgres"}
	validFormats  = []string{"m4a", "wav", "flac", "mp3", "ogg"}
)

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".local", "share", "micmagic")
	return &Config{
		Audio: AudioConfig{
			Backend:         "auto",
			SampleRate:      44100,
			Channels:        1,
			AllowMicrophone: true,
		},
		Output: OutputConfig{
			Directory: filepath.Join(base, "recordings"),
			Format:    "m4a",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   filepath.Join(base, "micmagic.db"),
		},
		Auth: AuthConfig{
			TokenFile: filepath.Join(base, "token"),
			TokenTTL:  30 * 24 * time.Hour,
		},
		Share: ShareConfig{
			Region:    "us-east-1",
			Prefix:    "memos",
			URLExpiry: 24 * time.Hour,
		},
		Redis: RedisConfig{
			ChannelPrefix: "micmagic",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8420,
		},
		Display: DisplayConfig{
			DateLayout: "1/2/06",
			TimeLayout: "3:04:05 PM",
		},
	}
}

// DefaultPath returns the config file used when --config is not given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "micmagic", "config.yaml")
}

// LoadWithProfile reads configFile, selects profile (or active_config, or
// "default"), inherits unset fields from the default profile and applies
// environment overrides. A missing file yields the built-in defaults.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if configFile == "" {
		configFile = DefaultPath()
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	var selected *Config
	rootConfig, err := ReadRoot(v, configFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if profile != "" && profile != "default" {
			return nil, fmt.Errorf("configuration profile '%s' not found: no config file at %s", profile, configFile)
		}
		selected = Default()
		selected.Profile = "default"
	case err != nil:
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	default:
		selected, err = resolveProfile(rootConfig, profile)
		if err != nil {
			return nil, err
		}
	}

	applyEnv(v, selected)

	selected.Output.Directory = expandPath(selected.Output.Directory)
	selected.Storage.Path = expandPath(selected.Storage.Path)
	selected.Auth.TokenFile = expandPath(selected.Auth.TokenFile)

	if err := Validate(selected); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return selected, nil
}

// ReadRoot reads and unmarshals the whole configuration file.
func ReadRoot(v *viper.Viper, configFile string) (*RootConfig, error) {
	if _, err := os.Stat(configFile); err != nil {
		return nil, err
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section cannot be empty")
	}
	return &rootConfig, nil
}

func resolveProfile(rootConfig *RootConfig, profile string) (*Config, error) {
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists || selectedProfile == nil {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	base := Default()
	if defaultProfile, ok := rootConfig.Configs["default"]; ok && defaultProfile != nil {
		base = mergeConfigs(base, defaultProfile)
	}
	result := base
	if configName != "default" {
		result = mergeConfigs(base, selectedProfile)
	}
	result.Profile = configName
	return result, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	configs := v.GetStringMap("configs")
	if _, ok := configs[newActiveConfig]; !ok {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}
	return nil
}

// applyEnv lets secrets and connection strings come from the environment.
func applyEnv(v *viper.Viper, c *Config) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"jwt_secret", &c.Auth.JWTSecret},
		{"postgres_url", &c.Storage.PostgresURL},
		{"storage_driver", &c.Storage.Driver},
		{"redis_addr", &c.Redis.Addr},
		{"redis_password", &c.Redis.Password},
		{"s3_bucket", &c.Share.Bucket},
		{"s3_endpoint", &c.Share.Endpoint},
		{"s3_access_key_id", &c.Share.AccessKeyID},
		{"s3_secret_access_key", &c.Share.SecretAccessKey},
	}
	for _, o := range overrides {
		if val := v.GetString(o.key); val != "" {
			*o.dst = val
		}
	}
}

// mergeConfigs layers profile over base: every non-zero profile field wins,
// everything else is inherited. Booleans are taken from the profile once
// its section is present.
func mergeConfigs(base, profile *Config) *Config {
	result := *base
	result.Inheritance = &InheritanceInfo{Sections: map[string]string{}}
	mark := func(section string, changed bool) {
		if changed {
			result.Inheritance.Sections[section] = "profile-specific"
		} else if _, ok := result.Inheritance.Sections[section]; !ok {
			result.Inheritance.Sections[section] = "inherited"
		}
	}

	if profile == nil {
		return &result
	}

	p := profile.Audio
	mark("audio", p != AudioConfig{})
	if p.Backend != "" {
		result.Audio.Backend = p.Backend
	}
	if p.Device != "" {
		result.Audio.Device = p.Device
	}
	if p.SampleRate != 0 {
		result.Audio.SampleRate = p.SampleRate
	}
	if p.Channels != 0 {
		result.Audio.Channels = p.Channels
	}
	if p.Player != "" {
		result.Audio.Player = p.Player
	}
	if p != (AudioConfig{}) {
		result.Audio.AllowMicrophone = p.AllowMicrophone
	}

	o := profile.Output
	mark("output", o != OutputConfig{})
	if o.Directory != "" {
		result.Output.Directory = o.Directory
	}
	if o.Format != "" {
		result.Output.Format = o.Format
	}

	s := profile.Storage
	mark("storage", s != StorageConfig{})
	if s.Driver != "" {
		result.Storage.Driver = s.Driver
	}
	if s.Path != "" {
		result.Storage.Path = s.Path
	}
	if s.PostgresURL != "" {
		result.Storage.PostgresURL = s.PostgresURL
	}

	a := profile.Auth
	mark("auth", a != AuthConfig{})
	if a.JWTSecret != "" {
		result.Auth.JWTSecret = a.JWTSecret
	}
	if a.TokenFile != "" {
		result.Auth.TokenFile = a.TokenFile
	}
	if a.TokenTTL != 0 {
		result.Auth.TokenTTL = a.TokenTTL
	}

	sh := profile.Share
	mark("share", sh != ShareConfig{})
	if sh != (ShareConfig{}) {
		result.Share.Enabled = sh.Enabled
	}
	if sh.Bucket != "" {
		result.Share.Bucket = sh.Bucket
	}
	if sh.Region != "" {
		result.Share.Region = sh.Region
	}
	if sh.Endpoint != "" {
		result.Share.Endpoint = sh.Endpoint
	}
	if sh.Prefix != "" {
		result.Share.Prefix = sh.Prefix
	}
	if sh.AccessKeyID != "" {
		result.Share.AccessKeyID = sh.AccessKeyID
	}
	if sh.SecretAccessKey != "" {
		result.Share.SecretAccessKey = sh.SecretAccessKey
	}
	if sh.URLExpiry != 0 {
		result.Share.URLExpiry = sh.URLExpiry
	}

	r := profile.Redis
	mark("redis", r != RedisConfig{})
	if r.Addr != "" {
		result.Redis.Addr = r.Addr
	}
	if r.Password != "" {
		result.Redis.Password = r.Password
	}
	if r.DB != 0 {
		result.Redis.DB = r.DB
	}
	if r.ChannelPrefix != "" {
		result.Redis.ChannelPrefix = r.ChannelPrefix
	}

	srv := profile.Server
	mark("server", srv != ServerConfig{})
	if srv.Host != "" {
		result.Server.Host = srv.Host
	}
	if srv.Port != 0 {
		result.Server.Port = srv.Port
	}

	d := profile.Display
	mark("display", d != DisplayConfig{})
	if d.DateLayout != "" {
		result.Display.DateLayout = d.DateLayout
	}
	if d.TimeLayout != "" {
		result.Display.TimeLayout = d.TimeLayout
	}

	return &result
}

// Validate checks the resolved configuration.
func Validate(c *Config) error {
	if !oneOf(c.Audio.Backend, validBackends) {
		return fmt.Errorf("audio.backend must be one of %s, got: %s", strings.Join(validBackends, ", "), c.Audio.Backend)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got: %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels <= 0 || c.Audio.Channels > 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got: %d", c.Audio.Channels)
	}
	if !oneOf(c.Output.Format, validFormats) {
		return fmt.Errorf("output.format must be one of %s, got: %s", strings.Join(validFormats, ", "), c.Output.Format)
	}
	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}
	if !oneOf(c.Storage.Driver, validDrivers) {
		return fmt.Errorf("storage.driver must be one of %s, got: %s", strings.Join(validDrivers, ", "), c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresURL == "" {
		return fmt.Errorf("storage.postgres_url is required for the postgres driver")
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for the sqlite driver")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive, got: %s", c.Auth.TokenTTL)
	}
	if c.Share.Enabled && c.Share.Bucket == "" {
		return fmt.Errorf("share.bucket is required when sharing is enabled")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func oneOf(s string, options []string) bool {
	for _, o := range options {
		if strings.EqualFold(s, o) {
			return true
		}
	}
	return false
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
