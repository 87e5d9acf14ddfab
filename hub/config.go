package hub

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultEndpoint    = "https://huggingface.co"
	DefaultEtagTimeout = 10 * time.Second
)

// Config holds the environment-derived settings of a [Hub].
//
// WARNING: Token is a secret and should not be logged.
type Config struct {
	Endpoint    string
	Home        string
	CacheDir    string
	Token       string
	Offline     bool
	EtagTimeout time.Duration
}

// envConfig is the raw shape viper decodes into.
type envConfig struct {
	Endpoint     string  `mapstructure:"endpoint"`
	Home         string  `mapstructure:"home"`
	XDGCacheHome string  `mapstructure:"xdg_cache_home"`
	CacheDir     string  `mapstructure:"cache_dir"`
	Token        string  `mapstructure:"token"`
	Offline      string  `mapstructure:"offline"`
	EtagTimeout  float64 `mapstructure:"etag_timeout"`
}

// envBindings maps config keys to the environment variables that can
// provide them. The first name is preferred; later ones are legacy names
// still honoured for compatibility.
var envBindings = map[string][]string{
	"endpoint":       {"HF_ENDPOINT"},
	"home":           {"HF_HOME"},
	"xdg_cache_home": {"XDG_CACHE_HOME"},
	"cache_dir":      {"HF_HUB_CACHE", "HUGGINGFACE_HUB_CACHE"},
	"token":          {"HF_TOKEN", "HUGGING_FACE_HUB_TOKEN"},
	"offline":        {"HF_HUB_OFFLINE"},
	"etag_timeout":   {"HF_HUB_ETAG_TIMEOUT"},
}

// LoadConfig reads the hub configuration from the environment, filling
// defaults and the stored token file (<home>/token) where unset.
func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetDefault("endpoint", DefaultEndpoint)
	v.SetDefault("etag_timeout", DefaultEtagTimeout.Seconds())

	if err := bindEnvs(v); err != nil {
		return Config{}, fmt.Errorf("binding env: %w", err)
	}

	var raw envConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if raw.EtagTimeout < 0 {
		return Config{}, fmt.Errorf("etag timeout must not be negative, got %v", raw.EtagTimeout)
	}

	cfg := Config{
		Endpoint:    strings.TrimRight(raw.Endpoint, "/"),
		Home:        raw.Home,
		CacheDir:    raw.CacheDir,
		Token:       strings.TrimSpace(raw.Token),
		Offline:     isTruthy(raw.Offline),
		EtagTimeout: time.Duration(raw.EtagTimeout * float64(time.Second)),
	}

	if cfg.Home == "" {
		home, err := defaultHome(raw.XDGCacheHome)
		if err != nil {
			return Config{}, err
		}
		cfg.Home = home
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.Home, "hub")
	}

	if cfg.Token == "" {
		token, err := readTokenFile(filepath.Join(cfg.Home, "token"))
		if err != nil {
			return Config{}, err
		}
		cfg.Token = token
	}

	return cfg, nil
}

// defaultHome is <xdgCacheHome>/huggingface, with ~/.cache standing in for
// an empty xdgCacheHome.
func defaultHome(xdgCacheHome string) (string, error) {
	if xdgCacheHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home dir: %w", err)
		}
		xdgCacheHome = filepath.Join(home, ".cache")
	}
	return filepath.Join(xdgCacheHome, "huggingface"), nil
}

// bindEnvs binds the environment variables to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}

func readTokenFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func isTruthy(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "ON", "YES", "TRUE":
		return true
	default:
		return false
	}
}
