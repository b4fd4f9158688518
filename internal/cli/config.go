package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/matzehuels/nixmirror/pkg/buildinfo"
	"github.com/matzehuels/nixmirror/pkg/errors"
	"github.com/matzehuels/nixmirror/pkg/mirror"
)

// DefaultCacheURL is the upstream binary cache used when none is configured.
const DefaultCacheURL = "https://cache.nixos.org"

// Config holds settings shared by the commands. Values come from the
// config file and are overridden by flags that were set explicitly.
type Config struct {
	CacheURL    string `toml:"cache_url"`
	MirrorDir   string `toml:"mirror_dir"`
	Parallelism int    `toml:"parallelism"`
	MetricsFile string `toml:"metrics_file"`
	UserAgent   string `toml:"user_agent"`
}

func defaultConfig() Config {
	return Config{
		CacheURL:    DefaultCacheURL,
		Parallelism: mirror.DefaultParallelism,
		UserAgent:   buildinfo.UserAgent(),
	}
}

// configPath returns the config file location using the XDG standard
// (~/.config/nixmirror/config.toml).
func configPath() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// loadConfig reads the config file at path over the defaults. An empty
// path means the default location, which may be absent; an explicit path
// must exist.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		p, err := configPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return defaultConfig(), nil
		}
		if os.IsNotExist(err) {
			return cfg, errors.Wrap(errors.ErrCodeInvalidInput, err, "config file %s", path)
		}
		return cfg, errors.Wrap(errors.ErrCodeParse, err, "config file %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, errors.New(errors.ErrCodeInvalidInput, "config file %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// validate checks the values a mirror run depends on.
func (c Config) validate() error {
	if err := errors.ValidateURL(c.CacheURL); err != nil {
		return err
	}
	return errors.ValidateParallelism(c.Parallelism)
}

// configFlags are the flags that may override config file values.
type configFlags struct {
	configFile  string
	cacheURL    string
	parallelism int
	metricsFile string
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/nixmirror/config.toml)")
	cmd.Flags().StringVarP(&f.cacheURL, "cache-url", "c", DefaultCacheURL, "binary cache to mirror")
	cmd.Flags().IntVarP(&f.parallelism, "parallelism", "p", mirror.DefaultParallelism, "maximum concurrent resolutions")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
}

// resolve loads the config file and applies the flags the user set.
func (f *configFlags) resolve(cmd *cobra.Command) (Config, error) {
	cfg, err := loadConfig(f.configFile)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("cache-url") {
		cfg.CacheURL = f.cacheURL
	}
	if cmd.Flags().Changed("parallelism") {
		cfg.Parallelism = f.parallelism
	}
	if cmd.Flags().Changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	return cfg, cfg.validate()
}
