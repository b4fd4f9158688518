package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/matzehuels/nixmirror/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigPathXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/custom-config")

	path, err := configPath()
	if err != nil {
		t.Fatalf("configPath() error: %v", err)
	}
	if want := filepath.Join("/tmp/custom-config", appName, "config.toml"); path != want {
		t.Errorf("configPath() = %q, want %q", path, want)
	}
}

func TestConfigPathDefault(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")

	path, err := configPath()
	if err != nil {
		t.Fatalf("configPath() error: %v", err)
	}
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, ".config", appName, "config.toml"); path != want {
		t.Errorf("configPath() = %q, want %q", path, want)
	}
}

func TestLoadConfigDefaultsWhenAbsent(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg != defaultConfig() {
		t.Errorf("loadConfig() = %+v, want defaults", cfg)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
cache_url = "https://mirror.example.org"
mirror_dir = "/srv/mirror"
parallelism = 32
metrics_file = "/var/lib/node_exporter/nixmirror.prom"
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.CacheURL != "https://mirror.example.org" || cfg.MirrorDir != "/srv/mirror" ||
		cfg.Parallelism != 32 || cfg.MetricsFile != "/var/lib/node_exporter/nixmirror.prom" {
		t.Errorf("loadConfig() = %+v", cfg)
	}
	if cfg.UserAgent != defaultConfig().UserAgent {
		t.Errorf("UserAgent = %q, want default", cfg.UserAgent)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		code errors.Code
	}{
		{"missing explicit file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.toml") }, errors.ErrCodeInvalidInput},
		{"bad syntax", func(t *testing.T) string { return writeConfig(t, "parallelism = [") }, errors.ErrCodeParse},
		{"unknown key", func(t *testing.T) string { return writeConfig(t, "paralelism = 4\n") }, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.path(t))
			if !errors.Is(err, tt.code) {
				t.Errorf("loadConfig() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}

	cfg.Parallelism = 0
	if err := cfg.validate(); err == nil {
		t.Error("parallelism 0 should be rejected")
	}

	cfg = defaultConfig()
	cfg.CacheURL = "ftp://cache"
	if err := cfg.validate(); err == nil {
		t.Error("non-http cache URL should be rejected")
	}
}

func TestConfigFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "cache_url = \"https://file.example.org\"\nparallelism = 2\n")

	var f configFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	if err := cmd.ParseFlags([]string{"--config", path, "-p", "16"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := f.resolve(cmd)
	if err != nil {
		t.Fatalf("resolve() error: %v", err)
	}
	if cfg.Parallelism != 16 {
		t.Errorf("Parallelism = %d, want flag value 16", cfg.Parallelism)
	}
	if cfg.CacheURL != "https://file.example.org" {
		t.Errorf("CacheURL = %q, want file value", cfg.CacheURL)
	}
}

func TestConfigFlagsRejectInvalid(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var f configFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	if err := cmd.ParseFlags([]string{"--parallelism", "0"}); err != nil {
		t.Fatal(err)
	}

	_, err := f.resolve(cmd)
	if err == nil || !strings.Contains(err.Error(), "parallelism") {
		t.Errorf("resolve() error = %v, want a parallelism error", err)
	}
}
