// Package config loads and validates the obsbridge configuration. The
// loaded result is a plain value threaded into every entry point; nothing
// else in the pipeline reads viper or the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Vault names one markdown vault root.
type Vault struct {
	Name string `mapstructure:"name" yaml:"name"`
	Path string `mapstructure:"path" yaml:"path"`
}

// List names one reminders list.
type List struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Identifier string `mapstructure:"identifier" yaml:"identifier"`
}

// CreationCaps bounds per-direction counterpart creations per run.
type CreationCaps struct {
	MdToRem int `mapstructure:"md_to_rem" yaml:"md_to_rem"`
	RemToMd int `mapstructure:"rem_to_md" yaml:"rem_to_md"`
}

// Config is the injected configuration value.
type Config struct {
	Vaults []Vault `mapstructure:"vaults" yaml:"vaults"`
	Lists  []List  `mapstructure:"lists" yaml:"lists"`

	MinScore                   float64      `mapstructure:"min_score" yaml:"min_score"`
	DaysTolerance              int          `mapstructure:"days_tolerance" yaml:"days_tolerance"`
	IncludeCompletedInMatching bool         `mapstructure:"include_completed_in_matching" yaml:"include_completed_in_matching"`
	CreationCaps               CreationCaps `mapstructure:"creation_caps" yaml:"creation_caps"`
	CreationAgeDays            int          `mapstructure:"creation_age_days" yaml:"creation_age_days"`
	DefaultCreationVault       string       `mapstructure:"default_creation_vault" yaml:"default_creation_vault"`
	DefaultCreationList        string       `mapstructure:"default_creation_list" yaml:"default_creation_list"`

	StateDir       string        `mapstructure:"state_dir" yaml:"state_dir"`
	InboxNote      string        `mapstructure:"inbox_note" yaml:"inbox_note"`
	LockTimeout    time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`
	GatewayTimeout time.Duration `mapstructure:"gateway_timeout" yaml:"gateway_timeout"`
	UseHungarian   bool          `mapstructure:"use_hungarian" yaml:"use_hungarian"`
	ExcludeDirs    []string      `mapstructure:"exclude_dirs" yaml:"exclude_dirs"`
	CacheEnabled   bool          `mapstructure:"cache_enabled" yaml:"cache_enabled"`
}

// Defaults returns a config populated with every default value.
func Defaults() Config {
	return Config{
		MinScore:      0.75,
		DaysTolerance: 1,
		// Matching sees completed tasks so status flips on linked pairs are
		// detected; counterpart creation filters them separately.
		IncludeCompletedInMatching: true,
		CreationCaps:               CreationCaps{MdToRem: 50, RemToMd: 50},
		CreationAgeDays:            30,
		InboxNote:                  "RemindersInbox.md",
		LockTimeout:                30 * time.Second,
		GatewayTimeout:             30 * time.Second,
		UseHungarian:               true,
		CacheEnabled:               true,
	}
}

// Load reads the configuration. Precedence: explicit path, then
// .obsbridge/config.yaml walking up from CWD, then the user config dir,
// then ~/.obsbridge/config.yaml. OBR_-prefixed environment variables
// override file values.
func Load(explicitPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	switch {
	case explicitPath != "":
		v.SetConfigFile(explicitPath)
	default:
		if p := discoverConfig(); p != "" {
			v.SetConfigFile(p)
		}
	}

	v.SetEnvPrefix("OBR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("min_score", d.MinScore)
	v.SetDefault("days_tolerance", d.DaysTolerance)
	v.SetDefault("include_completed_in_matching", true)
	v.SetDefault("creation_caps.md_to_rem", d.CreationCaps.MdToRem)
	v.SetDefault("creation_caps.rem_to_md", d.CreationCaps.RemToMd)
	v.SetDefault("creation_age_days", d.CreationAgeDays)
	v.SetDefault("inbox_note", d.InboxNote)
	v.SetDefault("lock_timeout", d.LockTimeout)
	v.SetDefault("gateway_timeout", d.GatewayTimeout)
	v.SetDefault("use_hungarian", true)
	v.SetDefault("cache_enabled", true)
	v.SetDefault("state_dir", defaultStateDir())

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	for i := range cfg.Vaults {
		cfg.Vaults[i].Path = expandPath(cfg.Vaults[i].Path)
	}
	cfg.StateDir = expandPath(cfg.StateDir)
	return cfg, nil
}

// Validate checks the config. Missing vault paths and empty list ids are
// fatal only for that vault or list: offenders are dropped and reported.
func (c *Config) Validate() []error {
	var errs []error
	validVaults := c.Vaults[:0]
	for _, vault := range c.Vaults {
		if vault.Path == "" {
			errs = append(errs, fmt.Errorf("vault %q: missing path", vault.Name))
			continue
		}
		if _, err := os.Stat(vault.Path); err != nil {
			errs = append(errs, fmt.Errorf("vault %q: %w", vault.Name, err))
			continue
		}
		validVaults = append(validVaults, vault)
	}
	c.Vaults = validVaults

	validLists := c.Lists[:0]
	for _, list := range c.Lists {
		if list.Identifier == "" {
			errs = append(errs, fmt.Errorf("list %q: missing identifier", list.Name))
			continue
		}
		validLists = append(validLists, list)
	}
	c.Lists = validLists
	return errs
}

// ListIDs returns the configured list identifiers in order.
func (c *Config) ListIDs() []string {
	ids := make([]string, 0, len(c.Lists))
	for _, l := range c.Lists {
		ids = append(ids, l.Identifier)
	}
	return ids
}

// VaultByName returns the named vault, or the first one when name is empty.
func (c *Config) VaultByName(name string) (Vault, bool) {
	if name == "" && len(c.Vaults) > 0 {
		return c.Vaults[0], true
	}
	for _, v := range c.Vaults {
		if v.Name == name {
			return v, true
		}
	}
	return Vault{}, false
}

// WriteDefault writes a starter config file at path, refusing to overwrite.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(Defaults())
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func discoverConfig() string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			p := filepath.Join(dir, ".obsbridge", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		p := filepath.Join(configDir, "obsbridge", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".obsbridge", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".obsbridge", "state")
	}
	return ".obsbridge-state"
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
