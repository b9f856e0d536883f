// Package config holds the merge run's option surface. Flags are
// authoritative; an optional YAML file supplies defaults and a .env file (or
// the environment) supplies backend credentials.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Scope selects how much of each source store is traversed.
type Scope string

const (
	// ScopeInbox merges only the source's inbox-equivalent container.
	ScopeInbox Scope = "inbox"
	// ScopeAllFolders merges the entire folder tree from the store root.
	ScopeAllFolders Scope = "all"
)

// Provider backends.
const (
	ProviderLocal = "local"
	ProviderIMAP  = "imap"
)

// Options is the full configuration of one merge run.
type Options struct {
	Sources        []string `yaml:"sources"`
	DestPath       string   `yaml:"dest"`
	UseDefaultDest bool     `yaml:"default_dest"`
	Scope          Scope    `yaml:"scope"`
	Provider       string   `yaml:"provider"`

	DryRun         bool `yaml:"dry_run"`
	DetachSources  bool `yaml:"detach_sources"`
	SkipDuplicates bool `yaml:"skip_duplicates"`
	Verbose        bool `yaml:"verbose"`

	ReclaimEvery  int  `yaml:"reclaim_every"`
	Monitor       bool `yaml:"monitor"`
	MonitorEvery  int  `yaml:"monitor_every"`
	ProgressEvery int  `yaml:"progress_every"`

	LogFile   string `yaml:"log_file"`
	LogAppend bool   `yaml:"log_append"`
}

// Defaults returns the baseline option set before any file, env or flag
// input.
func Defaults() Options {
	return Options{
		Scope:         ScopeAllFolders,
		Provider:      ProviderLocal,
		ReclaimEvery:  500,
		MonitorEvery:  1000,
		ProgressEvery: 100,
	}
}

// LoadFile overlays YAML config from path onto o.
func (o *Options) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadEnv loads a .env file into the process environment if one exists.
// Backend credentials (IMAP hosts, accounts) are read from the environment
// by the providers, not carried in Options.
func LoadEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

// Normalize trims and deduplicates the source list, splitting comma-joined
// entries. Order of first appearance is preserved.
func (o *Options) Normalize() {
	seen := make(map[string]struct{})
	var sources []string
	for _, raw := range o.Sources {
		for _, part := range strings.Split(raw, ",") {
			src := strings.TrimSpace(part)
			if src == "" {
				continue
			}
			if _, dup := seen[src]; dup {
				continue
			}
			seen[src] = struct{}{}
			sources = append(sources, src)
		}
	}
	o.Sources = sources
}

// Validate enforces the precondition rules. A violation here aborts the run
// before any store is touched.
func (o *Options) Validate() error {
	if len(o.Sources) == 0 {
		return fmt.Errorf("at least one source store is required")
	}
	if o.DestPath == "" && !o.UseDefaultDest {
		return fmt.Errorf("a destination store path or --default-dest is required")
	}
	if o.DestPath != "" && o.UseDefaultDest {
		return fmt.Errorf("destination store path and --default-dest are mutually exclusive")
	}
	if o.Scope != ScopeInbox && o.Scope != ScopeAllFolders {
		return fmt.Errorf("scope must be %q or %q", ScopeInbox, ScopeAllFolders)
	}
	if o.Provider != ProviderLocal && o.Provider != ProviderIMAP {
		return fmt.Errorf("provider must be %q or %q", ProviderLocal, ProviderIMAP)
	}
	if o.ReclaimEvery < 0 {
		return fmt.Errorf("reclaim cadence must be >= 0")
	}
	if o.MonitorEvery < 0 {
		return fmt.Errorf("monitor cadence must be >= 0")
	}
	if o.ProgressEvery < 0 {
		return fmt.Errorf("progress cadence must be >= 0")
	}
	return nil
}
