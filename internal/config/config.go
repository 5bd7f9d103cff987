// Package config loads bbls.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jward/bbls/internal/driver"
)

// FileName is the configuration file searched for by Find.
const FileName = "bbls.toml"

// DefaultHook selects the embedded parse hook script.
const DefaultHook = "default"

type Config struct {
	BitBake BitBake `toml:"bitbake"`
	Scan    Scan    `toml:"scan"`
	Docs    Docs    `toml:"docs"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

type BitBake struct {
	WorkingDirectory string `toml:"working_directory"`
	BuildFolder      string `toml:"build_folder"`
	EnvScript        string `toml:"env_script"`
	CommandWrapper   string `toml:"command_wrapper"`
	Shell            string `toml:"shell"`
}

type Scan struct {
	DeepExamine bool   `toml:"deep_examine"`
	ESDKMode    bool   `toml:"esdk_mode"`
	ParseHook   string `toml:"parse_hook"`
}

type Docs struct {
	Dir string `toml:"dir"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		BitBake: BitBake{
			WorkingDirectory: ".",
			BuildFolder:      "build",
			EnvScript:        "sources/poky/oe-init-build-env",
			Shell:            "bash",
		},
	}
}

// Load decodes path over the defaults. Relative directories in the file are
// resolved against the directory holding it.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	cfg.Path = path
	base := filepath.Dir(path)
	cfg.BitBake.WorkingDirectory = resolve(base, cfg.BitBake.WorkingDirectory)
	cfg.Docs.Dir = resolve(base, cfg.Docs.Dir)
	if cfg.Scan.ParseHook != DefaultHook {
		cfg.Scan.ParseHook = resolve(base, cfg.Scan.ParseHook)
	}
	return cfg, nil
}

func resolve(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Find walks up from startDir to locate bbls.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover loads the nearest bbls.toml above startDir, or the defaults when
// there is none.
func Discover(startDir string) (*Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Validate reports settings that make the bitbake driver unusable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BitBake.WorkingDirectory) == "" {
		return errors.New("config: [bitbake].working_directory is empty")
	}
	if strings.TrimSpace(c.BitBake.EnvScript) == "" {
		return errors.New("config: [bitbake].env_script is empty")
	}
	return nil
}

// Driver returns the shell runner settings.
func (c *Config) Driver() driver.Settings {
	return driver.Settings{
		WorkingDirectory: c.BitBake.WorkingDirectory,
		BuildFolder:      c.BitBake.BuildFolder,
		EnvScript:        c.BitBake.EnvScript,
		CommandWrapper:   c.BitBake.CommandWrapper,
		Shell:            c.BitBake.Shell,
	}
}
