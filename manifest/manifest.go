// Package manifest loads test declarations from a YAML or TOML file.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

// File is the top-level manifest document.
type File struct {
	Tests []Test `yaml:"tests" toml:"tests"`
}

// Test is one declared test as written in the manifest.
type Test struct {
	Name              string         `yaml:"name" toml:"name"`
	Command           []string       `yaml:"command" toml:"command"`
	Directory         string         `yaml:"directory" toml:"directory"`
	Environment       []string       `yaml:"environment" toml:"environment"`
	Timeout           *string        `yaml:"timeout" toml:"timeout"`
	RequiredRegex     []string       `yaml:"required_regex" toml:"required_regex"`
	ErrorRegex        []string       `yaml:"error_regex" toml:"error_regex"`
	TimeoutAfterMatch *TimeoutSwitch `yaml:"timeout_after_match" toml:"timeout_after_match"`
	SkipReturnCode    *int           `yaml:"skip_return_code" toml:"skip_return_code"`
	WillFail          bool           `yaml:"will_fail" toml:"will_fail"`
	Disabled          bool           `yaml:"disabled" toml:"disabled"`
	RequiredFiles     []string       `yaml:"required_files" toml:"required_files"`
	Labels            []string       `yaml:"labels" toml:"labels"`
	Depends           []string       `yaml:"depends" toml:"depends"`
	FixturesSetup     []string       `yaml:"fixtures_setup" toml:"fixtures_setup"`
	FixturesRequired  []string       `yaml:"fixtures_required" toml:"fixtures_required"`
	RepeatCount       int            `yaml:"repeat_count" toml:"repeat_count"`
	RunUntilFail      bool           `yaml:"run_until_fail" toml:"run_until_fail"`
}

// TimeoutSwitch replaces the timeout once any of Regex matches the output.
type TimeoutSwitch struct {
	Regex   []string `yaml:"regex" toml:"regex"`
	Timeout string   `yaml:"timeout" toml:"timeout"`
}

// Load reads the manifest at path. The format is chosen by extension;
// relative test directories are resolved against the manifest's directory.
func Load(path string) ([]types.TestConfig, error) {
	f, err := decode(path)
	if err != nil {
		return nil, err
	}
	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving manifest directory: %w", err)
	}
	return f.TestConfigs(base)
}

func decode(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parsing manifest: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(raw), &f); err != nil {
			return nil, fmt.Errorf("parsing manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", ext)
	}
	return &f, nil
}

// TestConfigs validates the manifest and converts it. Indexes are assigned
// in declaration order starting at 1.
func (f *File) TestConfigs(baseDir string) ([]types.TestConfig, error) {
	if len(f.Tests) == 0 {
		return nil, errors.New("manifest declares no tests")
	}

	seen := make(map[string]struct{}, len(f.Tests))
	out := make([]types.TestConfig, 0, len(f.Tests))
	for i, t := range f.Tests {
		if t.Name == "" {
			return nil, fmt.Errorf("test %d: missing name", i+1)
		}
		if _, ok := seen[t.Name]; ok {
			return nil, fmt.Errorf("duplicate test name %q", t.Name)
		}
		seen[t.Name] = struct{}{}

		cfg, err := t.toConfig(baseDir)
		if err != nil {
			return nil, fmt.Errorf("test %q: %w", t.Name, err)
		}
		cfg.Index = i + 1
		out = append(out, cfg)
	}

	for _, cfg := range out {
		for _, dep := range cfg.Depends {
			if _, ok := seen[dep]; !ok {
				return nil, fmt.Errorf("test %q: depends on unknown test %q", cfg.Name, dep)
			}
		}
	}
	return out, nil
}

func (t *Test) toConfig(baseDir string) (types.TestConfig, error) {
	if len(t.Command) == 0 || t.Command[0] == "" {
		return types.TestConfig{}, errors.New("missing command")
	}
	for _, kv := range t.Environment {
		if !strings.Contains(kv, "=") {
			return types.TestConfig{}, fmt.Errorf("environment entry %q is not KEY=VALUE", kv)
		}
	}

	cfg := types.TestConfig{
		Name:             t.Name,
		Command:          append([]string(nil), t.Command...),
		Directory:        baseDir,
		Environment:      append([]string(nil), t.Environment...),
		SkipReturnCode:   -1,
		WillFail:         t.WillFail,
		Disabled:         t.Disabled,
		RepeatCount:      t.RepeatCount,
		RunUntilFail:     t.RunUntilFail,
		Labels:           t.Labels,
		Depends:          t.Depends,
		FixturesSetup:    t.FixturesSetup,
		FixturesRequired: t.FixturesRequired,
	}
	if t.Directory != "" {
		cfg.Directory = resolve(baseDir, t.Directory)
	}
	for _, f := range t.RequiredFiles {
		cfg.RequiredFiles = append(cfg.RequiredFiles, resolve(cfg.Directory, f))
	}
	if t.SkipReturnCode != nil {
		cfg.SkipReturnCode = *t.SkipReturnCode
	}
	if t.RepeatCount < 0 {
		return types.TestConfig{}, fmt.Errorf("negative repeat_count %d", t.RepeatCount)
	}

	if t.Timeout != nil {
		d, err := ParseTimeout(*t.Timeout)
		if err != nil {
			return types.TestConfig{}, fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = d
		cfg.ExplicitTimeout = true
	}

	var err error
	if cfg.RequiredRegex, err = types.NewRegexRules(t.RequiredRegex); err != nil {
		return types.TestConfig{}, fmt.Errorf("required_regex: %w", err)
	}
	if cfg.ErrorRegex, err = types.NewRegexRules(t.ErrorRegex); err != nil {
		return types.TestConfig{}, fmt.Errorf("error_regex: %w", err)
	}
	if sw := t.TimeoutAfterMatch; sw != nil {
		if len(sw.Regex) == 0 {
			return types.TestConfig{}, errors.New("timeout_after_match: no regex")
		}
		if cfg.TimeoutRegex, err = types.NewRegexRules(sw.Regex); err != nil {
			return types.TestConfig{}, fmt.Errorf("timeout_after_match: %w", err)
		}
		if cfg.AlternateTimeout, err = ParseTimeout(sw.Timeout); err != nil {
			return types.TestConfig{}, fmt.Errorf("timeout_after_match: %w", err)
		}
	}
	return cfg, nil
}

// ParseTimeout accepts a Go duration ("90s", "1m30s") or a plain number of
// seconds ("1.5").
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty timeout")
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative timeout %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative timeout %q", s)
	}
	return d, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
