// Package config provides configuration management for contextkeeper.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (CONTEXTKEEPER_*)
// 3. Project config (.contextkeeper/config.yaml in cwd)
// 4. Home config (~/.contextkeeper/config.yaml)
// 5. Defaults
package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all contextkeeper configuration.
type Config struct {
	// Output controls the default output format (text, json).
	Output string `yaml:"output" json:"output"`

	// BaseDir is the data directory (default: .contextkeeper).
	BaseDir string `yaml:"base_dir" json:"base_dir"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Save settings
	Save SaveConfig `yaml:"save" json:"save"`

	// Transcript settings
	Transcript TranscriptConfig `yaml:"transcript" json:"transcript"`
}

// SaveConfig holds save throttling and rotation settings.
type SaveConfig struct {
	// ThrottleSeconds is the dedup window for repeated saves.
	ThrottleSeconds int `yaml:"throttle_seconds" json:"throttle_seconds"`

	// StopThrottleSeconds is the wider dedup window for stop-trigger saves.
	StopThrottleSeconds int `yaml:"stop_throttle_seconds" json:"stop_throttle_seconds"`

	// MinGrowthBytes is how much the transcript must grow since the last
	// save before another save is worthwhile.
	MinGrowthBytes int `yaml:"min_growth_bytes" json:"min_growth_bytes"`

	// MaxSnapshots caps rotated snapshots per trigger name.
	MaxSnapshots map[string]int `yaml:"max_snapshots" json:"max_snapshots"`
}

// TranscriptConfig holds transcript parsing settings.
type TranscriptConfig struct {
	// MaxContentLength is the truncation limit (0 = no truncation).
	MaxContentLength int `yaml:"max_content_length" json:"max_content_length"`

	// TranscriptsDir is where agent transcripts are located.
	TranscriptsDir string `yaml:"transcripts_dir" json:"transcripts_dir"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput  = "text"
	defaultBaseDir = ".contextkeeper"
)

// defaultMaxSnapshots is the per-trigger snapshot rotation cap.
func defaultMaxSnapshots() map[string]int {
	return map[string]int{
		"precompact": 3,
		"sessionend": 3,
		"threshold":  2,
		"stop":       5,
	}
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Output:  defaultOutput,
		BaseDir: defaultBaseDir,
		Verbose: false,
		Save: SaveConfig{
			ThrottleSeconds:     5,
			StopThrottleSeconds: 30,
			MinGrowthBytes:      1024,
			MaxSnapshots:        defaultMaxSnapshots(),
		},
		Transcript: TranscriptConfig{
			MaxContentLength: 1500,
			TranscriptsDir:   filepath.Join(homeDir, ".claude", "projects"),
		},
	}
}

// LatestSnapshotPath returns the path of the live snapshot file.
func (c *Config) LatestSnapshotPath() string {
	return filepath.Join(c.BaseDir, "latest.md")
}

// WorkLogPath returns the path of the work log.
func (c *Config) WorkLogPath() string {
	return filepath.Join(c.BaseDir, "work-log.jsonl")
}

// SnapshotsDir returns the directory for rotated trigger snapshots.
func (c *Config) SnapshotsDir() string {
	return filepath.Join(c.BaseDir, "snapshots")
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".contextkeeper", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("CONTEXTKEEPER_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".contextkeeper", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("CONTEXTKEEPER_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("CONTEXTKEEPER_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if os.Getenv("CONTEXTKEEPER_VERBOSE") == "true" || os.Getenv("CONTEXTKEEPER_VERBOSE") == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("CONTEXTKEEPER_TRANSCRIPTS_DIR"); v != "" {
		cfg.Transcript.TranscriptsDir = v
	}
	return cfg
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	mergeStr(&dst.BaseDir, src.BaseDir)
	if src.Verbose {
		dst.Verbose = true
	}

	mergeSave(&dst.Save, &src.Save)
	mergeTranscript(&dst.Transcript, &src.Transcript)

	return dst
}

// mergeSave merges save-specific config fields.
func mergeSave(dst, src *SaveConfig) {
	mergeInt(&dst.ThrottleSeconds, src.ThrottleSeconds)
	mergeInt(&dst.StopThrottleSeconds, src.StopThrottleSeconds)
	mergeInt(&dst.MinGrowthBytes, src.MinGrowthBytes)
	for trigger, keep := range src.MaxSnapshots {
		if keep > 0 {
			dst.MaxSnapshots[trigger] = keep
		}
	}
}

// mergeTranscript merges transcript-specific config fields.
func mergeTranscript(dst, src *TranscriptConfig) {
	mergeInt(&dst.MaxContentLength, src.MaxContentLength)
	mergeStr(&dst.TranscriptsDir, src.TranscriptsDir)
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.contextkeeper/config.yaml"
	SourceProject Source = ".contextkeeper/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// ResolvedConfig shows config values with their sources.
type ResolvedConfig struct {
	Output  resolved `json:"output"`
	BaseDir resolved `json:"base_dir"`
	Verbose resolved `json:"verbose"`
}

// resolveStringField resolves a string through the precedence chain.
func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// Resolve returns configuration with source tracking.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(flagOutput, flagBaseDir string, flagVerbose bool) *ResolvedConfig {
	homeConfig, _ := loadFromPath(homeConfigPath())
	projectConfig, _ := loadFromPath(projectConfigPath())

	var homeOutput, homeBaseDir string
	var homeVerbose bool
	if homeConfig != nil {
		homeOutput = homeConfig.Output
		homeBaseDir = homeConfig.BaseDir
		homeVerbose = homeConfig.Verbose
	}

	var projectOutput, projectBaseDir string
	var projectVerbose bool
	if projectConfig != nil {
		projectOutput = projectConfig.Output
		projectBaseDir = projectConfig.BaseDir
		projectVerbose = projectConfig.Verbose
	}

	envOutput := os.Getenv("CONTEXTKEEPER_OUTPUT")
	envBaseDir := os.Getenv("CONTEXTKEEPER_BASE_DIR")
	envVerbose := os.Getenv("CONTEXTKEEPER_VERBOSE") == "true" || os.Getenv("CONTEXTKEEPER_VERBOSE") == "1"

	rc := &ResolvedConfig{
		Output:  resolveStringField(homeOutput, projectOutput, envOutput, flagOutput, defaultOutput),
		BaseDir: resolveStringField(homeBaseDir, projectBaseDir, envBaseDir, flagBaseDir, defaultBaseDir),
		Verbose: resolved{Value: false, Source: SourceDefault},
	}

	if homeVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceHome}
	}
	if projectVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceProject}
	}
	if envVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceEnv}
	}
	if flagVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceFlag}
	}

	return rc
}
