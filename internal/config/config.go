package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"legacylens/internal/apperrors"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Application struct {
		Name string `yaml:"name"`
	} `yaml:"application"`
	Crawler       CrawlerConfig       `yaml:"crawler"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Dependencies  DependencyConfig    `yaml:"dependencies"`
	Architecture  ArchitectureConfig  `yaml:"architecture"`
	Relationships RelationshipConfig  `yaml:"relationships"`
	Visualization VisualizationConfig `yaml:"visualization"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type CrawlerConfig struct {
	Include          []string          `yaml:"include"`
	Exclude          []string          `yaml:"exclude"`
	MaxFileSize      int64             `yaml:"max_file_size"`
	MaxDepth         int               `yaml:"max_depth"`
	Hash             bool              `yaml:"hash"`
	DetectEncoding   bool              `yaml:"detect_encoding"`
	CountLines       bool              `yaml:"count_lines"`
	RespectGitignore bool              `yaml:"respect_gitignore"`
	FollowSymlinks   bool              `yaml:"follow_symlinks"`
	Workers          int               `yaml:"workers"`
	Categories       map[string]string `yaml:"categories"` // extension -> category
}

type AnalysisConfig struct {
	Extractors map[string]string `yaml:"extractors"` // extension -> language
	Workers    int               `yaml:"workers"`
}

type DependencyConfig struct {
	Static   bool `yaml:"static"`
	Dynamic  bool `yaml:"dynamic"`
	Database bool `yaml:"database"`
}

type ArchitectureConfig struct {
	GodClassPercentile float64 `yaml:"god_class_percentile"`
	GodClassMinMembers int     `yaml:"god_class_min_members"`
	PatternThreshold   float64 `yaml:"pattern_threshold"`
	LayeredFlowRatio   float64 `yaml:"layered_flow_ratio"`
	GroupBy            string  `yaml:"group_by"` // namespace | assembly
}

type RelationshipConfig struct {
	StrengthSaturation int `yaml:"strength_saturation"`
}

type VisualizationConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Kinds          []string `yaml:"kinds"`
	OutputDir      string   `yaml:"output_dir"`
	DiagramCeiling int      `yaml:"diagram_ceiling"`
}

type PipelineConfig struct {
	PhaseTimeout time.Duration `yaml:"phase_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
	Output string `yaml:"output"` // stdout | stderr | file path
}

var (
	validCategories = map[string]bool{"source": true, "config": true, "resource": true, "doc": true}
	validKinds      = map[string]bool{"diagram": true, "d3": true, "cytoscape": true, "csv": true, "report": true}
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.Crawler = CrawlerConfig{
		Exclude: []string{
			"**/.git/**",
			"**/.svn/**",
			"**/.vs/**",
			"**/.idea/**",
			"**/node_modules/**",
			"**/bin/**",
			"**/obj/**",
			"**/__pycache__/**",
		},
		MaxFileSize:      10 << 20,
		Hash:             true,
		DetectEncoding:   true,
		CountLines:       true,
		RespectGitignore: true,
		FollowSymlinks:   true,
		Workers:          8,
	}
	cfg.Analysis = AnalysisConfig{Workers: 8}
	cfg.Dependencies = DependencyConfig{Static: true, Dynamic: true, Database: true}
	cfg.Architecture = ArchitectureConfig{
		GodClassPercentile: 0.9,
		GodClassMinMembers: 10,
		PatternThreshold:   0.5,
		LayeredFlowRatio:   0.7,
		GroupBy:            "namespace",
	}
	cfg.Relationships = RelationshipConfig{StrengthSaturation: 5}
	cfg.Visualization = VisualizationConfig{
		Enabled:        false,
		Kinds:          []string{"diagram", "d3", "cytoscape", "csv", "report"},
		OutputDir:      "legacylens-output",
		DiagramCeiling: 500,
	}
	cfg.Pipeline = PipelineConfig{PhaseTimeout: 10 * time.Minute}
	cfg.Logging = LoggingConfig{Level: "info", Format: "text", Output: "stderr"}
	return cfg
}

// LoadConfig reads a YAML file over the defaults, then applies .env and
// LEGACYLENS_* environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	// 2. Load YAML config
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.NewConfigurationError("config", path, err)
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, apperrors.NewConfigurationError("config", path, err)
		}
	}

	// 3. Override with Environment Variables if present
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if name := os.Getenv("LEGACYLENS_APP_NAME"); name != "" {
		c.Application.Name = name
	}
	if level := os.Getenv("LEGACYLENS_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("LEGACYLENS_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if out := os.Getenv("LEGACYLENS_OUTPUT_DIR"); out != "" {
		c.Visualization.OutputDir = out
	}
	if workers := os.Getenv("LEGACYLENS_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return apperrors.NewConfigurationError("LEGACYLENS_WORKERS", workers, err)
		}
		c.Crawler.Workers = n
		c.Analysis.Workers = n
	}
	if timeout := os.Getenv("LEGACYLENS_PHASE_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return apperrors.NewConfigurationError("LEGACYLENS_PHASE_TIMEOUT", timeout, err)
		}
		c.Pipeline.PhaseTimeout = d
	}
	return nil
}

// Validate checks every value a phase depends on.
func (c *Config) Validate() error {
	for _, p := range append(append([]string{}, c.Crawler.Include...), c.Crawler.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return apperrors.NewConfigurationError("crawler.include/exclude", p, errors.New("invalid glob pattern"))
		}
	}
	if c.Crawler.MaxFileSize < 0 {
		return apperrors.NewConfigurationError("crawler.max_file_size", strconv.FormatInt(c.Crawler.MaxFileSize, 10), errors.New("must not be negative"))
	}
	if c.Crawler.MaxDepth < 0 {
		return apperrors.NewConfigurationError("crawler.max_depth", strconv.Itoa(c.Crawler.MaxDepth), errors.New("must not be negative"))
	}
	if c.Crawler.Workers < 0 || c.Analysis.Workers < 0 {
		return apperrors.NewConfigurationError("workers", "", errors.New("must not be negative"))
	}
	for ext, cat := range c.Crawler.Categories {
		if !validCategories[cat] {
			return apperrors.NewConfigurationError("crawler.categories."+ext, cat, errors.New("unknown category"))
		}
	}
	if p := c.Architecture.GodClassPercentile; p <= 0 || p >= 1 {
		return apperrors.NewConfigurationError("architecture.god_class_percentile", fmt.Sprint(p), errors.New("must be in (0,1)"))
	}
	if c.Architecture.GodClassMinMembers < 0 {
		return apperrors.NewConfigurationError("architecture.god_class_min_members", strconv.Itoa(c.Architecture.GodClassMinMembers), errors.New("must not be negative"))
	}
	if t := c.Architecture.PatternThreshold; t < 0 || t > 1 {
		return apperrors.NewConfigurationError("architecture.pattern_threshold", fmt.Sprint(t), errors.New("must be in [0,1]"))
	}
	if r := c.Architecture.LayeredFlowRatio; r <= 0 || r > 1 {
		return apperrors.NewConfigurationError("architecture.layered_flow_ratio", fmt.Sprint(r), errors.New("must be in (0,1]"))
	}
	switch c.Architecture.GroupBy {
	case "namespace", "assembly":
	default:
		return apperrors.NewConfigurationError("architecture.group_by", c.Architecture.GroupBy, errors.New("must be namespace or assembly"))
	}
	if c.Relationships.StrengthSaturation < 1 {
		return apperrors.NewConfigurationError("relationships.strength_saturation", strconv.Itoa(c.Relationships.StrengthSaturation), errors.New("must be at least 1"))
	}
	for _, k := range c.Visualization.Kinds {
		if !validKinds[k] {
			return apperrors.NewConfigurationError("visualization.kinds", k, errors.New("unknown artifact kind"))
		}
	}
	if c.Visualization.DiagramCeiling < 1 {
		return apperrors.NewConfigurationError("visualization.diagram_ceiling", strconv.Itoa(c.Visualization.DiagramCeiling), errors.New("must be at least 1"))
	}
	if c.Pipeline.PhaseTimeout < 0 {
		return apperrors.NewConfigurationError("pipeline.phase_timeout", c.Pipeline.PhaseTimeout.String(), errors.New("must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return apperrors.NewConfigurationError("logging.level", c.Logging.Level, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return apperrors.NewConfigurationError("logging.format", c.Logging.Format, errors.New("must be text or json"))
	}
	return nil
}
