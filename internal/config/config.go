package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/spachava753/promptbatch/internal/models"
)

// Default role names used by DefaultBatchConfig.
const (
	RoleSampler       = "sampler"
	RoleModelLoader   = "model_loader"
	RoleLoraLoader    = "lora_loader"
	RoleLatent        = "latent"
	RolePromptEncoder = "prompt_encoder"
	RoleOutputWriter  = "output_writer"
)

// DefaultRoles returns the role to node type table for a stock image workflow.
func DefaultRoles() map[string]string {
	return map[string]string{
		RoleSampler:       "KSampler",
		RoleModelLoader:   "CheckpointLoaderSimple",
		RoleLoraLoader:    "LoraLoader",
		RoleLatent:        "EmptyLatentImage",
		RolePromptEncoder: "CLIPTextEncode",
		RoleOutputWriter:  "SaveImage",
	}
}

// DefaultBindings returns where per-task values go in a stock image workflow.
func DefaultBindings() models.BindingConfig {
	return models.BindingConfig{
		Category:     []models.Target{{Role: RoleLoraLoader, Field: "lora_name"}},
		Content:      []models.Target{{Role: RolePromptEncoder, Field: "text"}},
		Seed:         []models.Target{{Role: RoleSampler, Field: "seed"}},
		OutputPrefix: []models.Target{{Role: RoleOutputWriter, Field: "filename_prefix"}},
	}
}

// DefaultColumns returns the default task source column names.
func DefaultColumns() models.ColumnConfig {
	return models.ColumnConfig{
		Category:   "category",
		Content:    "content",
		OutputName: "output_name",
		Seed:       "seed",
		Status:     "status",
		Date:       "date",
		Error:      "error",
	}
}

// DefaultBatchConfig returns a BatchConfig with default values.
func DefaultBatchConfig() models.BatchConfig {
	return models.BatchConfig{
		LogLevel:        "info",
		Roles:           DefaultRoles(),
		RequiredRoles:   []string{RoleSampler, RoleModelLoader, RoleLoraLoader},
		Bindings:        DefaultBindings(),
		SeedRange:       []uint64{1, 1 << 32},
		CheckpointEvery: 5,
		Workers:         1,
		Engine: models.EngineConfig{
			Endpoint:          "http://127.0.0.1:8188/prompt",
			RequestTimeoutSec: 30,
			MaxRetries:        3,
			BackoffBase:       2,
		},
		Output: models.OutputConfig{
			Root:          "output",
			DateFormat:    "2006-01-02",
			Extension:     "png",
			MaxNameLength: 15,
		},
		Source: models.SourceConfig{
			Columns: DefaultColumns(),
		},
		Report: models.ReportConfig{
			Format: "xlsx",
		},
	}
}

// LoadBatchConfig loads and parses a batch config file. The format is chosen
// by extension: .toml is TOML, anything else is YAML.
func LoadBatchConfig(path string) (models.BatchConfig, error) {
	cfg := DefaultBatchConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading batch config: %w", err)
	}

	// Decoding merges into the default maps; start from empty ones so a
	// config that names its own roles replaces the table instead.
	cfg.Roles = nil
	cfg.RequiredRoles = nil

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parsing batch config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing batch config: %w", err)
		}
	}

	applyDefaults(&cfg)

	// Relative paths are resolved against the config file's directory.
	base := filepath.Dir(path)
	cfg.WorkflowPath = resolve(base, cfg.WorkflowPath)
	cfg.Source.Path = resolve(base, cfg.Source.Path)
	cfg.Source.CategoriesPath = resolve(base, cfg.Source.CategoriesPath)
	cfg.Source.ContentsPath = resolve(base, cfg.Source.ContentsPath)

	return cfg, nil
}

// applyDefaults back-fills zero values left by a partial config file.
func applyDefaults(cfg *models.BatchConfig) {
	def := DefaultBatchConfig()

	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if len(cfg.Roles) == 0 {
		cfg.Roles = def.Roles
		if cfg.RequiredRoles == nil {
			cfg.RequiredRoles = def.RequiredRoles
		}
	}
	if cfg.Bindings.Category == nil && cfg.Bindings.Content == nil &&
		cfg.Bindings.Seed == nil && cfg.Bindings.OutputPrefix == nil {
		cfg.Bindings = def.Bindings
	}
	if len(cfg.SeedRange) == 0 {
		cfg.SeedRange = def.SeedRange
	}
	if cfg.CheckpointEvery == 0 {
		cfg.CheckpointEvery = def.CheckpointEvery
	}
	if cfg.Workers == 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Engine.Endpoint == "" {
		cfg.Engine.Endpoint = def.Engine.Endpoint
	}
	if cfg.Engine.RequestTimeoutSec == 0 {
		cfg.Engine.RequestTimeoutSec = def.Engine.RequestTimeoutSec
	}
	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = def.Engine.MaxRetries
	}
	if cfg.Engine.BackoffBase == 0 {
		cfg.Engine.BackoffBase = def.Engine.BackoffBase
	}
	if cfg.Output.Root == "" {
		cfg.Output.Root = def.Output.Root
	}
	if cfg.Output.DateFormat == "" {
		cfg.Output.DateFormat = def.Output.DateFormat
	}
	if cfg.Output.Extension == "" {
		cfg.Output.Extension = def.Output.Extension
	}
	if cfg.Output.MaxNameLength == 0 {
		cfg.Output.MaxNameLength = def.Output.MaxNameLength
	}
	if cfg.Report.Format == "" {
		cfg.Report.Format = def.Report.Format
	}

	cols := &cfg.Source.Columns
	if cols.Category == "" {
		cols.Category = def.Source.Columns.Category
	}
	if cols.Content == "" {
		cols.Content = def.Source.Columns.Content
	}
	if cols.OutputName == "" {
		cols.OutputName = def.Source.Columns.OutputName
	}
	if cols.Seed == "" {
		cols.Seed = def.Source.Columns.Seed
	}
	if cols.Status == "" {
		cols.Status = def.Source.Columns.Status
	}
	if cols.Date == "" {
		cols.Date = def.Source.Columns.Date
	}
	if cols.Error == "" {
		cols.Error = def.Source.Columns.Error
	}
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks a resolved config. All problems are reported together as a
// single ConfigError.
func Validate(cfg models.BatchConfig) error {
	var problems []string

	if cfg.WorkflowPath == "" {
		problems = append(problems, "workflow_path is required")
	}
	if cfg.Engine.Endpoint == "" {
		problems = append(problems, "engine.endpoint is required")
	}
	if cfg.Engine.RequestTimeoutSec <= 0 {
		problems = append(problems, "engine.request_timeout_sec must be positive")
	}
	if cfg.Engine.MaxRetries < 1 {
		problems = append(problems, "engine.max_retries must be at least 1")
	}
	if cfg.Engine.BackoffBase < 1 {
		problems = append(problems, "engine.backoff_base must be at least 1")
	}
	if len(cfg.SeedRange) != 2 {
		problems = append(problems, "seed_range must be [low, high]")
	} else if cfg.SeedRange[0] > cfg.SeedRange[1] {
		problems = append(problems, fmt.Sprintf("seed_range low %d exceeds high %d", cfg.SeedRange[0], cfg.SeedRange[1]))
	}
	if cfg.CheckpointEvery < 1 {
		problems = append(problems, "checkpoint_every must be at least 1")
	}
	if cfg.Workers < 1 {
		problems = append(problems, "workers must be at least 1")
	}
	if cfg.Output.MaxNameLength < 1 {
		problems = append(problems, "output.max_name_length must be at least 1")
	}
	if cfg.Source.Path == "" && !cfg.Source.IsList() {
		problems = append(problems, "source.path or both source.categories_path and source.contents_path are required")
	}
	if cfg.Source.Path != "" && (cfg.Source.CategoriesPath != "" || cfg.Source.ContentsPath != "") {
		problems = append(problems, "source.path cannot be combined with list files")
	}
	if cfg.Source.IsList() && cfg.Report.Dir == "" {
		problems = append(problems, "report.dir is required with list sources")
	}
	switch cfg.Report.Format {
	case "xlsx", "csv":
	default:
		problems = append(problems, fmt.Sprintf("report.format %q must be xlsx or csv", cfg.Report.Format))
	}
	for _, role := range cfg.RequiredRoles {
		if _, ok := cfg.Roles[role]; !ok {
			problems = append(problems, fmt.Sprintf("required role %s has no node type in roles", role))
		}
	}

	if len(problems) > 0 {
		return &models.ConfigError{Kind: models.InvalidConfig, Items: problems}
	}
	return nil
}
