package models

import "time"

// BatchConfig represents the parsed batch configuration file.
type BatchConfig struct {
	Name            *string                   `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty"`
	LogLevel        string                    `yaml:"log_level,omitempty" toml:"log_level,omitempty" json:"log_level,omitempty"`
	WorkflowPath    string                    `yaml:"workflow_path" toml:"workflow_path" json:"workflow_path"`
	Roles           map[string]string         `yaml:"roles,omitempty" toml:"roles,omitempty" json:"roles,omitempty"`
	RequiredRoles   []string                  `yaml:"required_roles,omitempty" toml:"required_roles,omitempty" json:"required_roles,omitempty"`
	StrictRoles     bool                      `yaml:"strict_roles" toml:"strict_roles" json:"strict_roles"`
	Static          map[string]map[string]any `yaml:"static,omitempty" toml:"static,omitempty" json:"static,omitempty"`
	Bindings        BindingConfig             `yaml:"bindings,omitempty" toml:"bindings,omitempty" json:"bindings,omitempty"`
	Engine          EngineConfig              `yaml:"engine" toml:"engine" json:"engine"`
	SeedRange       []uint64                  `yaml:"seed_range" toml:"seed_range" json:"seed_range"`
	CheckpointEvery int                       `yaml:"checkpoint_every" toml:"checkpoint_every" json:"checkpoint_every"`
	Workers         int                       `yaml:"workers" toml:"workers" json:"workers"`
	SkipCompleted   bool                      `yaml:"skip_completed" toml:"skip_completed" json:"skip_completed"`
	Output          OutputConfig              `yaml:"output" toml:"output" json:"output"`
	Source          SourceConfig              `yaml:"source" toml:"source" json:"source"`
	Report          ReportConfig              `yaml:"report,omitempty" toml:"report,omitempty" json:"report,omitempty"`
	MetricsAddr     string                    `yaml:"metrics_addr,omitempty" toml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
}

// Target addresses one input field of the node resolved for a role.
type Target struct {
	Role  string `yaml:"role" toml:"role" json:"role"`
	Field string `yaml:"field" toml:"field" json:"field"`
}

// BindingConfig lists where each per-task value is written in the graph.
type BindingConfig struct {
	Category     []Target `yaml:"category,omitempty" toml:"category,omitempty" json:"category,omitempty"`
	Content      []Target `yaml:"content,omitempty" toml:"content,omitempty" json:"content,omitempty"`
	Seed         []Target `yaml:"seed,omitempty" toml:"seed,omitempty" json:"seed,omitempty"`
	OutputPrefix []Target `yaml:"output_prefix,omitempty" toml:"output_prefix,omitempty" json:"output_prefix,omitempty"`
}

type EngineConfig struct {
	Endpoint          string  `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	RequestTimeoutSec float64 `yaml:"request_timeout_sec" toml:"request_timeout_sec" json:"request_timeout_sec"`
	MaxRetries        int     `yaml:"max_retries" toml:"max_retries" json:"max_retries"`
	BackoffBase       float64 `yaml:"backoff_base" toml:"backoff_base" json:"backoff_base"`
	ClientID          string  `yaml:"client_id,omitempty" toml:"client_id,omitempty" json:"client_id,omitempty"`
}

type OutputConfig struct {
	Root                string `yaml:"root" toml:"root" json:"root"`
	DateFormat          string `yaml:"date_format" toml:"date_format" json:"date_format"`
	NamespaceByCategory bool   `yaml:"namespace_by_category" toml:"namespace_by_category" json:"namespace_by_category"`
	Extension           string `yaml:"extension" toml:"extension" json:"extension"`
	MaxNameLength       int    `yaml:"max_name_length" toml:"max_name_length" json:"max_name_length"`
	CreateDirs          bool   `yaml:"create_dirs" toml:"create_dirs" json:"create_dirs"`
}

// SourceConfig selects either a tabular source (Path) or a pair of list
// files whose cartesian product forms the tasks.
type SourceConfig struct {
	Path           string       `yaml:"path,omitempty" toml:"path,omitempty" json:"path,omitempty"`
	Sheet          string       `yaml:"sheet,omitempty" toml:"sheet,omitempty" json:"sheet,omitempty"`
	CategoriesPath string       `yaml:"categories_path,omitempty" toml:"categories_path,omitempty" json:"categories_path,omitempty"`
	ContentsPath   string       `yaml:"contents_path,omitempty" toml:"contents_path,omitempty" json:"contents_path,omitempty"`
	Columns        ColumnConfig `yaml:"columns,omitempty" toml:"columns,omitempty" json:"columns,omitempty"`
}

// IsList reports whether tasks come from list files rather than a table.
func (s SourceConfig) IsList() bool {
	return s.Path == "" && s.CategoriesPath != "" && s.ContentsPath != ""
}

type ColumnConfig struct {
	Category   string `yaml:"category" toml:"category" json:"category"`
	Content    string `yaml:"content" toml:"content" json:"content"`
	OutputName string `yaml:"output_name" toml:"output_name" json:"output_name"`
	Seed       string `yaml:"seed" toml:"seed" json:"seed"`
	Status     string `yaml:"status" toml:"status" json:"status"`
	Date       string `yaml:"date" toml:"date" json:"date"`
	Error      string `yaml:"error" toml:"error" json:"error"`
}

type ReportConfig struct {
	Dir        string `yaml:"dir,omitempty" toml:"dir,omitempty" json:"dir,omitempty"`
	Format     string `yaml:"format,omitempty" toml:"format,omitempty" json:"format,omitempty"`
	AuditLog   string `yaml:"audit_log,omitempty" toml:"audit_log,omitempty" json:"audit_log,omitempty"`
	LedgerPath string `yaml:"ledger_path,omitempty" toml:"ledger_path,omitempty" json:"ledger_path,omitempty"`
}

// BatchReport contains aggregate results across all tasks of a run.
type BatchReport struct {
	RunID            string                     `json:"run_id"`
	Name             string                     `json:"name"`
	DateStamp        string                     `json:"date_stamp"`
	Cancelled        bool                       `json:"cancelled"`
	Total            int                        `json:"total"`
	Succeeded        int                        `json:"succeeded"`
	Failed           int                        `json:"failed"`
	Pending          int                        `json:"pending"`
	Skipped          int                        `json:"skipped"`
	CheckpointWrites int                        `json:"checkpoint_writes"`
	PersistErrors    []string                   `json:"persist_errors,omitempty"`
	TotalDurationSec float64                    `json:"total_duration_sec"`
	StartedAt        time.Time                  `json:"started_at"`
	EndedAt          time.Time                  `json:"ended_at"`
	Categories       map[string]CategorySummary `json:"categories"`
	Outcomes         []Outcome                  `json:"outcomes"`
}

type CategorySummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
