package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/spachava753/promptbatch/internal/config"
	"github.com/spachava753/promptbatch/internal/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadBatchConfigYAML(t *testing.T) {
	batchYaml := `name: spring-catalog
workflow_path: workflow/portrait.json
seed_range: [10, 20]
checkpoint_every: 2
engine:
  endpoint: http://engine:8188/prompt
  request_timeout_sec: 12
  max_retries: 4
  backoff_base: 3
static:
  model_loader:
    ckpt_name: dreamshaper_8.safetensors
  latent:
    width: 720
    height: 1024
source:
  path: tasks.xlsx
  columns:
    category: lora
    content: prompt
output:
  root: out
  namespace_by_category: true
`
	dir := t.TempDir()
	path := writeFile(t, dir, "batch.yaml", batchYaml)

	cfg, err := config.LoadBatchConfig(path)
	if err != nil {
		t.Fatalf("LoadBatchConfig failed: %v", err)
	}

	if *cfg.Name != "spring-catalog" {
		t.Errorf("expected name spring-catalog, got %s", *cfg.Name)
	}
	if cfg.WorkflowPath != filepath.Join(dir, "workflow", "portrait.json") {
		t.Errorf("workflow path not resolved against config dir: %s", cfg.WorkflowPath)
	}
	if cfg.Source.Path != filepath.Join(dir, "tasks.xlsx") {
		t.Errorf("source path not resolved against config dir: %s", cfg.Source.Path)
	}
	if diff := cmp.Diff([]uint64{10, 20}, cfg.SeedRange); diff != "" {
		t.Errorf("seed range mismatch (-want +got):\n%s", diff)
	}
	if cfg.Engine.MaxRetries != 4 || cfg.Engine.BackoffBase != 3 {
		t.Errorf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Source.Columns.Category != "lora" || cfg.Source.Columns.Content != "prompt" {
		t.Errorf("unexpected columns: %+v", cfg.Source.Columns)
	}
	// Unset columns fall back to defaults.
	if cfg.Source.Columns.Status != "status" {
		t.Errorf("expected default status column, got %q", cfg.Source.Columns.Status)
	}
	if cfg.Static["latent"]["width"] != 720 {
		t.Errorf("expected static latent width 720, got %v", cfg.Static["latent"]["width"])
	}
	if diff := cmp.Diff(config.DefaultRoles(), cfg.Roles); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadBatchConfigTOML(t *testing.T) {
	batchToml := `workflow_path = "/abs/flow.json"
seed_range = [1, 5]
workers = 3
required_roles = ["sampler"]

[roles]
sampler = "KSampler"
prompt_encoder = "CLIPTextEncode"

[engine]
max_retries = 2

[source]
categories_path = "loras.txt"
contents_path = "prompts.txt"

[report]
dir = "reports"
format = "csv"
`
	dir := t.TempDir()
	path := writeFile(t, dir, "batch.toml", batchToml)

	cfg, err := config.LoadBatchConfig(path)
	if err != nil {
		t.Fatalf("LoadBatchConfig failed: %v", err)
	}

	if cfg.WorkflowPath != "/abs/flow.json" {
		t.Errorf("absolute workflow path changed: %s", cfg.WorkflowPath)
	}
	if cfg.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Workers)
	}
	if len(cfg.Roles) != 2 {
		t.Errorf("expected configured roles to replace defaults, got %v", cfg.Roles)
	}
	if diff := cmp.Diff([]string{"sampler"}, cfg.RequiredRoles); diff != "" {
		t.Errorf("required roles mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Source.IsList() {
		t.Error("expected list source")
	}
	if cfg.Engine.BackoffBase != 2 {
		t.Errorf("expected default backoff base 2, got %f", cfg.Engine.BackoffBase)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestDefaultBatchConfig(t *testing.T) {
	cfg := config.DefaultBatchConfig()

	if cfg.CheckpointEvery != 5 {
		t.Errorf("expected default checkpoint_every 5, got %d", cfg.CheckpointEvery)
	}
	if cfg.Output.MaxNameLength != 15 {
		t.Errorf("expected default max_name_length 15, got %d", cfg.Output.MaxNameLength)
	}
	if cfg.Engine.Endpoint != "http://127.0.0.1:8188/prompt" {
		t.Errorf("unexpected default endpoint %s", cfg.Engine.Endpoint)
	}
	if diff := cmp.Diff([]string{"sampler", "model_loader", "lora_loader"}, cfg.RequiredRoles); diff != "" {
		t.Errorf("required roles mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := config.DefaultBatchConfig()
	cfg.SeedRange = []uint64{9, 3}
	cfg.Engine.MaxRetries = 0
	cfg.CheckpointEvery = 0

	err := config.Validate(cfg)
	var cfgErr *models.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Kind != models.InvalidConfig {
		t.Errorf("expected kind invalid_config, got %s", cfgErr.Kind)
	}

	want := []string{"workflow_path", "max_retries", "seed_range low 9", "checkpoint_every", "source.path"}
	msg := err.Error()
	for _, w := range want {
		if !strings.Contains(msg, w) {
			t.Errorf("expected error to mention %q, got: %s", w, msg)
		}
	}
}
