package workflow_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/spachava753/promptbatch/internal/models"
	"github.com/spachava753/promptbatch/internal/workflow"
)

var imageRoles = workflow.RoleTable{
	"sampler":        "KSampler",
	"model_loader":   "CheckpointLoaderSimple",
	"lora_loader":    "LoraLoader",
	"latent":         "EmptyLatentImage",
	"prompt_encoder": "CLIPTextEncode",
	"output_writer":  "SaveImage",
}

func TestBuildRoleIndex(t *testing.T) {
	g := loadPortrait(t)

	idx, err := workflow.BuildRoleIndex(g, imageRoles, []string{"sampler", "model_loader", "lora_loader"}, false)
	if err != nil {
		t.Fatalf("BuildRoleIndex failed: %v", err)
	}

	want := map[string]string{
		"sampler":        "3",
		"model_loader":   "4",
		"latent":         "5",
		"prompt_encoder": "7", // first CLIPTextEncode in document order
		"lora_loader":    "10",
		"output_writer":  "19",
	}
	for role, wantID := range want {
		got, ok := idx.Resolve(role)
		if !ok || got != wantID {
			t.Errorf("Resolve(%s) = %q, %v; want %q", role, got, ok, wantID)
		}
	}

	if _, ok := idx.Resolve("upscaler"); ok {
		t.Error("expected unknown role to be unresolved")
	}
	if diff := cmp.Diff(map[string][]string{"prompt_encoder": {"14"}}, idx.Duplicates()); diff != "" {
		t.Errorf("duplicates mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRoleIndexMissingRoles(t *testing.T) {
	tests := []struct {
		name     string
		graph    string
		required []string
		missing  []string
	}{
		{
			name:     "sampler absent",
			graph:    `{"4": {"class_type": "CheckpointLoaderSimple", "inputs": {}}, "10": {"class_type": "LoraLoader", "inputs": {}}}`,
			required: []string{"sampler", "model_loader", "lora_loader"},
			missing:  []string{"sampler"},
		},
		{
			name:     "every missing role listed",
			graph:    `{"5": {"class_type": "EmptyLatentImage", "inputs": {}}}`,
			required: []string{"sampler", "model_loader", "lora_loader"},
			missing:  []string{"sampler", "model_loader", "lora_loader"},
		},
		{
			name:     "role not in table",
			graph:    `{"3": {"class_type": "KSampler", "inputs": {}}}`,
			required: []string{"sampler", "vocoder"},
			missing:  []string{"vocoder"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := workflow.ParseGraph([]byte(tt.graph))
			if err != nil {
				t.Fatalf("ParseGraph: %v", err)
			}
			_, err = workflow.BuildRoleIndex(g, imageRoles, tt.required, false)
			var cfgErr *models.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Kind != models.MissingRoles {
				t.Errorf("expected kind missing_roles, got %s", cfgErr.Kind)
			}
			if diff := cmp.Diff(tt.missing, cfgErr.Items); diff != "" {
				t.Errorf("missing roles mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildRoleIndexSucceedsWhenRequiredPresent(t *testing.T) {
	g, err := workflow.ParseGraph([]byte(`{"1": {"class_type": "KSampler", "inputs": {}}}`))
	if err != nil {
		t.Fatalf("ParseGraph: %v", err)
	}
	idx, err := workflow.BuildRoleIndex(g, imageRoles, []string{"sampler"}, true)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if diff := cmp.Diff([]string{"sampler"}, idx.Roles()); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRoleIndexStrictRejectsDuplicates(t *testing.T) {
	g := loadPortrait(t)

	_, err := workflow.BuildRoleIndex(g, imageRoles, nil, true)
	var cfgErr *models.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Kind != models.DuplicateRoles {
		t.Errorf("expected kind duplicate_roles, got %s", cfgErr.Kind)
	}
	if len(cfgErr.Items) != 1 {
		t.Errorf("expected one duplicate role, got %v", cfgErr.Items)
	}
}
