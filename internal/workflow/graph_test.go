package workflow_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/spachava753/promptbatch/internal/workflow"
)

func loadPortrait(t *testing.T) *workflow.Graph {
	t.Helper()
	g, err := workflow.LoadGraph("testdata/portrait.json")
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	return g
}

func TestParseGraphKeepsDocumentOrder(t *testing.T) {
	g := loadPortrait(t)

	var ids []string
	for id := range g.All() {
		ids = append(ids, id)
	}
	want := []string{"3", "4", "5", "7", "10", "14", "19", "8"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("node order mismatch (-want +got):\n%s", diff)
	}
}

func TestGraphRoundTripKeepsLargeNumbers(t *testing.T) {
	g := loadPortrait(t)
	n, _ := g.Node("3")
	n.Inputs["seed"] = uint64(18446744073709551614)

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"seed":18446744073709551614`) {
		t.Errorf("seed lost precision: %s", data)
	}
	if !strings.HasPrefix(string(data), `{"3":`) {
		t.Errorf("expected document order in output, got %.20s", data)
	}

	back, err := workflow.ParseGraph(data)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if back.Len() != g.Len() {
		t.Errorf("expected %d nodes after round trip, got %d", g.Len(), back.Len())
	}
	n3, _ := back.Node("3")
	if n3.Inputs["steps"] != json.Number("20") {
		t.Errorf("expected steps to stay a literal number, got %#v", n3.Inputs["steps"])
	}
}

func TestParseGraphErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not an object", input: `[1,2]`},
		{name: "missing class type", input: `{"1": {"inputs": {}}}`},
		{name: "duplicate id", input: `{"1": {"class_type": "A"}, "1": {"class_type": "B"}}`},
		{name: "trailing data", input: `{"1": {"class_type": "A"}} {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := workflow.ParseGraph([]byte(tt.input)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := loadPortrait(t)
	c := g.Clone()

	cn, _ := c.Node("14")
	cn.Inputs["text"] = "changed"
	cs, _ := c.Node("3")
	cs.Inputs["model"].([]any)[0] = "99"

	gn, _ := g.Node("14")
	if gn.Inputs["text"] != "placeholder" {
		t.Errorf("clone write leaked into original: %v", gn.Inputs["text"])
	}
	gs, _ := g.Node("3")
	if ref, _ := workflow.AsRef(gs.Inputs["model"]); ref.NodeID != "10" {
		t.Errorf("clone link write leaked into original: %v", ref)
	}
}

func TestAsRef(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  workflow.Ref
		isRef bool
	}{
		{name: "json number", value: []any{"4", json.Number("1")}, want: workflow.Ref{NodeID: "4", Output: 1}, isRef: true},
		{name: "float", value: []any{"4", 2.0}, want: workflow.Ref{NodeID: "4", Output: 2}, isRef: true},
		{name: "string literal", value: "text", isRef: false},
		{name: "wrong arity", value: []any{"4"}, isRef: false},
		{name: "non-string id", value: []any{4.0, 0.0}, isRef: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := workflow.AsRef(tt.value)
			if ok != tt.isRef {
				t.Fatalf("AsRef(%v) ok = %v, want %v", tt.value, ok, tt.isRef)
			}
			if got != tt.want {
				t.Errorf("AsRef(%v) = %+v, want %+v", tt.value, got, tt.want)
			}
		})
	}
}
