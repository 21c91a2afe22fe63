package workflow

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spachava753/promptbatch/internal/models"
)

// Values are the per-task parameters written before each dispatch.
type Values struct {
	Category     string
	Content      string
	Seed         uint64
	OutputPrefix string
}

// Binder writes parameters into the nodes resolved by a RoleIndex. Writes
// replace the field value; a missing role or field is a ConfigError.
type Binder struct {
	index    *RoleIndex
	static   map[string]map[string]any
	bindings models.BindingConfig
}

// NewBinder creates a binder for one template.
func NewBinder(index *RoleIndex, static map[string]map[string]any, bindings models.BindingConfig) *Binder {
	return &Binder{
		index:    index,
		static:   static,
		bindings: bindings,
	}
}

// Validate checks every static and dynamic target against g without writing
// anything, so mismatches surface before the first task.
func (b *Binder) Validate(g *Graph) error {
	var problems []string
	for _, t := range b.targets() {
		if err := b.check(g, t); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return &models.ConfigError{Kind: models.UnboundTarget, Items: problems}
	}
	return nil
}

// BindStatic writes the one-time parameters (model, canvas, batch size).
func (b *Binder) BindStatic(g *Graph) error {
	for _, role := range slices.Sorted(maps.Keys(b.static)) {
		fields := b.static[role]
		for _, field := range slices.Sorted(maps.Keys(fields)) {
			if err := b.set(g, models.Target{Role: role, Field: field}, fields[field]); err != nil {
				return err
			}
		}
	}
	return nil
}

// BindDynamic writes the per-task parameters.
func (b *Binder) BindDynamic(g *Graph, v Values) error {
	writes := []struct {
		targets []models.Target
		value   any
	}{
		{b.bindings.Category, v.Category},
		{b.bindings.Content, v.Content},
		{b.bindings.Seed, v.Seed},
		{b.bindings.OutputPrefix, v.OutputPrefix},
	}
	for _, w := range writes {
		for _, t := range w.targets {
			if err := b.set(g, t, w.value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Binder) targets() []models.Target {
	var ts []models.Target
	for _, role := range slices.Sorted(maps.Keys(b.static)) {
		for _, field := range slices.Sorted(maps.Keys(b.static[role])) {
			ts = append(ts, models.Target{Role: role, Field: field})
		}
	}
	ts = append(ts, b.bindings.Category...)
	ts = append(ts, b.bindings.Content...)
	ts = append(ts, b.bindings.Seed...)
	ts = append(ts, b.bindings.OutputPrefix...)
	return ts
}

func (b *Binder) check(g *Graph, t models.Target) error {
	id, ok := b.index.Resolve(t.Role)
	if !ok {
		return fmt.Errorf("%s.%s: role not resolved", t.Role, t.Field)
	}
	n, ok := g.Node(id)
	if !ok {
		return fmt.Errorf("%s.%s: node %s not in graph", t.Role, t.Field, id)
	}
	cur, ok := n.Inputs[t.Field]
	if !ok {
		return fmt.Errorf("%s.%s: node %s has no such input", t.Role, t.Field, id)
	}
	if _, isRef := AsRef(cur); isRef {
		return fmt.Errorf("%s.%s: node %s input is a link", t.Role, t.Field, id)
	}
	return nil
}

func (b *Binder) set(g *Graph, t models.Target, value any) error {
	if err := b.check(g, t); err != nil {
		return &models.ConfigError{Kind: models.UnboundTarget, Items: []string{err.Error()}}
	}
	id, _ := b.index.Resolve(t.Role)
	n, _ := g.Node(id)
	n.Inputs[t.Field] = value
	return nil
}
