package workflow

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spachava753/promptbatch/internal/models"
)

// RoleTable maps a semantic role to the node type that plays it.
type RoleTable map[string]string

// RoleIndex resolves roles to node ids. It is built once per template and is
// read-only afterwards; the graph it indexes is mutated in place.
type RoleIndex struct {
	nodes      map[string]string
	duplicates map[string][]string
}

// BuildRoleIndex scans every node of g once. When several nodes match a role
// the first one in document order wins; the others are remembered as
// duplicates and only fail construction when strict is set.
func BuildRoleIndex(g *Graph, table RoleTable, required []string, strict bool) (*RoleIndex, error) {
	idx := &RoleIndex{
		nodes:      make(map[string]string, len(table)),
		duplicates: make(map[string][]string),
	}

	// Invert the table so each node is looked at exactly once.
	byType := make(map[string][]string)
	for role, typ := range table {
		byType[typ] = append(byType[typ], role)
	}

	for id, n := range g.All() {
		for _, role := range byType[n.ClassType] {
			if _, ok := idx.nodes[role]; ok {
				idx.duplicates[role] = append(idx.duplicates[role], id)
				continue
			}
			idx.nodes[role] = id
		}
	}

	var missing []string
	for _, role := range required {
		if _, ok := idx.nodes[role]; !ok {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		return nil, &models.ConfigError{Kind: models.MissingRoles, Items: missing}
	}

	if len(idx.duplicates) > 0 {
		var items []string
		for _, role := range idx.sortedDuplicateRoles() {
			items = append(items, fmt.Sprintf("%s (kept %s, ignored %s)", role, idx.nodes[role], strings.Join(idx.duplicates[role], ",")))
		}
		if strict {
			return nil, &models.ConfigError{Kind: models.DuplicateRoles, Items: items}
		}
		slog.Warn("template has several nodes for one role, using the first", "roles", items)
	}

	return idx, nil
}

// Resolve returns the node id bound to role.
func (r *RoleIndex) Resolve(role string) (string, bool) {
	id, ok := r.nodes[role]
	return id, ok
}

// Roles returns the resolved role names, sorted.
func (r *RoleIndex) Roles() []string {
	roles := make([]string, 0, len(r.nodes))
	for role := range r.nodes {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	return roles
}

// Duplicates returns the ignored node ids per role.
func (r *RoleIndex) Duplicates() map[string][]string {
	return r.duplicates
}

func (r *RoleIndex) sortedDuplicateRoles() []string {
	roles := make([]string, 0, len(r.duplicates))
	for role := range r.duplicates {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	return roles
}
