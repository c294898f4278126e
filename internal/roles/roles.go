// Package roles answers policy questions about agent roles: how deep
// a role's lineage may recurse and which roles it may spawn. The
// default provider is backed by the role table in the config file.
package roles

import (
	"fmt"

	"github.com/sethdford/hivemind/internal/config"
)

// DefaultMaxDepth bounds roles with no configured ceiling.
const DefaultMaxDepth = 3

type Policy struct {
	roles map[string]config.RoleDefinition
}

func New(defs map[string]config.RoleDefinition) *Policy {
	if defs == nil {
		defs = make(map[string]config.RoleDefinition)
	}
	return &Policy{roles: defs}
}

// MaxDepthForRole returns the role-intrinsic recursion ceiling.
func (p *Policy) MaxDepthForRole(role string) int {
	if def, ok := p.roles[role]; ok && def.MaxDepth > 0 {
		return def.MaxDepth
	}
	return DefaultMaxDepth
}

// SpawnAllowed reports whether spawnerRole may create targetRole at
// the given depth. The reason is empty when allowed.
func (p *Policy) SpawnAllowed(spawnerRole string, depth int, targetRole string) (bool, string) {
	if _, ok := p.roles[targetRole]; !ok {
		return false, fmt.Sprintf("unknown target role %q", targetRole)
	}

	spawner, ok := p.roles[spawnerRole]
	if !ok {
		return false, fmt.Sprintf("unknown spawner role %q", spawnerRole)
	}

	if depth >= p.MaxDepthForRole(spawnerRole) {
		return false, fmt.Sprintf("role %q may not spawn beyond depth %d", spawnerRole, p.MaxDepthForRole(spawnerRole))
	}

	for _, allowed := range spawner.CanSpawn {
		if allowed == "*" || allowed == targetRole {
			return true, ""
		}
	}
	return false, fmt.Sprintf("role %q is not permitted to spawn %q", spawnerRole, targetRole)
}

// Known reports whether a role is defined.
func (p *Policy) Known(role string) bool {
	_, ok := p.roles[role]
	return ok
}
