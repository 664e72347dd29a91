// Package authz resolves effective capability sets for users against a
// declarative capability-dependency graph with per-role policies.
package authz

import (
	"fmt"
	"sort"

	"assetline/internal/domain"
)

// ForbiddenError indicates a missing capability.
type ForbiddenError struct {
	Capability domain.Capability
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("capability %s required", e.Capability)
}

// ConfigError is a fatal capability-graph configuration problem, such as a
// dependency cycle. It indicates a corrupted declaration, not bad input.
type ConfigError struct {
	Reason string
}

func (e ConfigError) Error() string {
	return "authz config: " + e.Reason
}

// RolePolicy declares the capability sets attached to one role.
type RolePolicy struct {
	// Defaults seed a new user's stored permission set.
	Defaults []domain.Capability
	// Mandatory capabilities are always granted regardless of stored data.
	Mandatory []domain.Capability
	// Restricted capabilities are never grantable, even if stored.
	Restricted []domain.Capability
}

// Declaration is the full static capability declaration a Graph is built from.
type Declaration struct {
	// Capabilities is the universal capability set.
	Capabilities []domain.Capability
	// Dependencies maps child -> required parents: granting the child requires
	// all parents granted; revoking a parent revokes the child.
	Dependencies map[domain.Capability][]domain.Capability
	// Policies maps each role to its capability policy.
	Policies map[domain.Role]RolePolicy
}

// Graph is the immutable, resolved capability graph. Build it once at startup
// and share it; it is never mutated afterwards, so concurrent reads are safe.
type Graph struct {
	universe   map[domain.Capability]struct{}
	parents    map[domain.Capability][]domain.Capability
	children   map[domain.Capability][]domain.Capability
	policies   map[domain.Role]RolePolicy
	restricted map[domain.Role]map[domain.Capability]struct{}
}

// NewGraph validates the declaration and builds the resolved graph, including
// the reverse (parent -> children) index. A dependency cycle is a ConfigError.
func NewGraph(decl Declaration) (*Graph, error) {
	g := &Graph{
		universe:   make(map[domain.Capability]struct{}, len(decl.Capabilities)),
		parents:    make(map[domain.Capability][]domain.Capability, len(decl.Dependencies)),
		children:   make(map[domain.Capability][]domain.Capability),
		policies:   make(map[domain.Role]RolePolicy, len(decl.Policies)),
		restricted: make(map[domain.Role]map[domain.Capability]struct{}, len(decl.Policies)),
	}
	for _, c := range decl.Capabilities {
		g.universe[c] = struct{}{}
	}
	for child, ps := range decl.Dependencies {
		g.parents[child] = append([]domain.Capability(nil), ps...)
		for _, p := range ps {
			g.children[p] = append(g.children[p], child)
		}
	}
	for role, pol := range decl.Policies {
		g.policies[role] = pol
		rs := make(map[domain.Capability]struct{}, len(pol.Restricted))
		for _, c := range pol.Restricted {
			rs[c] = struct{}{}
		}
		g.restricted[role] = rs
	}
	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// MustGraph builds the graph and panics on a ConfigError. For use with the
// compiled-in default declaration, which is asserted acyclic.
func MustGraph(decl Declaration) *Graph {
	g, err := NewGraph(decl)
	if err != nil {
		panic(err)
	}
	return g
}

// validateAcyclic walks every declared edge with three-color DFS.
func (g *Graph) validateAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[domain.Capability]int, len(g.parents))
	var visit func(c domain.Capability) error
	visit = func(c domain.Capability) error {
		color[c] = gray
		for _, p := range g.parents[c] {
			switch color[p] {
			case gray:
				return ConfigError{Reason: fmt.Sprintf("dependency cycle through %s", p)}
			case white:
				if err := visit(p); err != nil {
					return err
				}
			}
		}
		color[c] = black
		return nil
	}
	for c := range g.parents {
		if color[c] == white {
			if err := visit(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// Capabilities returns the universal capability set, sorted.
func (g *Graph) Capabilities() []domain.Capability {
	out := make([]domain.Capability, 0, len(g.universe))
	for c := range g.universe {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ResolveAncestors returns all transitive parents of a capability: the set
// that must also be granted for the capability to be grantable. Unknown
// capabilities simply have no ancestors. A cycle encountered mid-walk,
// should the acyclic invariant ever be violated, yields a ConfigError
// instead of an infinite loop.
func (g *Graph) ResolveAncestors(c domain.Capability) (Set, error) {
	return g.walk(c, g.parents)
}

// ResolveDescendants returns all transitive children: the set that must be
// revoked when the capability is revoked.
func (g *Graph) ResolveDescendants(c domain.Capability) (Set, error) {
	return g.walk(c, g.children)
}

func (g *Graph) walk(start domain.Capability, edges map[domain.Capability][]domain.Capability) (Set, error) {
	out := NewSet()
	visited := map[domain.Capability]struct{}{start: {}}
	frontier := []domain.Capability{start}
	// Bounded by the universe size; anything beyond means a malformed graph.
	limit := len(g.universe) + len(edges) + 1
	for steps := 0; len(frontier) > 0; steps++ {
		if steps > limit {
			return nil, ConfigError{Reason: fmt.Sprintf("traversal from %s exceeded graph size; cycle suspected", start)}
		}
		next := frontier[0]
		frontier = frontier[1:]
		for _, n := range edges[next] {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			out.Add(n)
			frontier = append(frontier, n)
		}
	}
	return out, nil
}

// Policy returns the declared policy for a role.
func (g *Graph) Policy(role domain.Role) RolePolicy {
	return g.policies[role]
}

// EffectivePermissions computes the capability set the user actually holds:
// SuperAdmin gets the universal set; everyone else gets
// (stored \ restricted) ∪ (mandatory \ restricted). Restriction wins over
// mandatory when a role declaration conflicts.
func (g *Graph) EffectivePermissions(u domain.User) Set {
	if u.Role == domain.RoleSuperAdmin {
		out := NewSet()
		for c := range g.universe {
			out.Add(c)
		}
		return out
	}
	return g.Sanitize(u.Permissions, u.Role)
}

// Sanitize applies the restriction-then-injection rule to a stored permission
// set, returning a set safe to persist for the role.
func (g *Graph) Sanitize(perms []domain.Capability, role domain.Role) Set {
	restricted := g.restricted[role]
	out := NewSet()
	for _, c := range perms {
		if _, banned := restricted[c]; banned {
			continue
		}
		out.Add(c)
	}
	for _, c := range g.policies[role].Mandatory {
		if _, banned := restricted[c]; banned {
			continue
		}
		out.Add(c)
	}
	return out
}

// HasPermission reports whether the capability is in the user's effective
// set: SuperAdmin always, otherwise stored or mandatory grants minus the
// role's restrictions. A restricted capability is denied even when present
// in the stored set.
func (g *Graph) HasPermission(u domain.User, c domain.Capability) bool {
	if u.Role == domain.RoleSuperAdmin {
		return true
	}
	if _, banned := g.restricted[u.Role][c]; banned {
		return false
	}
	for _, p := range u.Permissions {
		if p == c {
			return true
		}
	}
	for _, p := range g.policies[u.Role].Mandatory {
		if p == c {
			return true
		}
	}
	return false
}

// HasAny reports whether the user holds at least one of the capabilities.
func (g *Graph) HasAny(u domain.User, caps ...domain.Capability) bool {
	for _, c := range caps {
		if g.HasPermission(u, c) {
			return true
		}
	}
	return false
}

// Require returns a ForbiddenError unless the user holds one of the
// capabilities.
func (g *Graph) Require(u domain.User, caps ...domain.Capability) error {
	if g.HasAny(u, caps...) {
		return nil
	}
	want := domain.Capability("")
	if len(caps) > 0 {
		want = caps[0]
	}
	return ForbiddenError{Capability: want}
}

// ToggleOn returns the capabilities that must be selected together with c:
// c itself plus all transitive parents.
func (g *Graph) ToggleOn(c domain.Capability) (Set, error) {
	anc, err := g.ResolveAncestors(c)
	if err != nil {
		return nil, err
	}
	anc.Add(c)
	return anc, nil
}

// ToggleOff returns the capabilities that must be deselected together with c:
// c itself plus all transitive children.
func (g *Graph) ToggleOff(c domain.Capability) (Set, error) {
	desc, err := g.ResolveDescendants(c)
	if err != nil {
		return nil, err
	}
	desc.Add(c)
	return desc, nil
}
