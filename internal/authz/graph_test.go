package authz_test

import (
	"errors"
	"testing"

	"assetline/internal/authz"
	"assetline/internal/domain"
)

func testDecl() authz.Declaration {
	return authz.Declaration{
		Capabilities: []domain.Capability{
			domain.CapAssetsView, domain.CapAssetsCreate, domain.CapAssetsEdit,
			domain.CapAssetsDelete, domain.CapRequestsView, domain.CapApproveLogistic,
			domain.CapApproveFinal,
		},
		Dependencies: map[domain.Capability][]domain.Capability{
			domain.CapAssetsCreate:   {domain.CapAssetsView},
			domain.CapAssetsEdit:     {domain.CapAssetsView},
			domain.CapAssetsDelete:   {domain.CapAssetsEdit},
			domain.CapApproveLogistic: {domain.CapRequestsView},
		},
		Policies: map[domain.Role]authz.RolePolicy{
			domain.RoleStaff: {
				Mandatory:  []domain.Capability{domain.CapRequestsView},
				Restricted: []domain.Capability{domain.CapAssetsDelete, domain.CapApproveFinal},
			},
			domain.RoleLeader: {
				Mandatory:  []domain.Capability{domain.CapApproveFinal},
				Restricted: []domain.Capability{domain.CapApproveFinal},
			},
		},
	}
}

func newGraph(t *testing.T) *authz.Graph {
	t.Helper()
	g, err := authz.NewGraph(testDecl())
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return g
}

func TestResolveAncestors(t *testing.T) {
	g := newGraph(t)
	anc, err := g.ResolveAncestors(domain.CapAssetsDelete)
	if err != nil {
		t.Fatalf("ancestors: %v", err)
	}
	if !anc.Has(domain.CapAssetsEdit) || !anc.Has(domain.CapAssetsView) {
		t.Fatalf("expected transitive parents, got %v", anc.Slice())
	}
	if anc.Has(domain.CapAssetsDelete) {
		t.Fatalf("capability must not be its own ancestor")
	}
	// idempotence: ancestors of each ancestor add nothing new
	for _, a := range anc.Slice() {
		more, err := g.ResolveAncestors(a)
		if err != nil {
			t.Fatal(err)
		}
		for _, m := range more.Slice() {
			if !anc.Has(m) {
				t.Fatalf("missed transitive parent %s", m)
			}
		}
	}
}

func TestResolveDescendants(t *testing.T) {
	g := newGraph(t)
	desc, err := g.ResolveDescendants(domain.CapAssetsView)
	if err != nil {
		t.Fatalf("descendants: %v", err)
	}
	for _, want := range []domain.Capability{domain.CapAssetsCreate, domain.CapAssetsEdit, domain.CapAssetsDelete} {
		if !desc.Has(want) {
			t.Fatalf("expected descendant %s, got %v", want, desc.Slice())
		}
	}
}

func TestUnknownCapabilityHasNoEdges(t *testing.T) {
	g := newGraph(t)
	anc, err := g.ResolveAncestors("no:such:capability")
	if err != nil {
		t.Fatalf("unknown capability must not error: %v", err)
	}
	if len(anc) != 0 {
		t.Fatalf("expected empty set, got %v", anc.Slice())
	}
}

func TestCycleIsConfigError(t *testing.T) {
	decl := testDecl()
	decl.Dependencies[domain.CapAssetsView] = []domain.Capability{domain.CapAssetsDelete}
	_, err := authz.NewGraph(decl)
	var ce authz.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestSuperAdminUniversality(t *testing.T) {
	g := newGraph(t)
	u := domain.User{ID: "root", Role: domain.RoleSuperAdmin} // empty stored set
	for _, c := range g.Capabilities() {
		if !g.HasPermission(u, c) {
			t.Fatalf("super admin denied %s", c)
		}
	}
	if len(g.EffectivePermissions(u)) != len(g.Capabilities()) {
		t.Fatalf("super admin effective set must be universal")
	}
}

func TestRestrictionWinsOverMandatory(t *testing.T) {
	g := newGraph(t)
	// leader declares approve:final both mandatory and restricted
	u := domain.User{ID: "l1", Role: domain.RoleLeader, Permissions: []domain.Capability{domain.CapApproveFinal}}
	eff := g.EffectivePermissions(u)
	if eff.Has(domain.CapApproveFinal) {
		t.Fatalf("restricted capability leaked into effective set")
	}
	if g.HasPermission(u, domain.CapApproveFinal) {
		t.Fatalf("restricted capability granted despite stored permission")
	}
}

func TestMandatoryInjected(t *testing.T) {
	g := newGraph(t)
	u := domain.User{ID: "s1", Role: domain.RoleStaff}
	if !g.EffectivePermissions(u).Has(domain.CapRequestsView) {
		t.Fatalf("mandatory capability missing from effective set")
	}
}

func TestSanitizeStripsRestricted(t *testing.T) {
	g := newGraph(t)
	safe := g.Sanitize([]domain.Capability{domain.CapAssetsDelete, domain.CapAssetsView}, domain.RoleStaff)
	if safe.Has(domain.CapAssetsDelete) {
		t.Fatalf("sanitize kept restricted capability")
	}
	if !safe.Has(domain.CapAssetsView) || !safe.Has(domain.CapRequestsView) {
		t.Fatalf("sanitize dropped allowed or mandatory capability: %v", safe.Slice())
	}
}

func TestToggleClosure(t *testing.T) {
	g := newGraph(t)
	on, err := g.ToggleOn(domain.CapAssetsDelete)
	if err != nil {
		t.Fatal(err)
	}
	if !on.Has(domain.CapAssetsDelete) || !on.Has(domain.CapAssetsEdit) || !on.Has(domain.CapAssetsView) {
		t.Fatalf("selecting a capability must auto-select ancestors: %v", on.Slice())
	}
	off, err := g.ToggleOff(domain.CapAssetsView)
	if err != nil {
		t.Fatal(err)
	}
	if !off.Has(domain.CapAssetsCreate) || !off.Has(domain.CapAssetsDelete) {
		t.Fatalf("deselecting a capability must auto-deselect descendants: %v", off.Slice())
	}
}

func TestRequire(t *testing.T) {
	g := newGraph(t)
	u := domain.User{ID: "s1", Role: domain.RoleStaff, Permissions: []domain.Capability{domain.CapRequestsView}}
	if err := g.Require(u, domain.CapRequestsView); err != nil {
		t.Fatalf("unexpected denial: %v", err)
	}
	err := g.Require(u, domain.CapApproveLogistic)
	var fe authz.ForbiddenError
	if !errors.As(err, &fe) || fe.Capability != domain.CapApproveLogistic {
		t.Fatalf("expected ForbiddenError for %s, got %v", domain.CapApproveLogistic, err)
	}
}
