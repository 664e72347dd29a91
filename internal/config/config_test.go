package config_test

import (
	"strings"
	"testing"

	"assetline/internal/config"
	"assetline/internal/domain"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if _, err := cfg.Graph(); err != nil {
		t.Fatalf("default declaration must be acyclic: %v", err)
	}
}

func TestUnknownCapabilityReference(t *testing.T) {
	yml := `
capabilities:
  catalog:
    assets: [assets:view]
roles:
  staff:
    defaults: [assets:nope]
`
	_, err := config.FromYAML([]byte(yml))
	if err == nil || !strings.Contains(err.Error(), "unknown capability") {
		t.Fatalf("expected unknown capability error, got %v", err)
	}
}

func TestUnknownRoleRejected(t *testing.T) {
	yml := `
capabilities:
  catalog:
    assets: [assets:view]
roles:
  intern:
    defaults: [assets:view]
`
	_, err := config.FromYAML([]byte(yml))
	if err == nil || !strings.Contains(err.Error(), "unknown role") {
		t.Fatalf("expected unknown role error, got %v", err)
	}
}

func TestCyclicDependencyRejectedAtGraphBuild(t *testing.T) {
	yml := `
capabilities:
  catalog:
    assets: [assets:view, assets:edit]
  dependencies:
    assets:view: [assets:edit]
    assets:edit: [assets:view]
roles:
  staff:
    defaults: [assets:view]
`
	cfg, err := config.FromYAML([]byte(yml))
	if err != nil {
		t.Fatalf("config itself parses: %v", err)
	}
	if _, err := cfg.Graph(); err == nil {
		t.Fatalf("expected cycle to be a fatal graph error")
	}
}

func TestDefaultPermissionsPerRole(t *testing.T) {
	cfg := config.Default()
	defaults := cfg.DefaultPermissions(domain.RoleStaff)
	found := false
	for _, c := range defaults {
		if c == domain.CapRequestsCreate {
			found = true
		}
		if c == domain.CapApproveFinal {
			t.Fatalf("staff defaults must not include final approval")
		}
	}
	if !found {
		t.Fatalf("staff defaults missing %s: %v", domain.CapRequestsCreate, defaults)
	}
}
