package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"assetline/internal/authz"
	"assetline/internal/domain"
)

// Config models assetline.yml: the capability catalog, the capability
// dependency graph and the per-role policies the permission graph is built
// from. It is loaded once at startup and treated as immutable afterwards.
type Config struct {
	Capabilities struct {
		// Catalog groups capabilities under presentation labels. Grouping
		// carries no authorization semantics.
		Catalog map[string][]string `yaml:"catalog"`
		// Dependencies maps child -> required parents.
		Dependencies map[string][]string `yaml:"dependencies"`
	} `yaml:"capabilities"`
	Roles map[string]RoleConfig `yaml:"roles"`
}

type RoleConfig struct {
	Description string   `yaml:"description"`
	Defaults    []string `yaml:"defaults"`
	Mandatory   []string `yaml:"mandatory"`
	Restricted  []string `yaml:"restricted"`
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "assetline.yml")
}

// Load reads and validates config from the workspace, falling back to the
// compiled-in default declaration when no file exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures every reference resolves against the catalog.
func (c *Config) Validate() error {
	if len(c.Capabilities.Catalog) == 0 {
		return fmt.Errorf("config.capabilities.catalog is required")
	}
	known := map[string]bool{}
	for group, caps := range c.Capabilities.Catalog {
		if group == "" {
			return fmt.Errorf("capability catalog contains empty group label")
		}
		for _, id := range caps {
			if id == "" {
				return fmt.Errorf("capability group %s has empty capability id", group)
			}
			known[id] = true
		}
	}
	for child, parents := range c.Capabilities.Dependencies {
		if !known[child] {
			return fmt.Errorf("dependency declared for unknown capability %s", child)
		}
		for _, p := range parents {
			if !known[p] {
				return fmt.Errorf("capability %s depends on unknown capability %s", child, p)
			}
		}
	}
	if len(c.Roles) == 0 {
		return fmt.Errorf("config.roles is required")
	}
	for name, rc := range c.Roles {
		if _, ok := domain.ParseRole(name); !ok {
			return fmt.Errorf("unknown role %s", name)
		}
		for _, list := range [][]string{rc.Defaults, rc.Mandatory, rc.Restricted} {
			for _, id := range list {
				if !known[id] {
					return fmt.Errorf("role %s references unknown capability %s", name, id)
				}
			}
		}
	}
	return nil
}

// Declaration converts the config into the authz declaration form.
func (c *Config) Declaration() authz.Declaration {
	decl := authz.Declaration{
		Dependencies: make(map[domain.Capability][]domain.Capability, len(c.Capabilities.Dependencies)),
		Policies:     make(map[domain.Role]authz.RolePolicy, len(c.Roles)),
	}
	seen := map[domain.Capability]bool{}
	for _, caps := range c.Capabilities.Catalog {
		for _, s := range caps {
			id := domain.Capability(s)
			if !seen[id] {
				seen[id] = true
				decl.Capabilities = append(decl.Capabilities, id)
			}
		}
	}
	for child, parents := range c.Capabilities.Dependencies {
		ps := make([]domain.Capability, 0, len(parents))
		for _, p := range parents {
			ps = append(ps, domain.Capability(p))
		}
		decl.Dependencies[domain.Capability(child)] = ps
	}
	for name, rc := range c.Roles {
		role, _ := domain.ParseRole(name)
		decl.Policies[role] = authz.RolePolicy{
			Defaults:   toCaps(rc.Defaults),
			Mandatory:  toCaps(rc.Mandatory),
			Restricted: toCaps(rc.Restricted),
		}
	}
	return decl
}

// Graph builds the permission graph from the config. A dependency cycle in
// the declaration surfaces here as a fatal authz.ConfigError.
func (c *Config) Graph() (*authz.Graph, error) {
	return authz.NewGraph(c.Declaration())
}

// DefaultPermissions returns the declared default capability set for a role.
func (c *Config) DefaultPermissions(role domain.Role) []domain.Capability {
	return toCaps(c.Roles[string(role)].Defaults)
}

func toCaps(in []string) []domain.Capability {
	out := make([]domain.Capability, 0, len(in))
	for _, s := range in {
		out = append(out, domain.Capability(s))
	}
	return out
}

// Default returns the compiled-in declaration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// GenerateDefault returns the default config YAML for assetline.yml.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `capabilities:
  catalog:
    assets:
      - assets:view
      - assets:create
      - assets:edit
      - assets:delete
      - assets:handover
      - assets:dismantle
    requests:
      - requests:view
      - requests:create
      - requests:cancel:own
      - requests:approve:logistic
      - requests:approve:purchase
      - requests:approve:final
    administration:
      - users:view
      - users:manage
      - reports:view

  dependencies:
    assets:create: [assets:view]
    assets:edit: [assets:view]
    assets:delete: [assets:edit]
    assets:handover: [assets:view]
    assets:dismantle: [assets:edit]
    requests:create: [requests:view]
    requests:cancel:own: [requests:view]
    requests:approve:logistic: [requests:view]
    requests:approve:purchase: [requests:view]
    requests:approve:final: [requests:view]
    users:manage: [users:view]

roles:
  super_admin:
    description: "Full access to every capability"

  admin_logistic:
    description: "Warehouse and logistics administration"
    defaults:
      - assets:view
      - assets:create
      - assets:edit
      - assets:handover
      - requests:view
      - requests:approve:logistic
    mandatory:
      - assets:view
      - requests:view
    restricted:
      - requests:approve:final
      - users:manage

  admin_purchase:
    description: "Procurement administration"
    defaults:
      - assets:view
      - requests:view
      - requests:approve:purchase
      - reports:view
    mandatory:
      - requests:view
    restricted:
      - requests:approve:final
      - requests:approve:logistic
      - users:manage

  leader:
    description: "Final approval authority"
    defaults:
      - assets:view
      - requests:view
      - requests:approve:final
      - reports:view
    mandatory:
      - requests:view
      - requests:approve:final
    restricted:
      - users:manage

  staff:
    description: "Requester"
    defaults:
      - requests:view
      - requests:create
      - requests:cancel:own
    mandatory:
      - requests:view
    restricted:
      - requests:approve:logistic
      - requests:approve:purchase
      - requests:approve:final
      - assets:delete
      - users:manage
`
