package recipients

import (
	"context"
	"strings"

	"casework/internal/config"
)

// Directory maps role names to the addresses currently assigned to them.
// Implementations return a nil slice (not an error) for a role they do not
// know; errors are reserved for lookup infrastructure failures.
type Directory interface {
	ResolveRole(ctx context.Context, role string) ([]string, error)
}

// ConfigDirectory serves role membership from the static [directory.roles]
// table in the configuration file. Role names match case-insensitively.
type ConfigDirectory struct {
	roles map[string][]string
}

// NewConfigDirectory builds a directory from loaded configuration.
func NewConfigDirectory(cfg *config.Config) *ConfigDirectory {
	roles := make(map[string][]string, len(cfg.Directory.Roles))
	for name, members := range cfg.Directory.Roles {
		roles[strings.ToLower(strings.TrimSpace(name))] = members
	}
	return &ConfigDirectory{roles: roles}
}

func (d *ConfigDirectory) ResolveRole(_ context.Context, role string) ([]string, error) {
	members, ok := d.roles[strings.ToLower(strings.TrimSpace(role))]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		m = strings.TrimSpace(m)
		if m != "" {
			out = append(out, m)
		}
	}
	return out, nil
}

// StaticDirectory is a fixed in-memory directory for tests and tooling.
type StaticDirectory map[string][]string

func (d StaticDirectory) ResolveRole(_ context.Context, role string) ([]string, error) {
	return d[strings.ToLower(strings.TrimSpace(role))], nil
}
