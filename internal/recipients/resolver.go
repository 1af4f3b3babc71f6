package recipients

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"

	"casework/internal/hooks"
	"casework/internal/logging"
	"casework/internal/services"
)

// Resolution is the concrete outcome of expanding a hook's recipient spec.
// Partial marks resolutions where at least one role reference expanded to
// nothing; delivery still proceeds with whatever resolved.
type Resolution struct {
	To              []string
	CC              []string
	Partial         bool
	UnresolvedRoles []string
}

// Empty reports whether the resolution carries no deliverable address.
func (r Resolution) Empty() bool {
	return len(r.To) == 0 && len(r.CC) == 0
}

// Resolver expands recipient specs against a directory.
type Resolver struct {
	directory Directory
	logger    *slog.Logger
	folder    cases.Caser
}

// NewResolver builds a resolver. A nil logger disables resolution logging.
func NewResolver(directory Directory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		directory: directory,
		logger:    logger,
		folder:    cases.Fold(),
	}
}

// Resolve expands the hook's recipient spec into concrete address lists.
// Addresses are deduplicated case-insensitively across to and cc, with to
// taking precedence. A role that yields nothing, whether unknown or because
// the directory is unavailable, is recorded, logged, and skipped so literal
// addresses still deliver; a resolution where every source expanded to
// nothing is a configuration error because the hook can never deliver.
func (r *Resolver) Resolve(ctx context.Context, hook hooks.Hook) (Resolution, error) {
	res := Resolution{}
	seen := make(map[string]struct{})

	add := func(dst *[]string, addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		key := r.folder.String(addr)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		*dst = append(*dst, addr)
	}

	expand := func(dst *[]string, roles []string) {
		for _, role := range roles {
			members, err := r.directory.ResolveRole(ctx, role)
			if err != nil {
				res.Partial = true
				res.UnresolvedRoles = append(res.UnresolvedRoles, role)
				r.logger.WarnContext(ctx, "role lookup failed",
					logging.String(logging.FieldHookID, hook.ID),
					logging.String("role", role),
					logging.Error(err))
				continue
			}
			if len(members) == 0 {
				res.Partial = true
				res.UnresolvedRoles = append(res.UnresolvedRoles, role)
				r.logger.WarnContext(ctx, "role resolved to no recipients",
					logging.String(logging.FieldHookID, hook.ID),
					logging.String("role", role))
				continue
			}
			for _, m := range members {
				add(dst, m)
			}
		}
	}

	for _, addr := range hook.Recipients.ToAddresses {
		add(&res.To, addr)
	}
	expand(&res.To, hook.Recipients.ToRoles)
	for _, addr := range hook.Recipients.CCAddresses {
		add(&res.CC, addr)
	}
	expand(&res.CC, hook.Recipients.CCRoles)

	if res.Empty() {
		return res, services.Wrap(services.ErrConfiguration, "recipients", "resolve", "hook resolves to no recipients", nil)
	}
	return res, nil
}
