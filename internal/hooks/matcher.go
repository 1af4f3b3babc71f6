package hooks

import (
	"casework/internal/services"
	"casework/internal/signal"
)

// MatchIssue records a hook that was excluded from a match because its
// configuration could not be evaluated. Issues are reported for logging but
// never abort matching for the remaining hooks.
type MatchIssue struct {
	HookID string
	Err    error
}

// Match selects the enabled hooks in the snapshot whose signal type matches
// the event and whose condition tree evaluates true against the payload.
// Hooks stay excluded on disabled flags, failed predicates, or evaluation
// errors; the latter are returned as issues.
func Match(snap *Snapshot, event *signal.Event) ([]Hook, []MatchIssue) {
	if snap == nil || event == nil {
		return nil, nil
	}

	candidates := snap.HooksFor(event.Type)
	if len(candidates) == 0 {
		return nil, nil
	}

	fields, err := event.DecodedPayload()
	if err != nil {
		// An undecodable payload excludes every conditional hook but still
		// lets unconditional hooks fire.
		issues := make([]MatchIssue, 0)
		matched := make([]Hook, 0, len(candidates))
		for _, hook := range candidates {
			if !hook.Enabled {
				continue
			}
			if hook.Conditions == nil {
				matched = append(matched, hook)
				continue
			}
			issues = append(issues, MatchIssue{
				HookID: hook.ID,
				Err:    services.Wrap(services.ErrConfiguration, "hooks", "match", "payload undecodable for conditional hook", err),
			})
		}
		return matched, issues
	}

	var matched []Hook
	var issues []MatchIssue
	for _, hook := range candidates {
		if !hook.Enabled {
			continue
		}
		ok, evalErr := hook.Conditions.Evaluate(fields)
		if evalErr != nil {
			issues = append(issues, MatchIssue{HookID: hook.ID, Err: evalErr})
			continue
		}
		if ok {
			matched = append(matched, hook)
		}
	}
	return matched, issues
}

func configError(message string) error {
	return services.Wrap(services.ErrConfiguration, "hooks", "load", message, nil)
}
