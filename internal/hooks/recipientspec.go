package hooks

import (
	"encoding/json"
	"strings"

	"casework/internal/services"
)

// RecipientSpec is the parsed recipient configuration of a hook: literal
// addresses plus role references, with the to/cc distinction preserved for
// channel semantics downstream.
type RecipientSpec struct {
	ToAddresses []string
	CCAddresses []string
	ToRoles     []string
	CCRoles     []string
}

// IsEmpty reports whether the spec names no recipients at all.
func (s RecipientSpec) IsEmpty() bool {
	return len(s.ToAddresses) == 0 && len(s.CCAddresses) == 0 &&
		len(s.ToRoles) == 0 && len(s.CCRoles) == 0
}

// rawRecipientSpec mirrors the stored JSON shape. Legacy rows encode each
// field as either a plain string (comma or semicolon separated), a JSON
// array of strings, or a JSON-encoded string containing one of the former.
type rawRecipientSpec struct {
	To      json.RawMessage `json:"to"`
	CC      json.RawMessage `json:"cc"`
	ToRoles json.RawMessage `json:"toRoles"`
	CCRoles json.RawMessage `json:"ccRoles"`
}

// ParseRecipientSpec parses a stored recipient configuration. It is the only
// place legacy representations are interpreted; downstream code consumes the
// typed spec and never re-parses. A role reference is any entry prefixed
// with "role:" inside to/cc, in addition to the dedicated role fields.
func ParseRecipientSpec(raw string) (RecipientSpec, error) {
	spec := RecipientSpec{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return spec, nil
	}

	// Oldest rows store a bare separated address list rather than an object.
	if !strings.HasPrefix(raw, "{") {
		addresses, roles := splitRoleRefs(splitList(raw))
		spec.ToAddresses = addresses
		spec.ToRoles = roles
		return spec, nil
	}

	var decoded rawRecipientSpec
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return spec, services.Wrap(services.ErrConfiguration, "hooks", "parse recipients", "unparseable recipient spec", err)
	}

	to, err := decodeEntryList(decoded.To)
	if err != nil {
		return spec, services.Wrap(services.ErrConfiguration, "hooks", "parse recipients", "bad to field", err)
	}
	cc, err := decodeEntryList(decoded.CC)
	if err != nil {
		return spec, services.Wrap(services.ErrConfiguration, "hooks", "parse recipients", "bad cc field", err)
	}
	toRoles, err := decodeEntryList(decoded.ToRoles)
	if err != nil {
		return spec, services.Wrap(services.ErrConfiguration, "hooks", "parse recipients", "bad toRoles field", err)
	}
	ccRoles, err := decodeEntryList(decoded.CCRoles)
	if err != nil {
		return spec, services.Wrap(services.ErrConfiguration, "hooks", "parse recipients", "bad ccRoles field", err)
	}

	spec.ToAddresses, spec.ToRoles = splitRoleRefs(to)
	spec.CCAddresses, spec.CCRoles = splitRoleRefs(cc)
	spec.ToRoles = append(spec.ToRoles, stripRolePrefixes(toRoles)...)
	spec.CCRoles = append(spec.CCRoles, stripRolePrefixes(ccRoles)...)

	spec.ToAddresses = dedupePreservingOrder(spec.ToAddresses)
	spec.CCAddresses = dedupePreservingOrder(spec.CCAddresses)
	spec.ToRoles = dedupePreservingOrder(spec.ToRoles)
	spec.CCRoles = dedupePreservingOrder(spec.CCRoles)
	return spec, nil
}

// decodeEntryList accepts null, a separated string, a JSON array of strings,
// or a JSON-encoded string holding either of those.
func decodeEntryList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		trimmed := strings.TrimSpace(asString)
		// Double-encoded arrays show up in rows migrated from the legacy
		// admin surface.
		if strings.HasPrefix(trimmed, "[") {
			var nested []string
			if err := json.Unmarshal([]byte(trimmed), &nested); err == nil {
				return trimEntries(nested), nil
			}
		}
		return splitList(trimmed), nil
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		return trimEntries(asList), nil
	}
	return nil, services.Wrap(services.ErrConfiguration, "hooks", "decode recipient list", string(raw), nil)
}

func splitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';'
	})
	return trimEntries(fields)
}

func trimEntries(entries []string) []string {
	cleaned := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry = strings.TrimSpace(entry); entry != "" {
			cleaned = append(cleaned, entry)
		}
	}
	return cleaned
}

func splitRoleRefs(entries []string) (addresses, roles []string) {
	for _, entry := range entries {
		if role, ok := strings.CutPrefix(entry, "role:"); ok {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
			continue
		}
		addresses = append(addresses, entry)
	}
	return addresses, roles
}

func stripRolePrefixes(entries []string) []string {
	roles := make([]string, 0, len(entries))
	for _, entry := range entries {
		if role, ok := strings.CutPrefix(entry, "role:"); ok {
			entry = role
		}
		if entry = strings.TrimSpace(entry); entry != "" {
			roles = append(roles, entry)
		}
	}
	return roles
}

func dedupePreservingOrder(entries []string) []string {
	if len(entries) < 2 {
		return entries
	}
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0]
	for _, entry := range entries {
		key := strings.ToLower(entry)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, entry)
	}
	return out
}
