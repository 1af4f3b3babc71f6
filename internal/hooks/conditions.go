package hooks

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"casework/internal/services"
)

// Condition is one node of a hook's predicate tree. Group operators (and/or)
// evaluate children; leaf operators compare a payload field to a value.
type Condition struct {
	Op       string       `json:"op"`
	Field    string       `json:"field,omitempty"`
	Value    any          `json:"value,omitempty"`
	Children []*Condition `json:"children,omitempty"`
}

const (
	OpAnd      = "and"
	OpOr       = "or"
	OpEq       = "eq"
	OpNe       = "ne"
	OpContains = "contains"
	OpExists   = "exists"
	OpGt       = "gt"
	OpLt       = "lt"
)

// ParseCondition decodes a stored condition tree. An empty document means
// the hook matches unconditionally.
func ParseCondition(raw string) (*Condition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var cond Condition
	if err := json.Unmarshal([]byte(raw), &cond); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "hooks", "parse conditions", "unparseable condition tree", err)
	}
	if err := cond.validate(); err != nil {
		return nil, err
	}
	return &cond, nil
}

func (c *Condition) validate() error {
	switch c.Op {
	case OpAnd, OpOr:
		if len(c.Children) == 0 {
			return services.Wrap(services.ErrConfiguration, "hooks", "validate conditions",
				fmt.Sprintf("%s group has no children", c.Op), nil)
		}
		for _, child := range c.Children {
			if child == nil {
				return services.Wrap(services.ErrConfiguration, "hooks", "validate conditions", "nil child node", nil)
			}
			if err := child.validate(); err != nil {
				return err
			}
		}
		return nil
	case OpEq, OpNe, OpContains, OpGt, OpLt, OpExists:
		if strings.TrimSpace(c.Field) == "" {
			return services.Wrap(services.ErrConfiguration, "hooks", "validate conditions",
				fmt.Sprintf("%s predicate missing field", c.Op), nil)
		}
		return nil
	default:
		return services.Wrap(services.ErrConfiguration, "hooks", "validate conditions",
			fmt.Sprintf("unknown operator %q", c.Op), nil)
	}
}

// Evaluate applies the tree to an event payload. A nil condition matches.
func (c *Condition) Evaluate(fields map[string]any) (bool, error) {
	if c == nil {
		return true, nil
	}
	switch c.Op {
	case OpAnd:
		for _, child := range c.Children {
			ok, err := child.Evaluate(fields)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case OpOr:
		for _, child := range c.Children {
			ok, err := child.Evaluate(fields)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case OpExists:
		_, ok := fields[c.Field]
		return ok, nil
	case OpEq:
		value, ok := fields[c.Field]
		return ok && looseEqual(value, c.Value), nil
	case OpNe:
		value, ok := fields[c.Field]
		return !ok || !looseEqual(value, c.Value), nil
	case OpContains:
		value, ok := fields[c.Field]
		if !ok {
			return false, nil
		}
		return strings.Contains(
			strings.ToLower(stringify(value)),
			strings.ToLower(stringify(c.Value)),
		), nil
	case OpGt, OpLt:
		value, ok := fields[c.Field]
		if !ok {
			return false, nil
		}
		left, lok := toFloat(value)
		right, rok := toFloat(c.Value)
		if !lok || !rok {
			return false, services.Wrap(services.ErrConfiguration, "hooks", "evaluate conditions",
				fmt.Sprintf("%s predicate on non-numeric field %q", c.Op, c.Field), nil)
		}
		if c.Op == OpGt {
			return left > right, nil
		}
		return left < right, nil
	default:
		return false, services.Wrap(services.ErrConfiguration, "hooks", "evaluate conditions",
			fmt.Sprintf("unknown operator %q", c.Op), nil)
	}
}

// looseEqual compares payload values that may arrive as differing JSON
// scalar types (e.g. "5" vs 5, true vs "true").
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return strings.EqualFold(stringify(a), stringify(b))
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}
