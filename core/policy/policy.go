// Package policy implements the PolicyEngine (spec.md §4.5): merging a
// verified chain's metadata_policy statements anchor->leaf and applying the
// merged policy to the leaf's declared metadata to produce effective
// metadata for a requested entity type.
package policy

import (
	"fmt"

	"github.com/openfedgo/trustchain/core/statement"
)

// ErrPolicyViolation is spec.md's PolicyViolation(claim, reason).
type ErrPolicyViolation struct {
	Claim  string
	Reason string
}

func (e *ErrPolicyViolation) Error() string {
	return fmt.Sprintf("policy: claim %q: %s", e.Claim, e.Reason)
}

// mergedOperators accumulates one claim's combined operator set while
// walking the chain anchor->leaf.
type mergedOperators struct {
	hasValue    bool
	value       any
	add         []any
	hasDefault  bool
	defaultVal  any
	hasOneOf    bool
	oneOf       []any
	hasSubsetOf bool
	subsetOf    []any
	hasSuperset bool
	supersetOf  []any
	essential   bool
}

// Engine applies metadata policy along a verified chain.
type Engine struct{}

// New creates a PolicyEngine.
func New() *Engine {
	return &Engine{}
}

// EffectiveMetadata walks chain (ordered anchor->leaf) and applies every
// metadata_policy[entityType] found, in order, to the leaf's declared
// metadata[entityType].
func (e *Engine) EffectiveMetadata(chain []*statement.EntityStatement, entityType statement.EntityType) (statement.Metadata, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("policy: empty chain")
	}

	leaf := chain[len(chain)-1]
	base := statement.Metadata{}
	for k, v := range leaf.Metadata[entityType] {
		base[k] = v
	}

	merged := map[string]*mergedOperators{}

	for _, s := range chain {
		ops := s.MetadataPolicy[entityType]

		// SPEC_FULL.md §13.2: the leaf statement's own metadata[type][claim]
		// is an implicit `value` operator; metadata on non-leaf statements is
		// not consulted.
		if s == leaf {
			for claim, v := range s.Metadata[entityType] {
				if err := mergeImplicitValue(merged, claim, v); err != nil {
					return nil, err
				}
			}
		}

		for claim, operators := range ops {
			if err := mergeClaimOperators(merged, claim, operators); err != nil {
				return nil, err
			}
		}
	}

	for claim, m := range merged {
		if err := applyOperators(base, claim, m); err != nil {
			return nil, err
		}
	}

	return base, nil
}

func mergeImplicitValue(merged map[string]*mergedOperators, claim string, v any) error {
	m := merged[claim]
	if m == nil {
		m = &mergedOperators{}
		merged[claim] = m
	}
	if m.hasValue && !equalValue(m.value, v) {
		return &ErrPolicyViolation{Claim: claim, Reason: "metadata value conflicts with metadata_policy.value"}
	}
	m.hasValue = true
	m.value = v
	return nil
}

func mergeClaimOperators(merged map[string]*mergedOperators, claim string, operators map[string]any) error {
	m := merged[claim]
	if m == nil {
		m = &mergedOperators{}
		merged[claim] = m
	}

	for op, raw := range operators {
		switch op {
		case "value":
			if m.hasValue && !equalValue(m.value, raw) {
				return &ErrPolicyViolation{Claim: claim, Reason: "conflicting value operators"}
			}
			m.hasValue = true
			m.value = raw
		case "add":
			m.add = append(m.add, toSlice(raw)...)
		case "default":
			if m.hasDefault && !equalValue(m.defaultVal, raw) {
				return &ErrPolicyViolation{Claim: claim, Reason: "conflicting default operators"}
			}
			m.hasDefault = true
			m.defaultVal = raw
		case "one_of":
			candidates := toSlice(raw)
			if !m.hasOneOf {
				m.oneOf = candidates
				m.hasOneOf = true
			} else {
				m.oneOf = intersect(m.oneOf, candidates)
				if len(m.oneOf) == 0 {
					return &ErrPolicyViolation{Claim: claim, Reason: "one_of intersection is empty"}
				}
			}
		case "subset_of":
			candidates := toSlice(raw)
			if !m.hasSubsetOf {
				m.subsetOf = candidates
				m.hasSubsetOf = true
			} else {
				m.subsetOf = intersect(m.subsetOf, candidates)
			}
		case "superset_of":
			candidates := toSlice(raw)
			m.supersetOf = union(m.supersetOf, candidates)
			m.hasSuperset = true
		case "essential":
			if b, ok := raw.(bool); ok && b {
				m.essential = true
			}
		}
	}
	return nil
}

func applyOperators(base statement.Metadata, claim string, m *mergedOperators) error {
	current, present := base[claim]

	if m.hasValue {
		base[claim] = m.value
		current, present = m.value, true
	}

	if len(m.add) > 0 {
		merged := union(m.add, toSlice(current))
		base[claim] = merged
		current, present = merged, true
	}

	if !present && m.hasDefault {
		base[claim] = m.defaultVal
		current, present = m.defaultVal, true
	}

	if m.essential && !present {
		return &ErrPolicyViolation{Claim: claim, Reason: "essential claim is missing"}
	}

	if m.hasOneOf && present {
		if !contains(m.oneOf, current) {
			return &ErrPolicyViolation{Claim: claim, Reason: "value not in one_of set"}
		}
	}

	if m.hasSubsetOf && present {
		for _, v := range toSlice(current) {
			if !contains(m.subsetOf, v) {
				return &ErrPolicyViolation{Claim: claim, Reason: "value not a subset of subset_of set"}
			}
		}
	}

	if m.hasSuperset && present {
		for _, v := range m.supersetOf {
			if !contains(toSlice(current), v) {
				return &ErrPolicyViolation{Claim: claim, Reason: "value does not contain superset_of set"}
			}
		}
	}

	return nil
}

func toSlice(v any) []any {
	if v == nil {
		return nil
	}
	if s, ok := v.([]any); ok {
		return s
	}
	return []any{v}
}

func contains(haystack []any, needle any) bool {
	for _, v := range haystack {
		if equalValue(v, needle) {
			return true
		}
	}
	return false
}

func intersect(a, b []any) []any {
	var out []any
	for _, v := range a {
		if contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}

func union(a, b []any) []any {
	out := append([]any{}, a...)
	for _, v := range b {
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func equalValue(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
