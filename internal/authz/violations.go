package authz

import (
	"fmt"
	"strings"

	"orgcore.org/internal/scope"
)

// Violation codes. SubsetOnly: the actor tried to delegate a permission they
// do not hold. Scope: the actor tried to reach a scope outside their own.
const (
	CodeSubsetOnly = "SUBSET_ONLY_VIOLATION"
	CodeScope      = "SCOPE_VIOLATION"
)

// Violation is one offending permission/scope pair.
type Violation struct {
	Code          string     `json:"code"`
	PermissionKey string     `json:"permission_key"`
	Scope         scope.Path `json:"scope,omitempty"`
}

// Violations is the complete list of delegation problems found for one
// command. It is an error so command handlers can return it directly, but it
// never stops at the first offender: the caller gets everything in one round
// trip.
type Violations []Violation

func (v Violations) Error() string {
	if len(v) == 0 {
		return "authz: no violations"
	}
	parts := make([]string, len(v))
	for i, viol := range v {
		if viol.Scope.IsGlobal() {
			parts[i] = fmt.Sprintf("%s(%s)", viol.Code, viol.PermissionKey)
		} else {
			parts[i] = fmt.Sprintf("%s(%s@%s)", viol.Code, viol.PermissionKey, viol.Scope)
		}
	}
	return "authz: " + strings.Join(parts, ", ")
}

// OK reports whether the check passed.
func (v Violations) OK() bool { return len(v) == 0 }

// CheckDelegation verifies the actor may hand out the listed permissions at
// target. Rules: the actor's effective set must already contain each exact
// permission (subset-only delegation), and at least one of the actor's scopes
// for it must contain the target; the set may carry several incomparable
// scopes per key. An unrestricted (global) target, e.g. assigning a role with
// no scope bound, is only reachable by an actor who is themselves
// unrestricted for that permission.
func CheckDelegation(actorSet []EffectivePermission, permKeys []string, target scope.Path) Violations {
	byKey := make(map[string][]scope.Path, len(actorSet))
	for _, ep := range actorSet {
		byKey[ep.Key] = append(byKey[ep.Key], ep.Scope)
	}

	var out Violations
	for _, key := range permKeys {
		held, ok := byKey[key]
		if !ok {
			out = append(out, Violation{Code: CodeSubsetOnly, PermissionKey: key})
			continue
		}
		reachable := false
		for _, sc := range held {
			if sc.Contains(target) {
				reachable = true
				break
			}
		}
		if !reachable {
			out = append(out, Violation{Code: CodeScope, PermissionKey: key, Scope: target})
		}
	}
	return out
}
