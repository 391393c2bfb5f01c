package model

import "strings"

// CapabilitySet is a set of capabilities granted to a user. Each key is a
// capability string (e.g. "approvals:decide:engineer") and may include
// wildcards (e.g. "approvals:*").
type CapabilitySet map[string]bool

// Has returns true if the set contains the exact capability or a wildcard
// that matches it.
func (cs CapabilitySet) Has(cap string) bool {
	if cs[cap] {
		return true
	}
	// Check wildcard matches: "approvals:*" matches "approvals:decide:rbi",
	// "*" matches everything.
	for pattern := range cs {
		if matchWildcard(pattern, cap) {
			return true
		}
	}
	return false
}

// HasAll returns true if the set matches all given capabilities (including
// via wildcards).
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, cap := range caps {
		if !cs.Has(cap) {
			return false
		}
	}
	return true
}

// HasAny returns true if the set matches at least one of the given
// capabilities (including via wildcards).
func (cs CapabilitySet) HasAny(caps ...string) bool {
	for _, cap := range caps {
		if cs.Has(cap) {
			return true
		}
	}
	return false
}

// matchWildcard returns true if pattern (which may end in "*") matches cap.
// Examples:
//
//	"*"                 matches anything
//	"approvals:*"       matches "approvals:decide:inspector"
//	"escalations:*"     matches "escalations:resolve"
//	"approvals:decide"  does NOT match "approvals:decide:rbi" (exact only)
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	prefix := pattern[:len(pattern)-1] // "approvals:*" → "approvals:"
	return strings.HasPrefix(cap, prefix)
}

// CapabilityResolver resolves the full capability set for a request context.
type CapabilityResolver interface {
	// Resolve returns all capabilities for the given subject.
	Resolve(rctx *RequestContext) (CapabilitySet, error)

	// Invalidate clears cached capabilities for the given user.
	Invalidate(subjectID string)
}

// PolicyEvaluator is the backend implementation that resolves capabilities
// from roles and policy configuration.
type PolicyEvaluator interface {
	// ResolveCapabilities returns the full capability set for the given context.
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)

	// Evaluate checks a single capability with optional resource context for
	// fine-grained authorization (e.g. "can this user decide THIS stage?").
	Evaluate(rctx *RequestContext, capability string, resource map[string]any) (bool, error)

	// EvaluateAll checks multiple capabilities at once for batch optimization.
	EvaluateAll(rctx *RequestContext, capabilities []string, resource map[string]any) (map[string]bool, error)

	// Sync refreshes policy data from the external source.
	Sync() error
}
