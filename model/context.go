package model

import (
	"context"
	"fmt"
	"slices"
)

// RequestContext is the identity attached to one authenticated request: the
// reviewer resolved from token claims plus the correlation and trace IDs the
// request arrived with. The transport middleware builds it once per request
// and nothing mutates it afterwards, so concurrent reads are safe.
type RequestContext struct {
	SubjectID     string
	Email         string
	Roles         []string
	Claims        map[string]any
	CorrelationID string
	TraceID       string
	SpanID        string
	Locale        string
	Timezone      string
}

// Validate reports whether the context identifies a subject. Capability
// resolution and audit attribution both key off SubjectID, so a context
// without one cannot be used for any operation.
func (rc *RequestContext) Validate() error {
	if rc.SubjectID == "" {
		return fmt.Errorf("request context: subject id is empty")
	}
	return nil
}

// HasRole reports whether the reviewer carries the given role.
func (rc *RequestContext) HasRole(role string) bool {
	return slices.Contains(rc.Roles, role)
}

// Claim returns the raw token claim for key, or nil when absent. Use this
// for provider-specific claims that have no dedicated field, such as
// department or site attributes.
func (rc *RequestContext) Claim(key string) any {
	return rc.Claims[key]
}

type requestContextKey struct{}

// WithRequestContext returns a child context carrying rctx.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rctx)
}

// RequestContextFrom returns the RequestContext carried by ctx, or nil when
// the request never passed through the identity middleware.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rctx
}

// MustRequestContext is RequestContextFrom for call sites that only run
// behind the authentication middleware, where a missing context is a wiring
// bug rather than an unauthenticated caller.
func MustRequestContext(ctx context.Context) *RequestContext {
	rctx := RequestContextFrom(ctx)
	if rctx == nil {
		panic("model: request context missing")
	}
	return rctx
}
