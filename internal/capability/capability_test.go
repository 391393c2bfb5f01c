package capability

import (
	"testing"
	"time"

	"github.com/fieldscope/approvald/model"
)

func testRctx(roles ...string) *model.RequestContext {
	return &model.RequestContext{
		SubjectID: "user-1",
		Roles:     roles,
	}
}

// --- StaticPolicyEvaluator tests ---

func TestStaticPolicyEvaluator_ResolveCapabilities(t *testing.T) {
	e, err := NewStaticPolicyEvaluator("testdata/policies.yaml")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator() error = %v", err)
	}

	caps, err := e.ResolveCapabilities(testRctx("inspector"))
	if err != nil {
		t.Fatalf("ResolveCapabilities() error = %v", err)
	}

	if !caps.Has("approvals:decide:inspector") {
		t.Error("inspector should have approvals:decide:inspector")
	}
	if caps.Has("approvals:decide:engineer") {
		t.Error("inspector should not have approvals:decide:engineer")
	}
}

func TestStaticPolicyEvaluator_MultipleRoles(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator("testdata/policies.yaml")
	caps, _ := e.ResolveCapabilities(testRctx("inspector", "engineer"))

	if !caps.Has("approvals:decide:engineer") {
		t.Error("engineer role should add approvals:decide:engineer")
	}
	if !caps.Has("approvals:decide:inspector") {
		t.Error("combined roles should keep approvals:decide:inspector")
	}
}

func TestStaticPolicyEvaluator_Wildcard(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator("testdata/policies.yaml")
	caps, _ := e.ResolveCapabilities(testRctx("admin"))

	if !caps.Has("approvals:decide:team_leader") {
		t.Error("admin with approvals:* should match any approvals: capability")
	}
	if !caps.Has("escalations:resolve") {
		t.Error("admin with escalations:* should match escalations:resolve")
	}
}

func TestStaticPolicyEvaluator_UnknownRole(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator("testdata/policies.yaml")
	caps, _ := e.ResolveCapabilities(testRctx("nonexistent"))

	if len(caps) != 0 {
		t.Errorf("unknown role should return empty capabilities, got %v", caps)
	}
}

func TestStaticPolicyEvaluator_Evaluate(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator("testdata/policies.yaml")
	ok, err := e.Evaluate(testRctx("inspector"), "approvals:decide:inspector", nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok {
		t.Error("Evaluate(approvals:decide:inspector) = false, want true")
	}

	ok, _ = e.Evaluate(testRctx("inspector"), "approvals:cancel", nil)
	if ok {
		t.Error("Evaluate(approvals:cancel) = true, want false for inspector")
	}
}

func TestStaticPolicyEvaluator_EvaluateAll(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator("testdata/policies.yaml")
	result, err := e.EvaluateAll(testRctx("inspector"),
		[]string{"approvals:decide:inspector", "approvals:cancel"}, nil)
	if err != nil {
		t.Fatalf("EvaluateAll() error = %v", err)
	}
	if !result["approvals:decide:inspector"] {
		t.Error("EvaluateAll: approvals:decide:inspector should be true")
	}
	if result["approvals:cancel"] {
		t.Error("EvaluateAll: approvals:cancel should be false for inspector")
	}
}

func TestStaticPolicyEvaluator_BadFile(t *testing.T) {
	_, err := NewStaticPolicyEvaluator("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("expected error for missing policy file")
	}
}

// --- Resolver tests ---

func TestResolver_Resolve_and_Cache(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator("testdata/policies.yaml")
	r := NewResolver(e, 5*time.Minute)

	rctx := testRctx("inspector")

	// First call, cache miss.
	caps1, err := r.Resolve(rctx)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !caps1.Has("approvals:decide:inspector") {
		t.Error("should have approvals:decide:inspector")
	}

	// Second call, cache hit (same result).
	caps2, err := r.Resolve(rctx)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !caps2.Has("approvals:decide:inspector") {
		t.Error("cached result should have approvals:decide:inspector")
	}
}

func TestResolver_Invalidate(t *testing.T) {
	callCount := 0
	mock := &mockEvaluator{
		resolveFunc: func(rctx *model.RequestContext) (model.CapabilitySet, error) {
			callCount++
			return model.CapabilitySet{"approvals:view": true}, nil
		},
	}
	r := NewResolver(mock, 5*time.Minute)
	rctx := testRctx()

	r.Resolve(rctx)
	if callCount != 1 {
		t.Fatalf("callCount = %d, want 1", callCount)
	}

	r.Resolve(rctx)
	if callCount != 1 {
		t.Fatalf("callCount = %d after cache hit, want 1", callCount)
	}

	r.Invalidate("user-1")

	r.Resolve(rctx)
	if callCount != 2 {
		t.Fatalf("callCount = %d after invalidate, want 2", callCount)
	}
}

func TestResolver_TTLExpiry(t *testing.T) {
	callCount := 0
	mock := &mockEvaluator{
		resolveFunc: func(rctx *model.RequestContext) (model.CapabilitySet, error) {
			callCount++
			return model.CapabilitySet{"approvals:view": true}, nil
		},
	}
	r := NewResolver(mock, 1*time.Millisecond) // very short TTL
	rctx := testRctx()

	r.Resolve(rctx)
	time.Sleep(5 * time.Millisecond)
	r.Resolve(rctx) // should be expired

	if callCount != 2 {
		t.Fatalf("callCount = %d, want 2 (TTL expired)", callCount)
	}
}

// --- Mock PolicyEvaluator ---

type mockEvaluator struct {
	resolveFunc func(rctx *model.RequestContext) (model.CapabilitySet, error)
}

func (m *mockEvaluator) ResolveCapabilities(rctx *model.RequestContext) (model.CapabilitySet, error) {
	return m.resolveFunc(rctx)
}

func (m *mockEvaluator) Evaluate(*model.RequestContext, string, map[string]any) (bool, error) {
	return false, nil
}

func (m *mockEvaluator) EvaluateAll(*model.RequestContext, []string, map[string]any) (map[string]bool, error) {
	return nil, nil
}

func (m *mockEvaluator) Sync() error { return nil }
