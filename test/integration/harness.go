// Package integration provides a reusable test harness for end-to-end
// testing of the approvald server. It starts a full HTTP server over an
// in-memory store, with a capture sink for integration events and a test
// JWT issuer serving its own JWKS endpoint.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fieldscope/approvald/internal/capability"
	"github.com/fieldscope/approvald/internal/config"
	"github.com/fieldscope/approvald/internal/coordinator"
	"github.com/fieldscope/approvald/internal/escalation"
	"github.com/fieldscope/approvald/internal/notify"
	"github.com/fieldscope/approvald/internal/observability"
	"github.com/fieldscope/approvald/internal/store"
	"github.com/fieldscope/approvald/internal/transport"
	"github.com/fieldscope/approvald/model"
)

// TestHarness encapsulates a fully wired approvald instance for
// integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Store       *store.MemoryStore
	Sink        *notify.CaptureSink
	Engine      *escalation.Engine
	Coordinator *coordinator.Coordinator
	CapResolver model.CapabilityResolver

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	policyFile       string
	escalationPolicy escalation.Policy
	handlerTimeout   time.Duration
}

// WithPolicyFile sets the static policy YAML file for capability resolution.
func WithPolicyFile(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.policyFile = path
	}
}

// WithEscalationPolicy overrides the overdue-day thresholds.
func WithEscalationPolicy(level2AfterDays, level3AfterDays int) HarnessOption {
	return func(c *harnessConfig) {
		c.escalationPolicy = escalation.Policy{
			Level2AfterDays: level2AfterDays,
			Level3AfterDays: level3AfterDays,
		}
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// NewTestHarness creates and starts a full approvald test instance. The
// server is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		escalationPolicy: escalation.Policy{Level2AfterDays: 7, Level3AfterDays: 14},
		handlerTimeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}
	if hc.policyFile == "" {
		hc.policyFile = filepath.Join(testdataDir(), "policies.yaml")
	}

	h := &TestHarness{t: t}

	// Step 1: Capability resolver from the static policy file.
	evaluator, err := capability.NewStaticPolicyEvaluator(hc.policyFile)
	if err != nil {
		t.Fatalf("load policy file: %v", err)
	}
	h.CapResolver = capability.NewResolver(evaluator, 0) // no caching in tests

	// Step 2: In-memory store, capture sink, engine, coordinator.
	h.Store = store.NewMemoryStore()
	h.Sink = notify.NewCaptureSink()
	h.Engine = escalation.NewEngine(h.Store, hc.escalationPolicy)
	h.Coordinator = coordinator.New(h.Store, h.Engine, h.CapResolver, h.Sink, zap.NewNop())

	// Step 3: JWT issuer.
	h.issuer = newTokenIssuer(t)

	// Step 4: Config.
	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	h.cfg.Identity.Issuer = h.issuer.Issuer()
	h.cfg.Identity.Audience = h.issuer.Audience()
	h.cfg.Identity.JWKSURL = h.issuer.JWKSURL()
	h.cfg.Observability.Metrics.Enabled = false

	// Step 5: Router with the full middleware chain.
	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), 1*time.Hour)

	router := transport.NewRouter(transport.Dependencies{
		Config:             h.cfg,
		Coordinator:        h.Coordinator,
		Authenticate:       transport.JWTAuthenticator(h.cfg.Identity, jwks),
		CapabilityResolver: h.CapResolver,
		Readiness: observability.ReadinessChecks{
			PolicyLoaded: func() bool { return true },
		},
	})

	// Step 6: Start the test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token)
}

func (h *TestHarness) doRequest(method, path string, body any, token string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ParseError reads an error response and returns the decoded envelope.
func (h *TestHarness) ParseError(resp *http.Response) model.ErrorEnvelope {
	h.t.Helper()
	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.ParseJSON(resp, &body)
	return body.Error
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// --- Default test claims ---

// InspectorClaims returns TestClaims for an inspector user.
func InspectorClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-inspector",
		Email:     "inspector@fieldscope.example.com",
		Roles:     []string{"inspector"},
	}
}

// EngineerClaims returns TestClaims for an engineer user.
func EngineerClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-engineer",
		Email:     "engineer@fieldscope.example.com",
		Roles:     []string{"engineer"},
	}
}

// RBIAuditorClaims returns TestClaims for an rbi_auditor user.
func RBIAuditorClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-rbi",
		Email:     "rbi@fieldscope.example.com",
		Roles:     []string{"rbi_auditor"},
	}
}

// TeamLeaderClaims returns TestClaims for a team_leader user.
func TeamLeaderClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-team-leader",
		Email:     "lead@fieldscope.example.com",
		Roles:     []string{"team_leader"},
	}
}

// --- Helpers ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
