package auth

import (
	"testing"

	"github.com/SkynetNext/serverinfo-rest/internal/config"
	"github.com/SkynetNext/serverinfo-rest/internal/protocol"
)

func TestGate_Disabled(t *testing.T) {
	g := NewGate(config.AuthConfig{Enabled: false, Token: "S"})

	for _, query := range []string{"", "token=", "token=wrong", "token=S"} {
		resp := protocol.NewResponse()
		if !g.Check(&protocol.Request{Path: "/x", Query: query}, resp) {
			t.Errorf("Expected request with query %q to pass when auth is disabled", query)
		}
		if resp.StatusCode != 200 {
			t.Errorf("Expected untouched response, got %d", resp.StatusCode)
		}
	}
}

func TestGate_Enabled(t *testing.T) {
	g := NewGate(config.AuthConfig{Enabled: true, Token: "S"})

	tests := []struct {
		query    string
		wantPass bool
		wantCode int
	}{
		{"token=S", true, 200},
		{"name=Alice&token=S", true, 200},
		{"", false, 401},
		{"token=", false, 401},
		{"token", false, 401},
		{"token=wrong", false, 403},
		{"token=s", false, 403},
		{"token=S%20", false, 403},
	}

	for _, tt := range tests {
		resp := protocol.NewResponse()
		pass := g.Check(&protocol.Request{Path: "/x", Query: tt.query}, resp)
		if pass != tt.wantPass {
			t.Errorf("query %q: expected pass=%v, got %v", tt.query, tt.wantPass, pass)
		}
		if resp.StatusCode != tt.wantCode {
			t.Errorf("query %q: expected status %d, got %d", tt.query, tt.wantCode, resp.StatusCode)
		}
	}
}

func TestGate_Wrap(t *testing.T) {
	g := NewGate(config.AuthConfig{Enabled: true, Token: "S"})
	called := false
	h := g.Wrap(func(_ *protocol.Request, _ *protocol.Response) error {
		called = true
		return nil
	})

	resp := protocol.NewResponse()
	if err := h(&protocol.Request{Query: "token=wrong"}, resp); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if called {
		t.Error("Expected handler not to run for a rejected request")
	}
	if resp.StatusCode != 403 {
		t.Errorf("Expected 403, got %d", resp.StatusCode)
	}

	if err := h(&protocol.Request{Query: "token=S"}, protocol.NewResponse()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !called {
		t.Error("Expected handler to run for an authorized request")
	}
}
