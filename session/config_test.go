package session_test

import (
	"testing"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/session"
)

func TestDefaultConfig(t *testing.T) {
	cfg := session.DefaultConfig()

	if cfg.Caching.Mechanism != session.MechanismForgetful {
		t.Errorf("got mechanism %q, want %q", cfg.Caching.Mechanism, session.MechanismForgetful)
	}
	if cfg.Caching.Limit <= 0 {
		t.Errorf("default limit should be positive, got %d", cfg.Caching.Limit)
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := session.DefaultConfig()
	source := session.Config{
		InitPrompt: protocol.InitMessages(protocol.RoleSystem, "sys"),
		Caching:    session.CachingConfig{Mechanism: session.MechanismSummarize},
	}

	cfg.Merge(&source)

	if cfg.Caching.Mechanism != session.MechanismSummarize {
		t.Errorf("mechanism not merged: %q", cfg.Caching.Mechanism)
	}
	if cfg.Caching.Limit != session.DefaultConfig().Caching.Limit {
		t.Errorf("zero limit should not override default, got %d", cfg.Caching.Limit)
	}
	if len(cfg.InitPrompt) != 1 {
		t.Errorf("init prompt not merged")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     session.Config
		wantErr bool
	}{
		{name: "empty uses defaults", cfg: session.Config{}},
		{name: "none", cfg: session.Config{Caching: session.CachingConfig{Mechanism: session.MechanismNone}}},
		{name: "unknown mechanism", cfg: session.Config{Caching: session.CachingConfig{Mechanism: "lru"}}, wantErr: true},
		{name: "summarize limit too small", cfg: session.Config{Caching: session.CachingConfig{Mechanism: session.MechanismSummarize, Limit: 1}}, wantErr: true},
		{
			name:    "bad init prompt role",
			cfg:     session.Config{InitPrompt: []protocol.Message{{Role: "tool", Content: "x"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := session.New(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s.ID() == "" {
				t.Error("session ID is empty")
			}
		})
	}
}
