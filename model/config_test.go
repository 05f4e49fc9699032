package model_test

import (
	"testing"

	"github.com/tailored-agentic-units/switchboard/model"
	"github.com/tailored-agentic-units/switchboard/session"
)

func TestDefaultConfig(t *testing.T) {
	cfg := model.DefaultConfig()

	if cfg.Provider != model.DefaultProvider {
		t.Errorf("provider = %q, want %q", cfg.Provider, model.DefaultProvider)
	}
	if cfg.Session.Caching.Mechanism != session.MechanismForgetful {
		t.Errorf("mechanism = %q", cfg.Session.Caching.Mechanism)
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Options = map[string]any{"prefix": "a", "delay": "1ms"}

	cfg.Merge(&model.Config{
		Provider: "gemini",
		Model:    "gemini-2.5-pro",
		Options:  map[string]any{"prefix": "b"},
		Session:  session.Config{Caching: session.CachingConfig{Limit: 10}},
	})

	if cfg.Provider != "gemini" || cfg.Model != "gemini-2.5-pro" {
		t.Errorf("provider/model not merged: %+v", cfg)
	}
	if cfg.Options["prefix"] != "b" || cfg.Options["delay"] != "1ms" {
		t.Errorf("options = %v", cfg.Options)
	}
	if cfg.Session.Caching.Limit != 10 || cfg.Session.Caching.Mechanism != session.MechanismForgetful {
		t.Errorf("session caching = %+v", cfg.Session.Caching)
	}
}

func TestOption(t *testing.T) {
	cfg := model.Config{Options: map[string]any{"s": "v", "n": 3}}

	if got := model.Option(&cfg, "s", "fallback"); got != "v" {
		t.Errorf("string option = %q", got)
	}
	if got := model.Option(&cfg, "n", "fallback"); got != "fallback" {
		t.Errorf("mistyped option should fall back, got %q", got)
	}
	if got := model.Option(&cfg, "missing", 7); got != 7 {
		t.Errorf("missing option = %d", got)
	}
}
