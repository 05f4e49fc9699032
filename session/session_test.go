package session_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/session"
)

func TestNewMemorySession(t *testing.T) {
	s := session.NewMemorySession()

	if s.ID() == "" {
		t.Error("session ID should not be empty")
	}
	if len(s.Messages()) != 0 {
		t.Errorf("new session should have 0 messages, got %d", len(s.Messages()))
	}
}

func TestSession_ID_Unique(t *testing.T) {
	s1 := session.NewMemorySession()
	s2 := session.NewMemorySession()

	if s1.ID() == s2.ID() {
		t.Errorf("two sessions should have different IDs, both got %q", s1.ID())
	}
}

func TestSession_Messages_Order(t *testing.T) {
	s := session.NewMemorySession()

	roles := []protocol.Role{
		protocol.RoleSystem,
		protocol.RoleUser,
		protocol.RoleAssistant,
	}
	for _, role := range roles {
		s.AddMessage(protocol.NewMessage(role, string(role)))
	}

	msgs := s.Messages()
	if len(msgs) != len(roles) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(roles))
	}
	for i, msg := range msgs {
		if msg.Role != roles[i] {
			t.Errorf("message %d: got role %q, want %q", i, msg.Role, roles[i])
		}
	}
}

func TestSession_Messages_DefensiveCopy(t *testing.T) {
	s := session.NewMemorySession()
	s.AddMessage(protocol.NewMessage(protocol.RoleUser, "hello"))
	s.AddMessage(protocol.NewMessage(protocol.RoleAssistant, "hi"))

	msgs := s.Messages()
	msgs[0] = protocol.NewMessage(protocol.RoleSystem, "tampered")

	original := s.Messages()
	if original[0].Role != protocol.RoleUser {
		t.Errorf("first message role was mutated: got %q, want %q", original[0].Role, protocol.RoleUser)
	}
}

func TestSession_InitPrompt_Pinned(t *testing.T) {
	cfg := session.Config{
		InitPrompt: protocol.InitMessages(protocol.RoleSystem, "You are terse."),
		Caching:    session.CachingConfig{Mechanism: session.MechanismForgetful, Limit: 2},
	}
	s, err := session.New(&cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := range 5 {
		s.AddMessage(protocol.NewMessage(protocol.RoleUser, fmt.Sprintf("m%d", i)))
	}

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3 (init prompt + limit)", len(msgs))
	}
	if msgs[0].Content != "You are terse." {
		t.Errorf("init prompt evicted: first message %q", msgs[0].Content)
	}
	if msgs[1].Content != "m3" || msgs[2].Content != "m4" {
		t.Errorf("forgetful kept wrong messages: %+v", msgs[1:])
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

func TestSession_Clear_KeepsInitPrompt(t *testing.T) {
	cfg := session.Config{InitPrompt: protocol.InitMessages(protocol.RoleSystem, "sys")}
	s, err := session.New(&cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.AddMessage(protocol.NewMessage(protocol.RoleUser, "hello"))

	s.Clear()

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Content != "sys" {
		t.Errorf("after Clear got %+v, want only init prompt", msgs)
	}
}

func TestSession_Overflow_And_Fold(t *testing.T) {
	cfg := session.Config{Caching: session.CachingConfig{Mechanism: session.MechanismSummarize, Limit: 4}}
	s, err := session.New(&cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := range 4 {
		s.AddMessage(protocol.NewMessage(protocol.RoleUser, fmt.Sprintf("m%d", i)))
	}
	if got := s.Overflow(); len(got) != 0 {
		t.Fatalf("history at limit should not overflow, got %d", len(got))
	}

	s.AddMessage(protocol.NewMessage(protocol.RoleUser, "m4"))
	overflow := s.Overflow()
	if len(overflow) != 3 {
		t.Fatalf("got %d overflow messages, want 3 (fold down to half the limit)", len(overflow))
	}
	if overflow[0].Content != "m0" {
		t.Errorf("overflow should start with oldest message, got %q", overflow[0].Content)
	}

	s.Fold(len(overflow), protocol.NewMessage(protocol.RoleSystem, "summary"))

	msgs := s.Messages()
	want := []string{"summary", "m3", "m4"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages after fold, want %d", len(msgs), len(want))
	}
	for i, content := range want {
		if msgs[i].Content != content {
			t.Errorf("message %d = %q, want %q", i, msgs[i].Content, content)
		}
	}
	if len(s.Overflow()) != 0 {
		t.Error("folded history should be within limit")
	}
}

func TestSession_Forgetful_NeverOverflows(t *testing.T) {
	cfg := session.Config{Caching: session.CachingConfig{Mechanism: session.MechanismForgetful, Limit: 1}}
	s, _ := session.New(&cfg)
	s.AddMessage(protocol.NewMessage(protocol.RoleUser, "a"))
	s.AddMessage(protocol.NewMessage(protocol.RoleUser, "b"))

	if len(s.Overflow()) != 0 {
		t.Error("forgetful sessions evict instead of overflowing")
	}
}

func TestSession_Concurrent_AddAndRead(t *testing.T) {
	s := session.NewMemorySession()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(2 * n)
	for range n {
		go func() {
			defer wg.Done()
			s.AddMessage(protocol.NewMessage(protocol.RoleUser, "msg"))
		}()
		go func() {
			defer wg.Done()
			_ = s.Messages()
		}()
	}
	wg.Wait()

	if s.Len() != n {
		t.Errorf("got %d messages, want %d", s.Len(), n)
	}
}
