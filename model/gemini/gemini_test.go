package gemini_test

import (
	"errors"
	"testing"

	"google.golang.org/genai"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/model"
	"github.com/tailored-agentic-units/switchboard/model/gemini"
)

func TestNew_MissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	_, err := gemini.New(&model.Config{Provider: gemini.Name})
	if !errors.Is(err, gemini.ErrMissingAPIKey) {
		t.Errorf("got %v, want ErrMissingAPIKey", err)
	}
}

func TestContents(t *testing.T) {
	msgs := []protocol.Message{
		protocol.NewMessage(protocol.RoleSystem, "be brief"),
		protocol.NewMessage(protocol.RoleUser, "hello"),
		protocol.NewMessage(protocol.RoleAssistant, "hi"),
		protocol.NewMessage(protocol.RoleSystem, "no emoji"),
		protocol.NewMessage(protocol.RoleUser, "how are you"),
	}

	system, contents := gemini.Contents(msgs)

	if system == nil || len(system.Parts) != 1 {
		t.Fatalf("expected a single-part system instruction, got %+v", system)
	}
	if system.Parts[0].Text != "be brief\n\nno emoji" {
		t.Errorf("system text = %q", system.Parts[0].Text)
	}

	wantRoles := []string{string(genai.RoleUser), string(genai.RoleModel), string(genai.RoleUser)}
	if len(contents) != len(wantRoles) {
		t.Fatalf("got %d contents, want %d", len(contents), len(wantRoles))
	}
	for i, role := range wantRoles {
		if contents[i].Role != role {
			t.Errorf("content %d role = %q, want %q", i, contents[i].Role, role)
		}
	}
}

func TestContents_NoSystem(t *testing.T) {
	system, contents := gemini.Contents([]protocol.Message{protocol.NewMessage(protocol.RoleUser, "hi")})
	if system != nil {
		t.Errorf("expected nil system instruction, got %+v", system)
	}
	if len(contents) != 1 {
		t.Errorf("got %d contents, want 1", len(contents))
	}
}
