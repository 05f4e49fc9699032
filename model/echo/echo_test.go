package echo_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/model"
	"github.com/tailored-agentic-units/switchboard/model/echo"
)

func TestRegistered(t *testing.T) {
	if !slices.Contains(model.Providers(), echo.Name) {
		t.Fatalf("echo not in default registry: %v", model.Providers())
	}
}

func TestProvider_Stream(t *testing.T) {
	p, err := echo.New(&model.Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	msgs := []protocol.Message{
		protocol.NewMessage(protocol.RoleSystem, "sys"),
		protocol.NewMessage(protocol.RoleUser, "hello there"),
	}

	fragments, err := p.GenerateStream(context.Background(), msgs)
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}

	var got []string
	for frag, err := range fragments {
		if err != nil {
			t.Fatalf("fragment error: %v", err)
		}
		got = append(got, frag)
	}

	want := []string{"You ", "said: ", "hello ", "there"}
	if !slices.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}

	full, _ := p.Generate(context.Background(), msgs)
	if full != "You said: hello there" {
		t.Errorf("Generate = %q", full)
	}
}

func TestProvider_Options(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
		wantErr bool
	}{
		{name: "prefix", options: map[string]any{"prefix": "> "}},
		{name: "delay", options: map[string]any{"delay": "1ms"}},
		{name: "bad delay", options: map[string]any{"delay": "soon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := echo.New(&model.Config{Options: tt.options})
			if (err != nil) != tt.wantErr {
				t.Errorf("New error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProvider_StreamCancelled(t *testing.T) {
	p, _ := echo.New(&model.Config{Options: map[string]any{"delay": "1h"}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	fragments, _ := p.GenerateStream(ctx, []protocol.Message{protocol.NewMessage(protocol.RoleUser, "hi")})
	_, err := model.Collect(fragments)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want context.DeadlineExceeded", err)
	}
}
