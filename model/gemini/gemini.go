// Package gemini provides a model provider backed by the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/model"
)

// Name is the registry name of the Gemini provider.
const Name = "gemini"

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// ErrMissingAPIKey is returned when neither the api_key option nor the
// GEMINI_API_KEY environment variable is set.
var ErrMissingAPIKey = errors.New("gemini API key is required")

func init() {
	if err := model.Register(Name, New); err != nil {
		panic(err)
	}
}

// Provider generates completions with the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

// New creates a Gemini provider. The API key is read from the api_key
// option, falling back to GEMINI_API_KEY.
func New(cfg *model.Config) (model.Provider, error) {
	apiKey := model.Option(cfg, "api_key", os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	name := cfg.Model
	if name == "" {
		name = DefaultModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Provider{client: client, model: name}, nil
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) Generate(ctx context.Context, msgs []protocol.Message) (string, error) {
	system, contents := Contents(msgs)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, generateConfig(system))
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	return resp.Text(), nil
}

func (p *Provider) GenerateStream(ctx context.Context, msgs []protocol.Message) (model.Fragments, error) {
	system, contents := Contents(msgs)
	stream := p.client.Models.GenerateContentStream(ctx, p.model, contents, generateConfig(system))

	return func(yield func(string, error) bool) {
		for resp, err := range stream {
			if err != nil {
				yield("", fmt.Errorf("gemini stream failed: %w", err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}, nil
}

// Contents converts memory into Gemini contents. System messages are
// joined into a single system instruction; assistant turns map to the model
// role.
func Contents(msgs []protocol.Message) (*genai.Content, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))

	for _, msg := range msgs {
		switch msg.Role {
		case protocol.RoleSystem:
			system = append(system, msg.Content)
		case protocol.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	if len(system) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser), contents
}

func generateConfig(system *genai.Content) *genai.GenerateContentConfig {
	if system == nil {
		return nil
	}
	return &genai.GenerateContentConfig{SystemInstruction: system}
}
