// Package echo provides an offline provider that replies with the latest
// user message. It streams the reply one word at a time.
package echo

import (
	"context"
	"strings"
	"time"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/model"
)

// Name is the registry name of the echo provider.
const Name = "echo"

const defaultPrefix = "You said: "

func init() {
	if err := model.Register(Name, New); err != nil {
		panic(err)
	}
}

// Provider echoes the last user message. Options:
//
//	prefix  string  prepended to the reply (default "You said: ")
//	delay   string  pause between streamed words, as a duration ("50ms")
type Provider struct {
	prefix string
	delay  time.Duration
}

// New creates an echo Provider from cfg.Options.
func New(cfg *model.Config) (model.Provider, error) {
	p := &Provider{prefix: model.Option(cfg, "prefix", defaultPrefix)}

	if raw := model.Option(cfg, "delay", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, err
		}
		p.delay = d
	}
	return p, nil
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) Generate(ctx context.Context, msgs []protocol.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.reply(msgs), nil
}

// GenerateStream yields the reply split into words, each followed by its
// trailing space, so the concatenation equals Generate's result.
func (p *Provider) GenerateStream(ctx context.Context, msgs []protocol.Message) (model.Fragments, error) {
	reply := p.reply(msgs)

	return func(yield func(string, error) bool) {
		for _, word := range strings.SplitAfter(reply, " ") {
			if word == "" {
				continue
			}
			if p.delay > 0 {
				select {
				case <-time.After(p.delay):
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				}
			}
			if !yield(word, nil) {
				return
			}
		}
	}, nil
}

func (p *Provider) reply(msgs []protocol.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == protocol.RoleUser {
			return p.prefix + msgs[i].Content
		}
	}
	return p.prefix
}
