// Package mock provides scripted model sessions for tests.
//
// A Session streams a fixed list of fragments and can be told to fail at
// start, fail mid-stream, hold the stream open until cancelled, stall until
// released, or panic.
// A Builder hands out scripted sessions keyed by Config.Model and can fail
// a number of builds first.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/model"
)

// ErrScripted is the default error injected by failure options.
var ErrScripted = errors.New("mock: scripted failure")

type script struct {
	fragments []string
	startErr  error
	failAt    int
	failErr   error
	hold      bool
	stall     <-chan struct{}
	panics    bool
}

// Option configures a Session script.
type Option func(*script)

// WithFragments sets the streamed fragments.
func WithFragments(fragments ...string) Option {
	return func(s *script) { s.fragments = fragments }
}

// WithStartError makes Stream itself fail with err.
func WithStartError(err error) Option {
	return func(s *script) { s.startErr = err }
}

// WithFailAt yields err in place of fragment i.
func WithFailAt(i int, err error) Option {
	return func(s *script) {
		s.failAt = i
		s.failErr = err
	}
}

// WithHold keeps the stream open after the last fragment until the context
// is cancelled.
func WithHold() Option {
	return func(s *script) { s.hold = true }
}

// WithStall blocks the stream after the last fragment until release is
// closed, ignoring cancellation.
func WithStall(release <-chan struct{}) Option {
	return func(s *script) { s.stall = release }
}

// WithPanic makes Stream panic.
func WithPanic() Option {
	return func(s *script) { s.panics = true }
}

// Session is a scripted model.Session.
type Session struct {
	script script

	mu      sync.Mutex
	memory  []protocol.Message
	prompts []string
}

// New creates a Session that streams "ok" unless configured otherwise.
func New(opts ...Option) *Session {
	s := script{fragments: []string{"ok"}, failAt: -1}
	for _, opt := range opts {
		opt(&s)
	}
	return &Session{script: s}
}

func (s *Session) Complete(ctx context.Context, prompt string) (string, error) {
	fragments, err := s.Stream(ctx, prompt)
	if err != nil {
		return "", err
	}
	reply, err := model.Collect(fragments)
	if err != nil {
		return "", err
	}
	s.PushMemory(protocol.RoleAssistant, reply)
	return reply, nil
}

func (s *Session) Stream(ctx context.Context, prompt string) (model.Fragments, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.script.panics {
		panic("mock: scripted panic")
	}
	if s.script.startErr != nil {
		return nil, s.script.startErr
	}

	s.PushMemory(protocol.RoleUser, prompt)
	sc := s.script

	return func(yield func(string, error) bool) {
		for i, frag := range sc.fragments {
			if i == sc.failAt {
				yield("", sc.failErr)
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
		if sc.failAt >= len(sc.fragments) {
			yield("", sc.failErr)
			return
		}
		if sc.stall != nil {
			<-sc.stall
		}
		if sc.hold {
			<-ctx.Done()
			yield("", ctx.Err())
		}
	}, nil
}

func (s *Session) PushMemory(role protocol.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory = append(s.memory, protocol.NewMessage(role, content))
}

func (s *Session) Memory() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.memory...)
}

// Prompts returns the prompts passed to Stream or Complete, in order.
func (s *Session) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Builder builds scripted sessions. Scripts and build failures are keyed by
// Config.Model; unknown models get the default script.
type Builder struct {
	mu       sync.Mutex
	scripts  map[string][]Option
	failures map[string]int
	built    map[string][]*Session
	builds   int
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		scripts:  make(map[string][]Option),
		failures: make(map[string]int),
		built:    make(map[string][]*Session),
	}
}

// Script sets the options for sessions built for modelName.
func (b *Builder) Script(modelName string, opts ...Option) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts[modelName] = opts
	return b
}

// FailBuilds makes the next n builds for modelName fail. A negative n fails
// every build.
func (b *Builder) FailBuilds(modelName string, n int) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[modelName] = n
	return b
}

// Build satisfies model.Builder.
func (b *Builder) Build(cfg model.Config) (model.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.builds++

	if n := b.failures[cfg.Model]; n != 0 {
		if n > 0 {
			b.failures[cfg.Model] = n - 1
		}
		return nil, ErrScripted
	}

	s := New(b.scripts[cfg.Model]...)
	b.built[cfg.Model] = append(b.built[cfg.Model], s)
	return s, nil
}

// Builds reports the number of Build calls, including failures.
func (b *Builder) Builds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.builds
}

// Sessions returns the sessions built for modelName, oldest first.
func (b *Builder) Sessions(modelName string) []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Session(nil), b.built[modelName]...)
}

// Provider is a scripted model.Provider for exercising Conversation.
type Provider struct {
	Reply     string
	Fragments []string
	Err       error

	mu    sync.Mutex
	calls [][]protocol.Message
}

func (p *Provider) Name() string {
	return "mock"
}

func (p *Provider) Generate(_ context.Context, msgs []protocol.Message) (string, error) {
	p.record(msgs)
	if p.Err != nil {
		return "", p.Err
	}
	return p.Reply, nil
}

func (p *Provider) GenerateStream(_ context.Context, msgs []protocol.Message) (model.Fragments, error) {
	p.record(msgs)
	if p.Err != nil {
		return nil, p.Err
	}
	fragments := p.Fragments
	return func(yield func(string, error) bool) {
		for _, f := range fragments {
			if !yield(f, nil) {
				return
			}
		}
	}, nil
}

// Calls returns the message histories the provider was called with.
func (p *Provider) Calls() [][]protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]protocol.Message(nil), p.calls...)
}

func (p *Provider) record(msgs []protocol.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]protocol.Message(nil), msgs...))
}
