package backend_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/switchboard/backend"
	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/dispatch"
	"github.com/tailored-agentic-units/switchboard/model/mock"
	"github.com/tailored-agentic-units/switchboard/observability"
	"github.com/tailored-agentic-units/switchboard/relay"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *backend.Config {
	cfg := backend.DefaultConfig()
	cfg.Dispatch.PollInterval = 5 * time.Millisecond
	return &cfg
}

func run(t *testing.T, b *backend.Backend) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func receive(t *testing.T, sub *relay.Subscription) relay.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "subscription closed: %v", sub.Err())
		return msg
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for outbound message")
		return nil
	}
}

func TestBackend_EchoConversation(t *testing.T) {
	b, err := backend.New(testConfig(), backend.WithLogger(quietLogger()))
	require.NoError(t, err)

	sub := b.Subscribe()
	defer sub.Close()
	run(t, b)

	assert.Equal(t, relay.Message(relay.SessionCreated{SessionName: "Chat Agent"}), receive(t, sub))
	assert.Equal(t, relay.Message(relay.SessionCreated{SessionName: "Long Term Agent"}), receive(t, sub))

	require.NoError(t, b.TrySend(dispatch.StartStreamedCompletion{
		SessionName:  "Chat Agent",
		Prompt:       "hello",
		CompletionID: "c1",
	}))

	var tokens []string
	for {
		msg := receive(t, sub)
		if done, ok := msg.(relay.StreamDone); ok {
			assert.Equal(t, len(tokens), done.Tokens)
			break
		}
		tok, ok := msg.(relay.StreamToken)
		require.True(t, ok, "unexpected message %#v", msg)
		assert.Equal(t, len(tokens), tok.Seq)
		tokens = append(tokens, tok.Token)
	}
	assert.Equal(t, []string{"You ", "said: ", "hello"}, tokens)

	mem, err := b.Memory(context.Background(), "Chat Agent")
	require.NoError(t, err)
	assert.Equal(t, []protocol.Message{
		protocol.NewMessage(protocol.RoleUser, "hello"),
		protocol.NewMessage(protocol.RoleAssistant, "You said: hello"),
	}, mem)

	infos, err := b.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.True(t, infos[0].Live)
}

func TestBackend_LongTermAgentKeepsInitPrompt(t *testing.T) {
	b, err := backend.New(testConfig(), backend.WithLogger(quietLogger()))
	require.NoError(t, err)

	sub := b.Subscribe("Long Term Agent")
	defer sub.Close()
	run(t, b)

	receive(t, sub)
	require.NoError(t, b.TrySend(dispatch.StartStreamedCompletion{SessionName: "Long Term Agent", Prompt: "hi"}))
	for {
		if _, ok := receive(t, sub).(relay.StreamDone); ok {
			break
		}
	}

	mem, err := b.Memory(context.Background(), "Long Term Agent")
	require.NoError(t, err)
	require.Len(t, mem, 3)
	assert.Equal(t, protocol.RoleSystem, mem[0].Role)
}

func TestBackend_WithBuilderAndObserver(t *testing.T) {
	builder := mock.NewBuilder().Script("", mock.WithFragments("a", "b"))
	rec := observability.NewRecorder()

	cfg := testConfig()
	cfg.Sessions = []backend.SessionSpec{{Name: "only"}}

	b, err := backend.New(cfg,
		backend.WithLogger(quietLogger()),
		backend.WithBuilder(builder.Build),
		backend.WithObserver(rec),
	)
	require.NoError(t, err)

	sub := b.Subscribe()
	defer sub.Close()
	run(t, b)

	receive(t, sub)
	require.NoError(t, b.TrySend(dispatch.StartStreamedCompletion{SessionName: "only", Prompt: "x"}))
	receive(t, sub)
	receive(t, sub)
	_, ok := receive(t, sub).(relay.StreamDone)
	assert.True(t, ok)

	assert.Equal(t, 1, builder.Builds())
	assert.Positive(t, rec.Count(dispatch.EventWorkerStarted))
	assert.GreaterOrEqual(t, b.Metrics().Sent, int64(4))
}

func TestBackend_CommandFailuresAreReported(t *testing.T) {
	rec := observability.NewRecorder()
	b, err := backend.New(testConfig(), backend.WithLogger(quietLogger()), backend.WithObserver(rec))
	require.NoError(t, err)
	run(t, b)

	require.NoError(t, b.TrySend(dispatch.StartStreamedCompletion{SessionName: "Ghost", Prompt: "boo"}))

	require.Eventually(t, func() bool {
		return rec.Count(dispatch.EventCommandFailed) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNew_Errors(t *testing.T) {
	t.Run("unknown observer", func(t *testing.T) {
		cfg := testConfig()
		cfg.Observer = "carrier-pigeon"
		_, err := backend.New(cfg)
		assert.Error(t, err)
	})

	t.Run("duplicate sessions", func(t *testing.T) {
		cfg := testConfig()
		cfg.Sessions = []backend.SessionSpec{{Name: "a"}, {Name: "a"}}
		_, err := backend.New(cfg)
		assert.ErrorIs(t, err, dispatch.ErrSessionExists)
	})
}
