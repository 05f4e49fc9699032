package relay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/tailored-agentic-units/switchboard/core/channel"
	"github.com/tailored-agentic-units/switchboard/observability"
	"github.com/tailored-agentic-units/switchboard/relay"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func token(session string, seq int, text string) relay.StreamToken {
	return relay.StreamToken{SessionName: session, CompletionID: "c1", Seq: seq, Token: text}
}

func TestRelay_PreservesOrder(t *testing.T) {
	tx, rx := relay.New(relay.Config{})
	ctx := context.Background()

	sent := []relay.Message{
		token("a", 0, "Hel"),
		token("a", 1, "lo"),
		relay.StreamDone{SessionName: "a", CompletionID: "c1", Tokens: 2},
	}
	for _, msg := range sent {
		if err := tx.Send(ctx, msg); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	var got []relay.Message
	for range sent {
		msg, ok := rx.TryReceive()
		if !ok {
			t.Fatal("TryReceive returned nothing")
		}
		got = append(got, msg)
	}

	if diff := cmp.Diff(sent, got); diff != "" {
		t.Errorf("messages differ (-sent +got):\n%s", diff)
	}
	if _, ok := rx.TryReceive(); ok {
		t.Error("relay should be empty")
	}

	snap := rx.Metrics()
	if snap.Sent != 3 || snap.Received != 3 || snap.Dropped != 0 {
		t.Errorf("metrics = %+v", snap)
	}
}

func TestRelay_TokenDroppedAfterTimeout(t *testing.T) {
	rec := observability.NewRecorder()
	tx, rx := relay.New(relay.Config{BufferSize: 1, TokenTimeout: 10 * time.Millisecond}, relay.WithObserver(rec))
	ctx := context.Background()

	if err := tx.Send(ctx, token("a", 0, "x")); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}

	err := tx.Send(ctx, token("a", 1, "y"))
	if !errors.Is(err, relay.ErrDropped) {
		t.Fatalf("got %v, want ErrDropped", err)
	}

	if got := tx.Metrics().Dropped; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
	events := rec.OfType(relay.EventTokenDropped)
	if len(events) != 1 || events[0].Session != "a" {
		t.Errorf("drop events = %+v", events)
	}
	if rx.Len() != 1 {
		t.Errorf("buffer len = %d, want 1", rx.Len())
	}
}

func TestRelay_CriticalBlocksUntilDelivered(t *testing.T) {
	tx, rx := relay.New(relay.Config{BufferSize: 1, TokenTimeout: time.Millisecond})
	ctx := context.Background()

	_ = tx.Send(ctx, token("a", 0, "x"))

	done := make(chan error, 1)
	go func() {
		done <- tx.Send(ctx, relay.StreamDone{SessionName: "a", CompletionID: "c1", Tokens: 1})
	}()

	select {
	case err := <-done:
		t.Fatalf("critical send returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := rx.Receive(ctx); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("critical send failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("critical send never completed")
	}

	msg, _ := rx.Receive(ctx)
	if msg.Kind() != relay.KindStreamDone {
		t.Errorf("got %s, want %s", msg.Kind(), relay.KindStreamDone)
	}
}

func TestRelay_CriticalHonorsContext(t *testing.T) {
	tx, _ := relay.New(relay.Config{BufferSize: 1})
	_ = tx.Send(context.Background(), relay.SessionCreated{SessionName: "a"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := tx.Send(ctx, relay.SessionCreated{SessionName: "b"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want DeadlineExceeded", err)
	}
}

func TestRelay_ClosedReceiver(t *testing.T) {
	tx, rx := relay.New(relay.Config{BufferSize: 1})
	clone := tx.Clone()

	_ = tx.Send(context.Background(), relay.SessionCreated{SessionName: "a"})

	blocked := make(chan error, 1)
	go func() {
		blocked <- clone.Send(context.Background(), relay.SessionCreated{SessionName: "b"})
	}()

	time.Sleep(10 * time.Millisecond)
	rx.Close()

	if err := <-blocked; !errors.Is(err, channel.ErrClosed) {
		t.Errorf("blocked send: got %v, want ErrClosed", err)
	}
	if err := tx.Send(context.Background(), token("a", 0, "x")); !errors.Is(err, channel.ErrClosed) {
		t.Errorf("send after close: got %v, want ErrClosed", err)
	}
	if _, err := rx.Receive(context.Background()); !errors.Is(err, channel.ErrClosed) {
		t.Errorf("receive after close: got %v, want ErrClosed", err)
	}
}

func TestMessage_Critical(t *testing.T) {
	tests := []struct {
		msg      relay.Message
		kind     relay.Kind
		critical bool
	}{
		{relay.StreamToken{SessionName: "s"}, relay.KindStreamToken, false},
		{relay.StreamDone{SessionName: "s"}, relay.KindStreamDone, true},
		{relay.StreamFailed{SessionName: "s"}, relay.KindStreamFailed, true},
		{relay.SessionCreated{SessionName: "s"}, relay.KindSessionCreated, true},
		{relay.SessionClosed{SessionName: "s"}, relay.KindSessionClosed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if tt.msg.Kind() != tt.kind {
				t.Errorf("Kind = %s, want %s", tt.msg.Kind(), tt.kind)
			}
			if tt.msg.Critical() != tt.critical {
				t.Errorf("Critical = %v, want %v", tt.msg.Critical(), tt.critical)
			}
			if tt.msg.Session() != "s" {
				t.Errorf("Session = %q", tt.msg.Session())
			}
		})
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := relay.DefaultConfig()
	cfg.Merge(&relay.Config{TokenTimeout: -1, SubscriberBuffer: 8})

	if cfg.BufferSize != 100 {
		t.Errorf("BufferSize = %d, want default", cfg.BufferSize)
	}
	if cfg.TokenTimeout != -1 {
		t.Errorf("TokenTimeout = %v, want -1", cfg.TokenTimeout)
	}
	if cfg.SubscriberBuffer != 8 {
		t.Errorf("SubscriberBuffer = %d", cfg.SubscriberBuffer)
	}
}
