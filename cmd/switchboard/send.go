package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/switchboard/dispatch"
	"github.com/tailored-agentic-units/switchboard/relay"
	"github.com/tailored-agentic-units/switchboard/transport/rpc"
	"github.com/tailored-agentic-units/switchboard/transport/wire"
)

func newSendCmd() *cobra.Command {
	var (
		server  string
		session string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <prompt>...",
		Short: "Send a prompt to a running server and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return send(ctx, cmd.OutOrStdout(), server, dispatch.StartStreamedCompletion{
				SessionName:  session,
				Prompt:       strings.Join(args, " "),
				CompletionID: uuid.Must(uuid.NewV7()).String(),
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", defaultServer(), "server base URL")
	cmd.Flags().StringVar(&session, "session", "Chat Agent", "session to prompt")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "give up after this long")
	return cmd
}

// send delivers the completion over a WebSocket subscribed to its session
// and copies tokens to out until the completion ends.
func send(ctx context.Context, out io.Writer, server string, cmd dispatch.StartStreamedCompletion) error {
	// Routing failures produce no outbound message, so check first.
	if err := checkLive(ctx, server, cmd.SessionName); err != nil {
		return err
	}

	endpoint, err := wsURL(server, cmd.SessionName)
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	resp.Body.Close()
	defer conn.Close()

	// Unblock ReadMessage when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	env, err := wire.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	raw, err := env.Marshal()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return err
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		in, err := wire.Parse(frame)
		if err != nil {
			return err
		}
		msg, err := in.Message()
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case relay.StreamToken:
			if m.CompletionID == cmd.CompletionID {
				fmt.Fprint(out, m.Token)
			}
		case relay.StreamDone:
			if m.CompletionID == cmd.CompletionID {
				fmt.Fprintln(out)
				return nil
			}
		case relay.StreamFailed:
			if m.CompletionID == cmd.CompletionID {
				fmt.Fprintln(out)
				return errors.New(m.Error)
			}
		case relay.SessionClosed:
			return fmt.Errorf("session %s closed: %s", m.SessionName, m.Reason)
		}
	}
}

func checkLive(ctx context.Context, server, session string) error {
	infos, err := rpc.NewClient(http.DefaultClient, server).Sessions(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if info.Name != session {
			continue
		}
		if !info.Live {
			return fmt.Errorf("%w: %s", dispatch.ErrSessionUnavailable, session)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", dispatch.ErrUnknownSession, session)
}

// wsURL turns an http(s) base URL into the /ws endpoint filtered to
// session.
func wsURL(server, session string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL scheme: %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"session": {session}}.Encode()
	return u.String(), nil
}
