package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/switchboard/backend"
	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/dispatch"
	"github.com/tailored-agentic-units/switchboard/relay"
)

const chatHelp = `commands:
  /sessions       list sessions
  /use <name>     switch the active session
  /memory         print the active session's memory
  /note <text>    add text to memory without a reply
  /quit           exit
anything else is sent as a prompt`

func newChatCmd(root *rootOptions) *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with an in-process backend from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if !slices.ContainsFunc(cfg.Sessions, func(s backend.SessionSpec) bool { return s.Name == session }) {
				return fmt.Errorf("%w: %s", dispatch.ErrUnknownSession, session)
			}

			b, err := backend.New(cfg, backend.WithLogger(logger))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			sub := b.Subscribe()
			defer sub.Close()

			ctx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- b.Run(ctx) }()

			c := &chat{backend: b, sub: sub, session: session, out: cmd.OutOrStdout()}
			err = c.run(ctx, cmd.InOrStdin(), len(cfg.Sessions))

			cancel()
			if runErr := <-done; err == nil {
				err = runErr
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&session, "session", backend.DefaultSessions()[0].Name, "session to chat with")
	return cmd
}

type chat struct {
	backend *backend.Backend
	sub     *relay.Subscription
	session string
	out     io.Writer
}

// run waits for the configured sessions to come up, then reads prompts and
// commands line by line until /quit or end of input.
func (c *chat) run(ctx context.Context, in io.Reader, sessions int) error {
	if err := c.awaitSessions(ctx, sessions); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "chatting with %s (/help for commands)\n", c.session)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		quit, err := c.handle(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

func (c *chat) handle(ctx context.Context, line string) (quit bool, err error) {
	if !strings.HasPrefix(line, "/") {
		return false, c.complete(ctx, line)
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	switch name {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(c.out, chatHelp)
	case "sessions":
		return false, c.listSessions(ctx)
	case "use":
		return false, c.use(ctx, strings.TrimSpace(arg))
	case "memory":
		return false, c.printMemory(ctx)
	case "note":
		return false, c.note(ctx, strings.TrimSpace(arg))
	default:
		return false, fmt.Errorf("unknown command /%s", name)
	}
	return false, nil
}

func (c *chat) awaitSessions(ctx context.Context, n int) error {
	for created := 0; created < n; {
		msg, err := c.next(ctx)
		if err != nil {
			return err
		}
		if _, ok := msg.(relay.SessionCreated); ok {
			created++
		}
	}
	return nil
}

// complete sends prompt to the active session and prints the reply as it
// streams.
func (c *chat) complete(ctx context.Context, prompt string) error {
	live, err := c.isLive(ctx, c.session)
	if err != nil {
		return err
	}
	if !live {
		return fmt.Errorf("%w: %s", dispatch.ErrSessionUnavailable, c.session)
	}

	id := uuid.Must(uuid.NewV7()).String()
	err = c.backend.Send(ctx, dispatch.StartStreamedCompletion{
		SessionName:  c.session,
		Prompt:       prompt,
		CompletionID: id,
	})
	if err != nil {
		return err
	}

	for {
		msg, err := c.next(ctx)
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case relay.StreamToken:
			if m.CompletionID == id {
				fmt.Fprint(c.out, m.Token)
			}
		case relay.StreamDone:
			if m.CompletionID == id {
				fmt.Fprintln(c.out)
				return nil
			}
		case relay.StreamFailed:
			if m.CompletionID == id {
				fmt.Fprintln(c.out)
				return errors.New(m.Error)
			}
		case relay.SessionClosed:
			if m.SessionName == c.session {
				return fmt.Errorf("session %s closed: %s", m.SessionName, m.Reason)
			}
		}
	}
}

func (c *chat) next(ctx context.Context) (relay.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-c.sub.C():
		if !ok {
			return nil, fmt.Errorf("subscription ended: %w", c.sub.Err())
		}
		return msg, nil
	}
}

func (c *chat) isLive(ctx context.Context, name string) (bool, error) {
	infos, err := c.backend.Sessions(ctx)
	if err != nil {
		return false, err
	}
	for _, info := range infos {
		if info.Name == name {
			return info.Live, nil
		}
	}
	return false, fmt.Errorf("%w: %s", dispatch.ErrUnknownSession, name)
}

func (c *chat) listSessions(ctx context.Context) error {
	infos, err := c.backend.Sessions(ctx)
	if err != nil {
		return err
	}
	return writeSessions(c.out, infos, c.session)
}

func (c *chat) use(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("usage: /use <name>")
	}
	if _, err := c.isLive(ctx, name); err != nil {
		return err
	}
	c.session = name
	fmt.Fprintf(c.out, "chatting with %s\n", name)
	return nil
}

func (c *chat) note(ctx context.Context, text string) error {
	if text == "" {
		return errors.New("usage: /note <text>")
	}
	return c.backend.Send(ctx, dispatch.PushMemory{
		SessionName: c.session,
		Message:     protocol.NewMessage(protocol.RoleUser, text),
	})
}

func (c *chat) printMemory(ctx context.Context) error {
	msgs, err := c.backend.Memory(ctx, c.session)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		fmt.Fprintf(c.out, "[%s] %s\n", m.Role, m.Content)
	}
	if len(msgs) == 0 {
		fmt.Fprintln(c.out, "(empty)")
	}
	return nil
}
