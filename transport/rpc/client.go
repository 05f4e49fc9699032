package rpc

import (
	"context"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/switchboard/dispatch"
	"github.com/tailored-agentic-units/switchboard/relay"
	"github.com/tailored-agentic-units/switchboard/transport/wire"
)

// Client calls a remote SwitchboardService.
type Client struct {
	send      *connect.Client[structpb.Struct, structpb.Struct]
	sessions  *connect.Client[emptypb.Empty, structpb.Struct]
	subscribe *connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient creates a client for the service at baseURL, for example
// "http://127.0.0.1:8420".
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		send:      connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+SendProcedure, opts...),
		sessions:  connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+SessionsProcedure, opts...),
		subscribe: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+SubscribeProcedure, opts...),
	}
}

// Send enqueues cmd on the remote backend and returns the request ID.
func (c *Client) Send(ctx context.Context, cmd dispatch.Command) (string, error) {
	env, err := wire.EncodeCommand(cmd)
	if err != nil {
		return "", err
	}
	msg, err := toStruct(env)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	res, err := c.send.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return "", err
	}
	return res.Msg.GetFields()["request_id"].GetStringValue(), nil
}

// Sessions lists the remote backend's sessions.
func (c *Client) Sessions(ctx context.Context) ([]dispatch.SessionInfo, error) {
	res, err := c.sessions.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}

	var list sessionList
	if err := fromStruct(res.Msg, &list); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return list.Sessions, nil
}

// Subscribe opens an outbound message stream, optionally limited to the
// named sessions. The stream ends when ctx is cancelled or Close is called.
func (c *Client) Subscribe(ctx context.Context, sessions ...string) (*Stream, error) {
	filter := make(map[string]any, 1)
	if len(sessions) > 0 {
		names := make([]any, len(sessions))
		for i, s := range sessions {
			names[i] = s
		}
		filter["sessions"] = names
	}

	msg, err := structpb.NewStruct(filter)
	if err != nil {
		return nil, err
	}

	stream, err := c.subscribe.CallServerStream(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return &Stream{stream: stream}, nil
}

// Stream iterates outbound messages received from Subscribe.
//
//	for stream.Receive() {
//		handle(stream.Msg())
//	}
//	if err := stream.Err(); err != nil { ... }
type Stream struct {
	stream *connect.ServerStreamForClient[structpb.Struct]
	msg    relay.Message
	err    error
}

// Receive advances to the next message. It returns false when the stream
// ends or a message cannot be decoded.
func (s *Stream) Receive() bool {
	if s.err != nil || !s.stream.Receive() {
		return false
	}
	msg, err := structMessage(s.stream.Msg())
	if err != nil {
		s.err = err
		return false
	}
	s.msg = msg
	return true
}

// Msg returns the message read by the last successful Receive.
func (s *Stream) Msg() relay.Message {
	return s.msg
}

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.stream.Err()
}

func (s *Stream) Close() error {
	return s.stream.Close()
}
