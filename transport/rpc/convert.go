package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/switchboard/core/channel"
	"github.com/tailored-agentic-units/switchboard/dispatch"
	"github.com/tailored-agentic-units/switchboard/relay"
	"github.com/tailored-agentic-units/switchboard/transport/wire"
)

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func messageStruct(msg relay.Message) (*structpb.Struct, error) {
	env, err := wire.EncodeMessage(msg)
	if err != nil {
		return nil, err
	}
	return toStruct(env)
}

func structMessage(s *structpb.Struct) (relay.Message, error) {
	data, err := protojson.Marshal(s)
	if err != nil {
		return nil, err
	}
	env, err := wire.Parse(data)
	if err != nil {
		return nil, err
	}
	return env.Message()
}

// sessionFilter reads the optional "sessions" list of a Subscribe request.
func sessionFilter(s *structpb.Struct) ([]string, error) {
	v, ok := s.GetFields()["sessions"]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: 'sessions' must be a list", wire.ErrInvalidMessage)
	}

	names := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		name, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%w: 'sessions' must hold strings", wire.ErrInvalidMessage)
		}
		names = append(names, name.StringValue)
	}
	return names, nil
}

// CodeOf maps an error to the Connect code reported to clients.
func CodeOf(err error) connect.Code {
	switch {
	case errors.Is(err, wire.ErrInvalidMessage),
		errors.Is(err, dispatch.ErrEmptyPrompt),
		errors.Is(err, dispatch.ErrEmptySessionName):
		return connect.CodeInvalidArgument
	case errors.Is(err, dispatch.ErrUnknownSession):
		return connect.CodeNotFound
	case errors.Is(err, dispatch.ErrSessionExists):
		return connect.CodeAlreadyExists
	case errors.Is(err, dispatch.ErrBackendBusy),
		errors.Is(err, dispatch.ErrMailboxFull),
		errors.Is(err, relay.ErrEvicted):
		return connect.CodeResourceExhausted
	case errors.Is(err, dispatch.ErrSessionUnavailable),
		errors.Is(err, dispatch.ErrStopped),
		errors.Is(err, channel.ErrClosed):
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}

func toConnectError(err error) *connect.Error {
	return connect.NewError(CodeOf(err), err)
}
