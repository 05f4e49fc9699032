// Package rpc exposes the backend as the Connect service
// switchboard.v1.SwitchboardService. Every message is a
// google.protobuf.Struct holding the JSON form of a wire envelope, so the
// service needs no generated code.
//
//	path, handler := rpc.NewHandler(b)
//	mux.Handle(path, handler)
package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/switchboard/dispatch"
	"github.com/tailored-agentic-units/switchboard/observability"
	"github.com/tailored-agentic-units/switchboard/relay"
	"github.com/tailored-agentic-units/switchboard/transport/wire"
)

// ServiceName is the fully-qualified name of the service.
const ServiceName = "switchboard.v1.SwitchboardService"

// Procedure paths, relative to the server root.
const (
	SendProcedure      = "/" + ServiceName + "/Send"
	SessionsProcedure  = "/" + ServiceName + "/Sessions"
	SubscribeProcedure = "/" + ServiceName + "/Subscribe"
)

const (
	EventSubscribeStarted observability.EventType = "rpc.subscribe.started"
	EventSubscribeEnded   observability.EventType = "rpc.subscribe.ended"
)

// Backend is the part of the chat backend the service exposes.
type Backend interface {
	TrySend(cmd dispatch.Command) error
	Sessions(ctx context.Context) ([]dispatch.SessionInfo, error)
	Subscribe(sessions ...string) *relay.Subscription
}

// Option configures a Service.
type Option func(*Service)

func WithObserver(o observability.Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithHandlerOptions passes options such as interceptors to every
// procedure handler.
func WithHandlerOptions(opts ...connect.HandlerOption) Option {
	return func(s *Service) { s.handlerOpts = append(s.handlerOpts, opts...) }
}

// Service implements the procedures over a Backend.
type Service struct {
	backend     Backend
	observer    observability.Observer
	handlerOpts []connect.HandlerOption
}

// NewHandler builds the service and returns the path to mount it on and
// its handler.
func NewHandler(b Backend, opts ...Option) (string, http.Handler) {
	s := &Service{
		backend:  b,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}

	send := connect.NewUnaryHandler(SendProcedure, s.Send, s.handlerOpts...)
	sessions := connect.NewUnaryHandler(SessionsProcedure, s.Sessions, s.handlerOpts...)
	subscribe := connect.NewServerStreamHandler(SubscribeProcedure, s.Subscribe, s.handlerOpts...)

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SendProcedure:
			send.ServeHTTP(w, r)
		case SessionsProcedure:
			sessions.ServeHTTP(w, r)
		case SubscribeProcedure:
			subscribe.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// Send enqueues the command carried by the request envelope. The response
// echoes the envelope ID as "request_id".
func (s *Service) Send(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	var env wire.Envelope
	if err := fromStruct(req.Msg, &env); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	cmd, err := env.Command()
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.backend.TrySend(cmd); err != nil {
		return nil, toConnectError(err)
	}

	res, err := structpb.NewStruct(map[string]any{"request_id": env.ID})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res), nil
}

// Sessions lists the registered sessions under "sessions".
func (s *Service) Sessions(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	infos, err := s.backend.Sessions(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	res, err := toStruct(sessionList{Sessions: infos})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res), nil
}

// Subscribe streams outbound messages as envelopes until the client goes
// away or the subscription ends. An evicted subscriber gets
// ResourceExhausted; a stopped backend gets Unavailable.
func (s *Service) Subscribe(ctx context.Context, req *connect.Request[structpb.Struct], stream *connect.ServerStream[structpb.Struct]) error {
	sessions, err := sessionFilter(req.Msg)
	if err != nil {
		return toConnectError(err)
	}

	sub := s.backend.Subscribe(sessions...)
	defer sub.Close()

	start := time.Now()
	s.emit(ctx, EventSubscribeStarted, sub, map[string]any{"sessions": sessions})

	err = s.pump(ctx, sub, stream)

	s.emit(context.WithoutCancel(ctx), EventSubscribeEnded, sub, map[string]any{
		"duration": time.Since(start).String(),
		"error":    errString(err),
	})
	return err
}

func (s *Service) pump(ctx context.Context, sub *relay.Subscription, stream *connect.ServerStream[structpb.Struct]) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return toConnectError(sub.Err())
			}
			out, err := messageStruct(msg)
			if err != nil {
				return connect.NewError(connect.CodeInternal, err)
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		}
	}
}

func (s *Service) emit(ctx context.Context, typ observability.EventType, sub *relay.Subscription, data map[string]any) {
	data["subscription"] = sub.ID()
	s.observer.OnEvent(ctx, observability.NewEvent(typ, observability.LevelInfo, "rpc", data))
}

type sessionList struct {
	Sessions []dispatch.SessionInfo `json:"sessions"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// LoggingInterceptor logs each unary call with its procedure, duration and
// Connect code.
func LoggingInterceptor(logger *slog.Logger) connect.Interceptor {
	return connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)

			attrs := []any{
				slog.String("procedure", req.Spec().Procedure),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("code", connect.CodeOf(err).String()), slog.String("error", err.Error()))
				logger.WarnContext(ctx, "rpc failed", attrs...)
			} else {
				logger.DebugContext(ctx, "rpc served", attrs...)
			}
			return res, err
		}
	})
}
