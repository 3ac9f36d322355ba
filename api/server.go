package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beka-birhanu/mazehem/service/i"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// HealthService is the name reported to grpc.health.v1 clients.
const HealthService = "mazehem"

const serverInfoMethod = "/mazehem.Session/ServerInfo"

var ErrMissingInfoProvider = errors.New("info provider is required")

// SessionServer is the admin service exposing the live game state.
type SessionServer interface {
	ServerInfo(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var sessionServiceDesc = grpc.ServiceDesc{
	ServiceName: "mazehem.Session",
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ServerInfo", Handler: serverInfoHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mazehem/session.proto",
}

func serverInfoHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServer).ServerInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serverInfoMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServer).ServerInfo(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterSessionServer registers srv on gsr.
func RegisterSessionServer(gsr grpc.ServiceRegistrar, srv SessionServer) {
	gsr.RegisterService(&sessionServiceDesc, srv)
}

// ServerInfo calls the admin service over cc.
func ServerInfo(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, serverInfoMethod, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type Server struct {
	info       i.InfoProvider
	serverAddr string
	publicKey  []byte
}

var _ SessionServer = (*Server)(nil)

// RegisterNewSessionController registers the admin service backed by info.
// serverAddr and publicKeyPEM are reported as is.
func RegisterNewSessionController(gsr grpc.ServiceRegistrar, info i.InfoProvider, serverAddr string, publicKeyPEM []byte) error {
	if info == nil {
		return ErrMissingInfoProvider
	}
	server := &Server{
		info:       info,
		serverAddr: serverAddr,
		publicKey:  publicKeyPEM,
	}

	RegisterSessionServer(gsr, server)
	return nil
}

// RegisterHealth registers a health service that reports HealthService as
// not serving until the caller says otherwise.
func RegisterHealth(gsr grpc.ServiceRegistrar) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(gsr, hs)
	return hs
}

func (s *Server) ServerInfo(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	info := s.info.Info()

	players := make([]any, 0, len(info.Players))
	for _, p := range info.Players {
		players = append(players, map[string]any{
			"slot":  p.Slot,
			"x":     p.Coord.X,
			"y":     p.Coord.Y,
			"color": fmt.Sprintf("#%06x", p.Color),
		})
	}
	sessions := make([]any, 0, len(info.Sessions))
	for _, sess := range info.Sessions {
		sessions = append(sessions, map[string]any{
			"id":        sess.ID.String(),
			"addr":      sess.Addr.String(),
			"slot":      sess.Slot,
			"state":     sess.State.String(),
			"createdAt": sess.CreatedAt.Format(time.RFC3339),
		})
	}
	metrics := make(map[string]any, len(info.Metrics))
	for k, v := range info.Metrics {
		metrics[k] = v
	}

	out, err := structpb.NewStruct(map[string]any{
		"serverAddr": s.serverAddr,
		"publicKey":  string(s.publicKey),
		"width":      info.Width,
		"height":     info.Height,
		"goal":       map[string]any{"x": info.Goal.X, "y": info.Goal.Y},
		"winner":     info.Winner,
		"players":    players,
		"sessions":   sessions,
		"metrics":    metrics,
		"updatedAt":  info.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "building server info: %v", err)
	}
	return out, nil
}
