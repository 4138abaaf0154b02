// Package rpc exposes the assistant over gRPC.
//
// Messages are google.protobuf.Struct values carrying the same JSON shapes the
// HTTP API uses, so no generated code is needed.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/containerd/errdefs"
	"github.com/containerd/errdefs/pkg/errgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/assistant"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "shopping.v1.Assistant"

const (
	methodAdvance  = "/" + ServiceName + "/Advance"
	methodResume   = "/" + ServiceName + "/Resume"
	methodSnapshot = "/" + ServiceName + "/Snapshot"
)

// Engine is the orchestrator surface served over gRPC.
type Engine interface {
	Advance(ctx context.Context, sessionID, identity, text string) (*assistant.Result, error)
	Resume(ctx context.Context, sessionID string, confirmed bool, explanation string) (*assistant.Result, error)
	Snapshot(ctx context.Context, sessionID string) (*domain.Checkpoint, error)
}

// AdvanceRequest is the payload of Advance.
type AdvanceRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
}

// ResumeRequest is the payload of Resume.
type ResumeRequest struct {
	SessionID   string `json:"session_id"`
	Approved    bool   `json:"approved"`
	Explanation string `json:"explanation,omitempty"`
}

// SnapshotRequest is the payload of Snapshot.
type SnapshotRequest struct {
	SessionID string `json:"session_id"`
}

// AssistantServer is the server API for the Assistant service.
type AssistantServer interface {
	Advance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Resume(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Server adapts an Engine to AssistantServer.
type Server struct {
	engine Engine
	logger *slog.Logger
}

// NewServer creates a gRPC server implementation backed by engine.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger}
}

// Register adds the Assistant and health services to s.
func Register(s *grpc.Server, srv *Server) *health.Server {
	s.RegisterService(&ServiceDesc, srv)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

// Advance runs a user turn.
func (s *Server) Advance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req AdvanceRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, errgrpc.ToGRPC(err)
	}
	res, err := s.engine.Advance(ctx, req.SessionID, req.UserID, req.Message)
	if err != nil {
		s.logger.Warn("grpc advance failed", "session_id", req.SessionID, "error", err)
		return nil, errgrpc.ToGRPC(err)
	}
	return toStruct(res)
}

// Resume answers a pending confirmation.
func (s *Server) Resume(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ResumeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, errgrpc.ToGRPC(err)
	}
	res, err := s.engine.Resume(ctx, req.SessionID, req.Approved, req.Explanation)
	if err != nil {
		s.logger.Warn("grpc resume failed", "session_id", req.SessionID, "error", err)
		return nil, errgrpc.ToGRPC(err)
	}
	return toStruct(res)
}

// Snapshot returns the session checkpoint.
func (s *Server) Snapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SnapshotRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, errgrpc.ToGRPC(err)
	}
	cp, err := s.engine.Snapshot(ctx, req.SessionID)
	if err != nil {
		return nil, errgrpc.ToGRPC(err)
	}
	return toStruct(cp)
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errgrpc.ToGRPC(fmt.Errorf("encode payload: %w", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errgrpc.ToGRPC(fmt.Errorf("encode payload: %w", err))
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, errgrpc.ToGRPC(fmt.Errorf("encode payload: %w", err))
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, out any) error {
	if s == nil {
		return fmt.Errorf("empty request: %w", errdefs.ErrInvalidArgument)
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode payload: %w", errdefs.ErrInvalidArgument)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, errdefs.ErrInvalidArgument)
	}
	return nil
}

func advanceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AssistantServer).Advance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodAdvance}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AssistantServer).Advance(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func resumeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AssistantServer).Resume(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodResume}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AssistantServer).Resume(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func snapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AssistantServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSnapshot}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AssistantServer).Snapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the Assistant service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AssistantServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Advance", Handler: advanceHandler},
		{MethodName: "Resume", Handler: resumeHandler},
		{MethodName: "Snapshot", Handler: snapshotHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shopping/v1/assistant.proto",
}
