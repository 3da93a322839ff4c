// Package service exposes training status over gRPC. Messages are protobuf
// well-known types, so no generated code is needed.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cartridge/valuerl/internal/actor"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "valuerl.v1.Status"

const (
	getStatsMethod   = "/" + ServiceName + "/GetStats"
	getReturnsMethod = "/" + ServiceName + "/GetReturns"
)

// StatusServer is the server API for the Status service.
type StatusServer interface {
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetReturns(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

// StatsSource exposes training progress.
type StatsSource interface {
	Stats() actor.Stats
	Returns() []float64
}

// StatusService implements StatusServer
type StatusService struct {
	source StatsSource
}

var _ StatusServer = (*StatusService)(nil)

// NewStatusService creates a new StatusService
func NewStatusService(source StatsSource) *StatusService {
	return &StatusService{source: source}
}

// GetStats returns the current training snapshot as a struct keyed by the
// JSON field names of actor.Stats.
func (s *StatusService) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.source == nil {
		return nil, status.Error(codes.Unavailable, "training has not started")
	}

	data, err := json.Marshal(s.source.Stats())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode stats: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, status.Errorf(codes.Internal, "decode stats: %v", err)
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "convert stats: %v", err)
	}
	return out, nil
}

// GetReturns returns every completed episode's return in order.
func (s *StatusService) GetReturns(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if s.source == nil {
		return nil, status.Error(codes.Unavailable, "training has not started")
	}

	returns := s.source.Returns()
	values := make([]any, len(returns))
	for i, r := range returns {
		values[i] = r
	}
	out, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "convert returns: %v", err)
	}
	return out, nil
}

// RegisterStatusServer registers srv with s.
func RegisterStatusServer(s grpc.ServiceRegistrar, srv StatusServer) {
	s.RegisterService(&statusServiceDesc, srv)
}

var statusServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStats", Handler: getStatsHandler},
		{MethodName: "GetReturns", Handler: getReturnsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "valuerl/v1/status.proto",
}

func getStatsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServer).GetStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStatsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServer).GetStats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getReturnsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServer).GetReturns(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getReturnsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServer).GetReturns(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// StatusClient calls the Status service.
type StatusClient struct {
	cc grpc.ClientConnInterface
}

// NewStatusClient creates a client on cc.
func NewStatusClient(cc grpc.ClientConnInterface) *StatusClient {
	return &StatusClient{cc: cc}
}

// GetStats fetches the current training snapshot.
func (c *StatusClient) GetStats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getStatsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetReturns fetches the episode returns.
func (c *StatusClient) GetReturns(ctx context.Context, opts ...grpc.CallOption) ([]float64, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, getReturnsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	returns := make([]float64, len(out.GetValues()))
	for i, v := range out.GetValues() {
		returns[i] = v.GetNumberValue()
	}
	return returns, nil
}

// LoggingInterceptor logs gRPC requests
func LoggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		evt := logger.Debug()
		if err != nil {
			evt = logger.Warn().Err(err)
		}
		evt.Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC request")

		return resp, err
	}
}
