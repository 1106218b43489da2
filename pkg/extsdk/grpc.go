// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package extsdk

import (
	"context"
	"encoding/json"
	"errors"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The service carries JSON documents in BytesValue wrappers, so it needs no
// generated code.
const serviceName = "exthost.extension.v1.Extension"

const (
	describeMethod = "/" + serviceName + "/Describe"
	callMethod     = "/" + serviceName + "/Call"
)

// GRPCPlugin implements hashiplug.GRPCPlugin for extensions.
type GRPCPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	// Impl is set on the extension side.
	Impl Provider
}

// GRPCServer registers the extension service.
func (p *GRPCPlugin) GRPCServer(_ *hashiplug.GRPCBroker, s *grpc.Server) error {
	s.RegisterService(&serviceDesc, &grpcServer{impl: p.Impl})
	return nil
}

// GRPCClient returns a Provider backed by the connection.
func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *hashiplug.GRPCBroker, c *grpc.ClientConn) (any, error) {
	return &GRPCClient{conn: c}, nil
}

type extensionServer interface {
	Describe(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	Call(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*extensionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Describe", Handler: describeHandler},
		{MethodName: "Call", Handler: callHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "exthost/extension/v1/extension.proto",
}

func describeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(extensionServer).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: describeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(extensionServer).Describe(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(extensionServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(extensionServer).Call(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// grpcServer adapts a Provider to the gRPC service.
type grpcServer struct {
	impl Provider
}

func (s *grpcServer) Describe(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	desc, err := s.impl.Describe(ctx)
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return marshalBytes(desc)
}

func (s *grpcServer) Call(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req CallRequest
	if err := json.Unmarshal(in.GetValue(), &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	resp, err := s.impl.Call(ctx, &req)
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return marshalBytes(resp)
}

func marshalBytes(v any) (*wrapperspb.BytesValue, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return wrapperspb.Bytes(data), nil
}

// GRPCClient is the host-side Provider talking to an extension process.
type GRPCClient struct {
	conn grpc.ClientConnInterface
}

// Compile-time interface check.
var _ Provider = (*GRPCClient)(nil)

// NewGRPCClient wraps an established connection.
func NewGRPCClient(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

// Describe implements Provider.
func (c *GRPCClient) Describe(ctx context.Context) (*Description, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, describeMethod, &emptypb.Empty{}, out); err != nil {
		return nil, rpcError(err)
	}
	var desc Description
	if err := json.Unmarshal(out.GetValue(), &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

// Call implements Provider.
func (c *GRPCClient) Call(ctx context.Context, req *CallRequest) (*CallResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, callMethod, wrapperspb.Bytes(data), out); err != nil {
		return nil, rpcError(err)
	}
	var resp CallResponse
	if err := json.Unmarshal(out.GetValue(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// rpcError strips the gRPC status decoration from errors the extension
// reported itself.
func rpcError(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.FailedPrecondition {
		return err
	}
	return errors.New(st.Message())
}
