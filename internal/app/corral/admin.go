// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/bhuisgen/corral/pkg/corral"
	"github.com/bhuisgen/corral/pkg/log"
)

// AdminServer is the server API of the admin service.
type AdminServer interface {
	// ListListeners returns the description of every listener.
	ListListeners(ctx context.Context, req *emptypb.Empty) (*structpb.ListValue, error)
	// GetProtocolOptions returns the protocol options of a listener.
	GetProtocolOptions(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	// SetProtocolOptions replaces the protocol options of a listener. The
	// request holds the listener name in "ref" and the options in "options".
	SetProtocolOptions(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	// StopListener stops a listener.
	StopListener(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error)
	// SuspendListener suspends a listener.
	SuspendListener(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error)
	// ResumeListener resumes a suspended listener.
	ResumeListener(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error)
}

const (
	adminServiceName string = "corral.admin.v1.Admin"
	adminLogger      string = "admin"

	adminConfigDefaultListenAddr string = "127.0.0.1"
	adminConfigDefaultListenPort int    = 7070
)

// AdminDefaultAddress is the default address of the admin service.
var AdminDefaultAddress = net.JoinHostPort(adminConfigDefaultListenAddr, fmt.Sprint(adminConfigDefaultListenPort))

// adminUnaryHandler adapts a typed method of the service to a gRPC method
// handler.
func adminUnaryHandler[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](method string, call func(AdminServer, context.Context, PReq) (Resp, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + adminServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AdminServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// adminServiceDesc is the description of the admin service.
var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: adminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListListeners",
			Handler:    adminUnaryHandler("ListListeners", AdminServer.ListListeners),
		},
		{
			MethodName: "GetProtocolOptions",
			Handler:    adminUnaryHandler("GetProtocolOptions", AdminServer.GetProtocolOptions),
		},
		{
			MethodName: "SetProtocolOptions",
			Handler:    adminUnaryHandler("SetProtocolOptions", AdminServer.SetProtocolOptions),
		},
		{
			MethodName: "StopListener",
			Handler:    adminUnaryHandler("StopListener", AdminServer.StopListener),
		},
		{
			MethodName: "SuspendListener",
			Handler:    adminUnaryHandler("SuspendListener", AdminServer.SuspendListener),
		},
		{
			MethodName: "ResumeListener",
			Handler:    adminUnaryHandler("ResumeListener", AdminServer.ResumeListener),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "corral/admin/v1/admin.proto",
}

// RegisterAdminServer registers the admin service on the gRPC server.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

// adminService implements the admin service on top of a listener manager.
type adminService struct {
	manager *corral.Manager
	logger  *slog.Logger
}

// newAdminService creates a new admin service.
func newAdminService(manager *corral.Manager) *adminService {
	return &adminService{
		manager: manager,
		logger:  log.New(adminLogger),
	}
}

// ListListeners returns the description of every listener.
func (s *adminService) ListListeners(ctx context.Context, req *emptypb.Empty) (*structpb.ListValue, error) {
	infos := s.manager.Listeners()
	values := make([]interface{}, 0, len(infos))
	for _, info := range infos {
		values = append(values, listenerInfoMap(info))
	}
	list, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode listeners: %v", err)
	}

	return list, nil
}

// GetProtocolOptions returns the protocol options of a listener.
func (s *adminService) GetProtocolOptions(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	options, err := s.manager.GetProtocolOptions(req.GetValue())
	if err != nil {
		return nil, adminStatus(err)
	}
	result, err := structpb.NewStruct(options)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode options: %v", err)
	}

	return result, nil
}

// SetProtocolOptions replaces the protocol options of a listener.
func (s *adminService) SetProtocolOptions(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	ref := req.GetFields()["ref"].GetStringValue()
	if ref == "" {
		return nil, status.Error(codes.InvalidArgument, "missing listener reference")
	}
	options := req.GetFields()["options"].GetStructValue().AsMap()

	if err := s.manager.SetProtocolOptions(ref, options); err != nil {
		return nil, adminStatus(err)
	}
	s.logger.Info("Protocol options updated", "listener", ref)

	return &emptypb.Empty{}, nil
}

// StopListener stops a listener.
func (s *adminService) StopListener(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.manager.StopListener(req.GetValue()); err != nil {
		return nil, adminStatus(err)
	}
	s.logger.Info("Listener stopped", "listener", req.GetValue())

	return &emptypb.Empty{}, nil
}

// SuspendListener suspends a listener.
func (s *adminService) SuspendListener(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.manager.SuspendListener(req.GetValue()); err != nil {
		return nil, adminStatus(err)
	}
	s.logger.Info("Listener suspended", "listener", req.GetValue())

	return &emptypb.Empty{}, nil
}

// ResumeListener resumes a suspended listener.
func (s *adminService) ResumeListener(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.manager.ResumeListener(req.GetValue()); err != nil {
		return nil, adminStatus(err)
	}
	s.logger.Info("Listener resumed", "listener", req.GetValue())

	return &emptypb.Empty{}, nil
}

var _ AdminServer = (*adminService)(nil)

// adminStatus converts a manager error to a gRPC status error.
func adminStatus(err error) error {
	switch {
	case errors.Is(err, corral.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, corral.ErrAlreadyRegistered):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, corral.ErrNotRunning), errors.Is(err, corral.ErrNotSuspended),
		errors.Is(err, corral.ErrNotListening):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, corral.ErrInvalidRef), errors.Is(err, corral.ErrInvalidSpec):
		return status.Error(codes.InvalidArgument, err.Error())
	}

	var transportErr *corral.TransportError
	if errors.As(err, &transportErr) {
		return status.Error(codes.Unavailable, err.Error())
	}

	return status.Error(codes.Internal, err.Error())
}

// listenerInfoMap converts the listener description to a structpb
// compatible map.
func listenerInfoMap(info corral.ListenerInfo) map[string]interface{} {
	addr := ""
	if info.Addr != nil {
		addr = info.Addr.String()
	}
	options := map[string]interface{}(info.ProtocolOptions)
	if options == nil {
		options = map[string]interface{}{}
	}

	return map[string]interface{}{
		"ref":               fmt.Sprint(info.Ref),
		"state":             info.State.String(),
		"addr":              addr,
		"acceptors":         info.Acceptors,
		"activeConnections": info.ActiveConnections,
		"transport":         info.Transport,
		"protocol":          info.Protocol,
		"protocolOptions":   options,
	}
}

// AdminClient is the client API of the admin service.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient creates a new admin client on the connection.
func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{
		cc: cc,
	}
}

// DialAdmin creates a client connection to the admin service.
func DialAdmin(address string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return conn, nil
}

// invoke calls a method of the admin service.
func (c *AdminClient) invoke(ctx context.Context, method string, in proto.Message, out proto.Message) error {
	return c.cc.Invoke(ctx, "/"+adminServiceName+"/"+method, in, out)
}

// ListListeners returns the description of every listener.
func (c *AdminClient) ListListeners(ctx context.Context) ([]map[string]interface{}, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "ListListeners", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	var listeners []map[string]interface{}
	for _, v := range out.GetValues() {
		listeners = append(listeners, v.GetStructValue().AsMap())
	}

	return listeners, nil
}

// GetProtocolOptions returns the protocol options of a listener.
func (c *AdminClient) GetProtocolOptions(ctx context.Context, ref string) (map[string]interface{}, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "GetProtocolOptions", wrapperspb.String(ref), out); err != nil {
		return nil, err
	}

	return out.AsMap(), nil
}

// SetProtocolOptions replaces the protocol options of a listener.
func (c *AdminClient) SetProtocolOptions(ctx context.Context, ref string, options map[string]interface{}) error {
	in, err := structpb.NewStruct(map[string]interface{}{
		"ref":     ref,
		"options": options,
	})
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}

	return c.invoke(ctx, "SetProtocolOptions", in, &emptypb.Empty{})
}

// StopListener stops a listener.
func (c *AdminClient) StopListener(ctx context.Context, ref string) error {
	return c.invoke(ctx, "StopListener", wrapperspb.String(ref), &emptypb.Empty{})
}

// SuspendListener suspends a listener.
func (c *AdminClient) SuspendListener(ctx context.Context, ref string) error {
	return c.invoke(ctx, "SuspendListener", wrapperspb.String(ref), &emptypb.Empty{})
}

// ResumeListener resumes a suspended listener.
func (c *AdminClient) ResumeListener(ctx context.Context, ref string) error {
	return c.invoke(ctx, "ResumeListener", wrapperspb.String(ref), &emptypb.Empty{})
}
