package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name of the auth API.
const ServiceName = "studyhub.auth.v1.AuthService"

// Full method names, as seen by interceptors.
const (
	MethodLogin              = "/" + ServiceName + "/Login"
	MethodRefresh            = "/" + ServiceName + "/Refresh"
	MethodLogout             = "/" + ServiceName + "/Logout"
	MethodLogoutOtherDevices = "/" + ServiceName + "/LogoutOtherDevices"
	MethodListDevices        = "/" + ServiceName + "/ListDevices"
)

// PublicMethods are the auth RPCs callable without a bearer token.
func PublicMethods() map[string]bool {
	return map[string]bool{
		MethodLogin:   true,
		MethodRefresh: true,
	}
}

// AuthServiceServer is the server API for the auth service. Requests and responses are
// google.protobuf.Struct messages.
type AuthServiceServer interface {
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LogoutOtherDevices(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDevices(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(AuthServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(AuthServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AuthServiceDesc is the grpc.ServiceDesc for AuthServiceServer.
var AuthServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: unaryHandler(MethodLogin, AuthServiceServer.Login)},
		{MethodName: "Refresh", Handler: unaryHandler(MethodRefresh, AuthServiceServer.Refresh)},
		{MethodName: "Logout", Handler: unaryHandler(MethodLogout, AuthServiceServer.Logout)},
		{MethodName: "LogoutOtherDevices", Handler: unaryHandler(MethodLogoutOtherDevices, AuthServiceServer.LogoutOtherDevices)},
		{MethodName: "ListDevices", Handler: unaryHandler(MethodListDevices, AuthServiceServer.ListDevices)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "studyhub/auth/v1/auth.proto",
}

// RegisterAuthServiceServer registers srv with s.
func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&AuthServiceDesc, srv)
}
