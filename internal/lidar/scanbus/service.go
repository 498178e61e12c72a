// Package scanbus streams published range scans to gRPC clients.
//
// The service is declared in Go rather than generated from a .proto file.
// Its messages are well-known types: requests are google.protobuf.Empty and
// each scan travels as a google.protobuf.Struct with the LaserScan JSON
// field names, so any gRPC client can consume it without stubs:
//
//	service ScanService {
//	  rpc StreamScans(google.protobuf.Empty) returns (stream google.protobuf.Struct);
//	  rpc GetLatest(google.protobuf.Empty) returns (google.protobuf.Struct);
//	}
package scanbus

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "rangescan.ScanService"

	streamScansMethod = "/" + ServiceName + "/StreamScans"
	getLatestMethod   = "/" + ServiceName + "/GetLatest"
)

// ScanServiceServer is the server API for ScanService.
type ScanServiceServer interface {
	StreamScans(req *emptypb.Empty, stream grpc.ServerStream) error
	GetLatest(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// ScanServiceDesc describes ScanService for grpc.Server.RegisterService.
var ScanServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScanServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetLatest",
			Handler:    getLatestHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamScans",
			Handler:       streamScansHandler,
			ServerStreams: true,
		},
	},
	Metadata: "rangescan/scan.proto",
}

func streamScansHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ScanServiceServer).StreamScans(m, stream)
}

func getLatestHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScanServiceServer).GetLatest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: getLatestMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ScanServiceServer).GetLatest(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
