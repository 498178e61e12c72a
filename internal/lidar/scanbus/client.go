package scanbus

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/rangescan/internal/lidar/publish"
)

// Subscription is an open StreamScans call.
type Subscription struct {
	stream grpc.ClientStream
}

// Subscribe opens a scan stream on cc. Cancel ctx to close it.
func Subscribe(ctx context.Context, cc grpc.ClientConnInterface) (*Subscription, error) {
	stream, err := cc.NewStream(ctx, &ScanServiceDesc.Streams[0], streamScansMethod)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &Subscription{stream: stream}, nil
}

// Recv blocks for the next scan. It returns io.EOF when the server ends
// the stream.
func (s *Subscription) Recv() (*publish.LaserScan, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return StructToScan(msg)
}

// Latest fetches the most recent scan the bus has published.
func Latest(ctx context.Context, cc grpc.ClientConnInterface) (*publish.LaserScan, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, getLatestMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return StructToScan(out)
}
