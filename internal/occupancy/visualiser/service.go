package visualiser

import (
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/occupancy.map/internal/monitoring"
)

const (
	serviceName       = "occupancy.v1.GridService"
	streamGridsMethod = "/" + serviceName + "/StreamGrids"
)

// gridStreamer is the server side of GridService.
type gridStreamer interface {
	StreamGrids(req *emptypb.Empty, stream grpc.ServerStream) error
}

var _ gridStreamer = (*Publisher)(nil)

// gridServiceDesc describes GridService: a single server-streaming method
// whose messages are BytesValue wrappers around encoded snapshots.
var gridServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*gridStreamer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamGrids",
			Handler:       streamGridsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "occupancy/v1/grid.proto",
}

func streamGridsHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(emptypb.Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(gridStreamer).StreamGrids(req, stream)
}

// StreamGrids sends the latest snapshot, then every published snapshot until
// the client goes away or the publisher stops.
func (p *Publisher) StreamGrids(_ *emptypb.Empty, stream grpc.ServerStream) error {
	id := uuid.NewString()
	client, ok := p.addClient(id)
	if !ok {
		return status.Errorf(codes.ResourceExhausted, "too many clients (max %d)", p.config.MaxClients)
	}
	defer p.removeClient(id)

	if b := p.latestFrame(); b != nil {
		if err := stream.SendMsg(wrapperspb.Bytes(b)); err != nil {
			return err
		}
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stopCh:
			return nil
		case b := <-client.frameCh:
			if err := stream.SendMsg(wrapperspb.Bytes(b)); err != nil {
				monitoring.Logf("[visualiser] send to %s failed: %v", id, err)
				return err
			}
		}
	}
}
