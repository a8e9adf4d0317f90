package visualiser

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/occupancy.map/internal/occupancy/snapshot"
)

// Subscribe streams snapshots from a GridService until ctx is cancelled,
// the server ends the stream, or fn returns an error.
func Subscribe(ctx context.Context, conn grpc.ClientConnInterface, fn func(*snapshot.Snapshot) error) error {
	stream, err := conn.NewStream(ctx, &gridServiceDesc.Streams[0], streamGridsMethod)
	if err != nil {
		return fmt.Errorf("open grid stream: %w", err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return fmt.Errorf("send grid stream request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close grid stream send: %w", err)
	}

	for {
		msg := new(wrapperspb.BytesValue)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		s, err := snapshot.Unmarshal(msg.GetValue())
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
	}
}
