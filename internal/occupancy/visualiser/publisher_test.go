package visualiser

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/occupancy.map/internal/monitoring"
	"github.com/banshee-data/occupancy.map/internal/occupancy/snapshot"
)

func init() {
	monitoring.SetLogger(nil)
}

func testSnapshot(seq uint64) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Sequence:   seq,
		Stamp:      time.Unix(int64(seq), 0).UTC(),
		FrameID:    "map",
		Mode:       "fused",
		Resolution: 0.5,
		Width:      2,
		Height:     2,
		Data:       []int8{-1, 0, 40, 70},
	}
}

func startPublisher(t *testing.T, cfg Config) (*Publisher, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	p := NewPublisher(cfg)
	require.NoError(t, p.Serve(lis))
	t.Cleanup(p.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return p, conn
}

func subscribe(ctx context.Context, conn *grpc.ClientConn) (<-chan *snapshot.Snapshot, <-chan error) {
	out := make(chan *snapshot.Snapshot, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- Subscribe(ctx, conn, func(s *snapshot.Snapshot) error {
			out <- s
			return nil
		})
	}()
	return out, errCh
}

func receive(t *testing.T, ch <-chan *snapshot.Snapshot) *snapshot.Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestPublisher_StreamsLatestThenLive(t *testing.T) {
	p, conn := startPublisher(t, DefaultConfig())
	require.NoError(t, p.Publish(testSnapshot(1)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got, _ := subscribe(ctx, conn)

	first := receive(t, got)
	assert.Equal(t, testSnapshot(1), first)

	require.NoError(t, p.Publish(testSnapshot(2)))
	second := receive(t, got)
	assert.Equal(t, uint64(2), second.Sequence)
	assert.Equal(t, []int8{-1, 0, 40, 70}, second.Data)

	assert.Eventually(t, func() bool { return p.Stats().ClientCount == 1 }, time.Second, 10*time.Millisecond)
}

func TestPublisher_ClientDisconnect(t *testing.T) {
	p, conn := startPublisher(t, DefaultConfig())
	require.NoError(t, p.Publish(testSnapshot(1)))

	ctx, cancel := context.WithCancel(context.Background())
	got, errCh := subscribe(ctx, conn)
	receive(t, got)
	cancel()

	select {
	case err := <-errCh:
		assert.Equal(t, codes.Canceled, status.Code(err))
	case <-time.After(5 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
	assert.Eventually(t, func() bool { return p.Stats().ClientCount == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestPublisher_MaxClients(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClients = 1
	p, conn := startPublisher(t, cfg)
	require.NoError(t, p.Publish(testSnapshot(1)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got, _ := subscribe(ctx, conn)
	receive(t, got)

	_, errCh := subscribe(ctx, conn)
	select {
	case err := <-errCh:
		assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	case <-time.After(5 * time.Second):
		t.Fatal("second client was not rejected")
	}
}

func TestPublisher_StopEndsStreams(t *testing.T) {
	p, conn := startPublisher(t, DefaultConfig())
	require.NoError(t, p.Publish(testSnapshot(1)))

	got, errCh := subscribe(context.Background(), conn)
	receive(t, got)
	p.Stop()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Subscribe did not return after Stop")
	}
	assert.False(t, p.Stats().Running)
}

func TestPublisher_NotRunningKeepsLatest(t *testing.T) {
	p := NewPublisher(DefaultConfig())
	require.NoError(t, p.Publish(testSnapshot(3)))
	require.NoError(t, p.Publish(nil))
	assert.Zero(t, p.Stats().FrameCount)

	s, err := snapshot.Unmarshal(p.latestFrame())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.Sequence)
	p.Stop()
}

func TestPublisher_DoubleServe(t *testing.T) {
	p, _ := startPublisher(t, DefaultConfig())
	assert.Error(t, p.Serve(bufconn.Listen(1024)))
}
