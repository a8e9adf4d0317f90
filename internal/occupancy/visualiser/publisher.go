// Package visualiser streams published occupancy snapshots to remote
// viewers over gRPC.
//
// The Publisher is a pipeline sink. Each snapshot is encoded once in the
// fixed snapshot wire layout and fanned out to every connected client.
// Slow clients drop frames rather than stall the cycle.
package visualiser

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"

	"github.com/banshee-data/occupancy.map/internal/monitoring"
	"github.com/banshee-data/occupancy.map/internal/occupancy/snapshot"
)

// Config holds configuration for the gRPC publisher.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061")
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients
	MaxClients int

	// ClientBuffer is the per-client queue depth before frames are dropped
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50061",
		MaxClients:   5,
		ClientBuffer: 4,
	}
}

// Publisher owns the gRPC server and the client fan-out.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	frameChan chan []byte
	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	latestMu sync.RWMutex
	latest   []byte

	frameCount    atomic.Uint64
	clientCount   atomic.Int32
	droppedFrames atomic.Uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id      string
	frameCh chan []byte
}

// NewPublisher creates a Publisher and registers the grid service on its
// gRPC server.
func NewPublisher(cfg Config) *Publisher {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 1
	}
	const maxMsgSize = 16 * 1024 * 1024 // a 4000x4000 grid
	p := &Publisher{
		config:    cfg,
		frameChan: make(chan []byte, 16),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
		server: grpc.NewServer(
			grpc.MaxRecvMsgSize(maxMsgSize),
			grpc.MaxSendMsgSize(maxMsgSize),
		),
	}
	p.server.RegisterService(&gridServiceDesc, p)
	return p
}

// Start listens on the configured address and serves in the background.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.config.ListenAddr, err)
	}
	return p.Serve(lis)
}

// Serve serves on an existing listener in the background.
func (p *Publisher) Serve(lis net.Listener) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis

	p.wg.Add(2)
	go p.broadcastLoop()
	go func() {
		defer p.wg.Done()
		monitoring.Logf("[visualiser] gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			monitoring.Logf("[visualiser] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop closes every stream and stops the server.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	p.server.GracefulStop()
	p.wg.Wait()
	monitoring.Logf("[visualiser] gRPC server stopped")
}

// Publish queues a snapshot for every connected client. It never blocks:
// when the queue is full the frame is dropped and counted.
func (p *Publisher) Publish(s *snapshot.Snapshot) error {
	if s == nil {
		return nil
	}
	b := snapshot.Marshal(s)

	p.latestMu.Lock()
	p.latest = b
	p.latestMu.Unlock()

	if !p.running.Load() {
		return nil
	}
	select {
	case p.frameChan <- b:
		p.frameCount.Add(1)
	default:
		dropped := p.droppedFrames.Add(1)
		monitoring.Logf("[visualiser] dropped seq=%d (total dropped: %d), queue full", s.Sequence, dropped)
	}
	return nil
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case b := <-p.frameChan:
			p.clientsMu.RLock()
			for _, c := range p.clients {
				select {
				case c.frameCh <- b:
				default:
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

func (p *Publisher) addClient(id string) (*clientStream, bool) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if p.config.MaxClients > 0 && len(p.clients) >= p.config.MaxClients {
		return nil, false
	}
	c := &clientStream{id: id, frameCh: make(chan []byte, p.config.ClientBuffer)}
	p.clients[id] = c
	n := p.clientCount.Add(1)
	monitoring.Logf("[visualiser] client connected: %s (total: %d)", id, n)
	return c, true
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	_, ok := p.clients[id]
	delete(p.clients, id)
	p.clientsMu.Unlock()
	if ok {
		n := p.clientCount.Add(-1)
		monitoring.Logf("[visualiser] client disconnected: %s (remaining: %d)", id, n)
	}
}

func (p *Publisher) latestFrame() []byte {
	p.latestMu.RLock()
	defer p.latestMu.RUnlock()
	return p.latest
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount    uint64 `json:"frames"`
	DroppedFrames uint64 `json:"dropped"`
	ClientCount   int32  `json:"clients"`
	Running       bool   `json:"running"`
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		ClientCount:   p.clientCount.Load(),
		Running:       p.running.Load(),
	}
}
