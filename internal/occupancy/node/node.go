// Package node assembles a running occupancy grid process: a cycle source,
// the upstream filters, the pipeline, and the sinks and servers around it.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/occupancy.map/internal/config"
	"github.com/banshee-data/occupancy.map/internal/gridstore"
	"github.com/banshee-data/occupancy.map/internal/monitoring"
	"github.com/banshee-data/occupancy.map/internal/occupancy/monitor"
	"github.com/banshee-data/occupancy.map/internal/occupancy/pipeline"
	"github.com/banshee-data/occupancy.map/internal/occupancy/preprocess"
	"github.com/banshee-data/occupancy.map/internal/occupancy/synthetic"
	"github.com/banshee-data/occupancy.map/internal/occupancy/visualiser"
	"github.com/banshee-data/occupancy.map/internal/timeutil"
	"github.com/banshee-data/occupancy.map/internal/version"
)

// Options configures a Node. Empty addresses and paths disable the
// corresponding server or store.
type Options struct {
	Tuning   *config.TuningConfig
	DBPath   string
	HTTPAddr string
	GRPCAddr string

	// Period between cycles and how many to run; zero Cycles runs until
	// the context ends.
	Period time.Duration
	Cycles int

	// Synthetic scene
	Seed        int64
	Boxes       int
	PoseDropout float64

	Clock timeutil.Clock
}

// Node owns every long-lived component of the process.
type Node struct {
	opts      Options
	clock     timeutil.Clock
	processor *pipeline.Processor
	stage     *preprocess.Stage
	source    *synthetic.Generator
	store     *gridstore.Store
	publisher *visualiser.Publisher
	mux       *http.ServeMux

	mu     sync.Mutex
	cycles int
}

// New builds a node. When a store is configured its latest checkpoint is
// restored; a checkpoint with a different layout is ignored.
func New(opts Options) (*Node, error) {
	if opts.Tuning == nil {
		opts.Tuning = config.EmptyTuningConfig()
	}
	if err := opts.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.Period <= 0 {
		opts.Period = 100 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	pcfg, err := PipelineConfig(opts.Tuning)
	if err != nil {
		return nil, err
	}
	proc, err := pipeline.NewProcessor(pcfg, opts.Clock)
	if err != nil {
		return nil, err
	}
	stage, err := preprocess.NewStage(PreprocessConfig(opts.Tuning))
	if err != nil {
		return nil, err
	}

	gen := synthetic.NewGenerator(opts.Seed, opts.Boxes)
	gen.Period = opts.Period
	gen.PoseDropout = opts.PoseDropout
	gen.MaxRangeM = pcfg.Frame.MaxRange

	n := &Node{
		opts:      opts,
		clock:     opts.Clock,
		processor: proc,
		stage:     stage,
		source:    gen,
		mux:       http.NewServeMux(),
	}

	if opts.DBPath != "" {
		store, err := gridstore.Open(opts.DBPath, gridstore.SessionInfo{Mode: string(pcfg.Mode), FrameID: pcfg.FrameID})
		if err != nil {
			return nil, fmt.Errorf("open grid store: %w", err)
		}
		n.store = store
		n.restore()
		proc.AddSink(gridstore.NewSnapshotSink(store, opts.Tuning.GetSnapshotEvery(), opts.Tuning.GetSnapshotKeep()))
		if err := store.AttachAdminRoutes(n.mux); err != nil {
			store.Close()
			return nil, err
		}
	}

	if opts.GRPCAddr != "" {
		vcfg := visualiser.DefaultConfig()
		vcfg.ListenAddr = opts.GRPCAddr
		n.publisher = visualiser.NewPublisher(vcfg)
		proc.AddSink(n.publisher)
	}

	ws := monitor.NewWebServer(proc)
	ws.AddStats("build", func() interface{} { return version.Info() })
	ws.AddStats("preprocess", func() interface{} { return stage.Stats() })
	if n.publisher != nil {
		ws.AddStats("visualiser", func() interface{} { return n.publisher.Stats() })
	}
	if n.store != nil {
		ws.AddStats("gridstore", func() interface{} {
			count, err := n.store.SnapshotCount()
			if err != nil {
				return map[string]string{"error": err.Error()}
			}
			return map[string]interface{}{"session": n.store.SessionID(), "snapshots": count}
		})
	}
	ws.RegisterRoutes(n.mux)
	return n, nil
}

func (n *Node) restore() {
	cp, err := n.store.LatestCheckpoint()
	if errors.Is(err, gridstore.ErrNotFound) {
		return
	}
	if err != nil {
		monitoring.Logf("[node] failed to load checkpoint: %v", err)
		return
	}
	if err := n.processor.Restore(*cp); err != nil {
		monitoring.Logf("[node] ignoring checkpoint: %v", err)
		return
	}
	monitoring.Logf("[node] restored checkpoint with %d updates", cp.Updates)
}

// Processor returns the pipeline processor.
func (n *Node) Processor() *pipeline.Processor { return n.processor }

// Handler returns the HTTP handler serving monitor and admin routes.
func (n *Node) Handler() http.Handler { return n.mux }

// Cycles returns how many cycles Step has run.
func (n *Node) Cycles() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cycles
}

// Step pulls one cycle from the source, filters it and processes it. A
// cycle without poses is skipped by the pipeline and is not an error.
func (n *Node) Step() error {
	c := n.source.Next()
	if c.GridOrigin != nil {
		c.Obstacle, c.Raw = n.stage.Apply(c.Obstacle, c.Raw, *c.GridOrigin)
	}
	_, err := n.processor.Process(c)

	n.mu.Lock()
	n.cycles++
	n.mu.Unlock()

	if errors.Is(err, pipeline.ErrPoseUnavailable) {
		return nil
	}
	return err
}

// SaveCheckpoint writes the current belief grid to the store, if any.
func (n *Node) SaveCheckpoint() error {
	if n.store == nil {
		return nil
	}
	cp := n.processor.Checkpoint()
	if _, err := n.store.SaveCheckpoint(cp); err != nil {
		return err
	}
	monitoring.Logf("[node] checkpoint saved (%d updates)", cp.Updates)
	return nil
}

// Run drives cycles at the configured period and serves until ctx ends or
// the cycle budget is spent. A final checkpoint is written on the way out.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if n.publisher != nil {
		lis, err := net.Listen("tcp", n.opts.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", n.opts.GRPCAddr, err)
		}
		g.Go(func() error { return n.publisher.Serve(lis) })
		g.Go(func() error {
			<-ctx.Done()
			n.publisher.Stop()
			return nil
		})
	}

	if n.opts.HTTPAddr != "" {
		server := &http.Server{Addr: n.opts.HTTPAddr, Handler: n.mux}
		g.Go(func() error {
			monitoring.Logf("[node] HTTP server listening on %s", n.opts.HTTPAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		// The cycle loop ending (budget spent) stops the servers too.
		defer cancel()
		return n.loop(ctx)
	})

	err := g.Wait()
	if cerr := n.SaveCheckpoint(); cerr != nil {
		monitoring.Logf("[node] final checkpoint failed: %v", cerr)
	}
	return err
}

func (n *Node) loop(ctx context.Context) error {
	ticker := n.clock.NewTicker(n.opts.Period)
	defer ticker.Stop()

	var checkpoints <-chan time.Time
	if iv := n.opts.Tuning.GetCheckpointInterval(); iv > 0 && n.store != nil {
		ct := n.clock.NewTicker(iv)
		defer ct.Stop()
		checkpoints = ct.C()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if err := n.Step(); err != nil {
				monitoring.Logf("[node] cycle failed: %v", err)
			}
			if n.opts.Cycles > 0 && n.Cycles() >= n.opts.Cycles {
				monitoring.Logf("[node] ran %d cycles", n.Cycles())
				return nil
			}
		case <-checkpoints:
			if err := n.SaveCheckpoint(); err != nil {
				monitoring.Logf("[node] checkpoint failed: %v", err)
			}
		}
	}
}

// Close releases the store.
func (n *Node) Close() error {
	if n.store != nil {
		return n.store.Close()
	}
	return nil
}
