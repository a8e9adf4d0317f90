// Command occupancy runs the probabilistic occupancy grid node against a
// synthetic moving platform, or queries a running node.
//
// Usage:
//
//	occupancy [run flags]
//	occupancy status [-addr http://localhost:8082] [-x X -y Y]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/occupancy.map/internal/config"
	"github.com/banshee-data/occupancy.map/internal/occupancy/monitor"
	"github.com/banshee-data/occupancy.map/internal/occupancy/node"
	"github.com/banshee-data/occupancy.map/internal/occupancy/pipeline"
	"github.com/banshee-data/occupancy.map/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to tuning config JSON (defaults built in)")
	listen      = flag.String("listen", ":8082", "HTTP listen address for monitor and debug routes (empty disables)")
	grpcListen  = flag.String("grpc-listen", "localhost:50061", "gRPC listen address for grid streaming (empty disables)")
	dbPath      = flag.String("db", "occupancy.db", "SQLite database path (empty disables persistence)")
	period      = flag.Duration("period", 100*time.Millisecond, "Time between sensing cycles")
	cycles      = flag.Int("cycles", 0, "Stop after this many cycles (0 runs until interrupted)")
	seed        = flag.Int64("seed", 1, "Seed for the synthetic scene")
	boxes       = flag.Int("boxes", 12, "Number of obstacles in the synthetic scene")
	poseDropout = flag.Float64("pose-dropout", 0, "Probability a synthetic cycle arrives without poses")
	logDiag     = flag.Bool("log-diag", false, "Log pipeline configuration and state changes")
	logTrace    = flag.Bool("log-trace", false, "Log every processed cycle")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "status" {
		if err := runStatus(os.Args[2:], os.Stdout); err != nil {
			log.Fatalf("status: %v", err)
		}
		return
	}
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	log.Printf("Starting %s", version.String())

	tuning := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		log.Printf("Loaded tuning config from %s", *configFile)
	}

	pipeline.SetLogWriters(os.Stderr, writerIf(*logDiag), writerIf(*logTrace))

	n, err := node.New(node.Options{
		Tuning:      tuning,
		DBPath:      *dbPath,
		HTTPAddr:    *listen,
		GRPCAddr:    *grpcListen,
		Period:      *period,
		Cycles:      *cycles,
		Seed:        *seed,
		Boxes:       *boxes,
		PoseDropout: *poseDropout,
	})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer n.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Run(ctx); err != nil {
		log.Printf("node stopped with error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func writerIf(on bool) io.Writer {
	if on {
		return os.Stderr
	}
	return nil
}

// runStatus prints a running node's latest snapshot summary and stats, and
// optionally the fused probability at one position.
func runStatus(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8082", "Base URL of the node's HTTP server")
	x := fs.Float64("x", 0, "Map-frame x to query (with -probe)")
	y := fs.Float64("y", 0, "Map-frame y to query (with -probe)")
	probe := fs.Bool("probe", false, "Query the fused probability at -x, -y")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	c := monitor.NewClient(nil, *addr)

	s, err := c.Latest(ctx, false)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "seq=%d stamp=%s frame=%s mode=%s\n", s.Sequence, s.Stamp.Format(time.RFC3339Nano), s.FrameID, s.Mode)
	fmt.Fprintf(out, "grid=%dx%d@%.3fm origin=(%.3f, %.3f, %.3f)\n", s.Width, s.Height, s.Resolution, s.Origin.X, s.Origin.Y, s.Origin.Z)
	fmt.Fprintf(out, "cells unknown=%d free=%d occupied=%d lethal=%d\n", s.Counts.Unknown, s.Counts.Free, s.Counts.Occupied, s.Counts.Lethal)

	stats, err := c.Stats(ctx)
	if err != nil {
		return err
	}
	for _, name := range []string{"pipeline", "preprocess", "visualiser", "gridstore"} {
		if raw, ok := stats[name]; ok {
			fmt.Fprintf(out, "%s: %s\n", name, raw)
		}
	}

	if *probe {
		p, known, err := c.Probability(ctx, *x, *y)
		if err != nil {
			return err
		}
		if !known {
			fmt.Fprintf(out, "(%.3f, %.3f): unknown\n", *x, *y)
		} else {
			fmt.Fprintf(out, "(%.3f, %.3f): p=%.3f\n", *x, *y, p)
		}
	}
	return nil
}
