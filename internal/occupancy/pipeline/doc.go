// Package pipeline runs one occupancy cycle: it builds the observation frame
// from a cycle's clouds, fuses it into the belief grid (or bypasses fusion in
// single-frame mode), encodes the result through the cost table and hands the
// snapshot to the registered sinks.
//
// This package is the composition root for the core: it imports costmap,
// raytrace, frame, bbf, costvalue and snapshot, but none of those import
// pipeline. Preprocessing, storage and transport are sinks or upstream
// callers and are not imported here.
package pipeline
