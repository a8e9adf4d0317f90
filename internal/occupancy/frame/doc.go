// Package frame builds single-cycle observation frames.
//
// A Frame is the ego-centric ternary grid (unknown, free, occupied) derived
// from one cycle's raw and obstacle clouds alone. Building is pure: the same
// clouds, poses and configuration always give the same Frame, and nothing
// outlives the call except the returned value.
//
// Dependency rule: may depend on costmap, costvalue, raytrace and
// pointcloud. Never on bbf or pipeline.
package frame
