// Package costvalue owns the cell value vocabulary of the occupancy grid.
//
// Responsibilities: the internal 0-255 cost scale, the ternary per-cycle
// observation (unknown, free, occupied) and its merge rule, and the fixed
// translation from internal cost to the published 0-100 scale.
//
// Dependency rule: leaf package. It must not import any other occupancy
// package.
package costvalue
