// Package raytrace casts sensor rays into an observation frame.
//
// Responsibilities: integer line traversal between two cells, range
// clipping, and classification of the traversed cells as free or occupied.
// Key types: Tracer, Class, CastResult.
//
// Dependency rule: may depend on costmap and costvalue. Never on frame or
// bbf; the tracer writes into whatever observation grid it is handed.
package raytrace
