// Package costmap provides the dense 2D cell array shared by the observation
// frame and the persistent belief grid.
//
// Responsibilities: world/cell coordinate conversion, bounds-checked cell
// access, and origin re-centring that keeps the overlapping cells.
// Key types: Grid, Index.
//
// Dependency rule: leaf package. Cell semantics (what a value means) belong
// to the packages that instantiate Grid.
package costmap
