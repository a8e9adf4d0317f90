// Package pointcloud holds the point and pose types exchanged between the
// upstream collaborators and the occupancy core.
//
// Points are world-frame positions in metres. Poses are planar: a position
// plus a heading (yaw) about +Z, which is all a 2D grid consumes.
package pointcloud

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Point is a 3D position in metres.
type Point = r3.Vec

// Cloud is an unordered collection of points.
type Cloud []Point

// Pose is a world-frame position and heading.
type Pose struct {
	Position r3.Vec
	Yaw      float64 // radians, counter-clockwise about +Z
}

// NewPose builds a Pose from coordinates.
func NewPose(x, y, z, yaw float64) Pose {
	return Pose{Position: r3.Vec{X: x, Y: y, Z: z}, Yaw: yaw}
}

// Transform maps a point from the pose's local frame into the parent frame.
func (p Pose) Transform(pt Point) Point {
	if p.Yaw != 0 {
		pt = r3.NewRotation(p.Yaw, r3.Vec{Z: 1}).Rotate(pt)
	}
	return r3.Add(pt, p.Position)
}

// Compose returns the pose of child (expressed in p's frame) in p's parent frame.
func (p Pose) Compose(child Pose) Pose {
	return Pose{
		Position: p.Transform(child.Position),
		Yaw:      normalizeAngle(p.Yaw + child.Yaw),
	}
}

// Transform maps every point of c through pose into a new cloud.
func (c Cloud) Transform(pose Pose) Cloud {
	if len(c) == 0 {
		return nil
	}
	out := make(Cloud, len(c))
	rot := r3.NewRotation(pose.Yaw, r3.Vec{Z: 1})
	for i, pt := range c {
		if pose.Yaw != 0 {
			pt = rot.Rotate(pt)
		}
		out[i] = r3.Add(pt, pose.Position)
	}
	return out
}

// Clone returns a copy of c that shares no storage with it.
func (c Cloud) Clone() Cloud {
	if c == nil {
		return nil
	}
	out := make(Cloud, len(c))
	copy(out, c)
	return out
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
