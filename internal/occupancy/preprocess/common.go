package preprocess

import (
	"math"

	"github.com/banshee-data/occupancy.map/internal/occupancy/pointcloud"
)

type voxelKey struct{ x, y, z int64 }

func keyOf(p pointcloud.Point, size float64) voxelKey {
	return voxelKey{
		x: int64(math.Floor(p.X / size)),
		y: int64(math.Floor(p.Y / size)),
		z: int64(math.Floor(p.Z / size)),
	}
}

// ExtractCommon returns the obstacle points whose voxel of edge voxelSize
// also holds a raw point. When raw is empty, voxelSize is not positive, or no
// obstacle point matches, the unfiltered obstacle cloud is returned and ok
// is false. The input clouds are not modified.
func ExtractCommon(obstacle, raw pointcloud.Cloud, voxelSize float64) (out pointcloud.Cloud, ok bool) {
	if len(obstacle) == 0 {
		return obstacle, true
	}
	if len(raw) == 0 || !(voxelSize > 0) || math.IsInf(voxelSize, 0) {
		return obstacle, false
	}

	occupied := make(map[voxelKey]struct{}, len(raw))
	for _, p := range raw {
		occupied[keyOf(p, voxelSize)] = struct{}{}
	}
	out = make(pointcloud.Cloud, 0, len(obstacle))
	for _, p := range obstacle {
		if _, hit := occupied[keyOf(p, voxelSize)]; hit {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return obstacle, false
	}
	return out, true
}
