package mapgen

import "math"

const (
	// Range is the side length in meters of the square world centered on
	// the origin. Everything playable lives inside it.
	Range = 200.0

	islandThreshold = 0.12
	strictThreshold = 0.25
)

// IsOnIsland reports whether the world point (x, z) is land under the given
// seed. strict raises the threshold to the inland band where vegetation is
// placed. The field is a domain-warped fbm; the client evaluates the same
// closed form to render the island without ever receiving geometry.
func IsOnIsland(x, z float64, seed uint32, strict bool) bool {
	s := float64(seed)
	nx := x / (Range / 2)
	nz := z / (Range / 2)

	// Two independent warp fields, both sampled at the unwarped point.
	wx := nx + 0.4*fbm(nx*0.8, nz*0.8, s+12.3)
	wz := nz + 0.4*fbm(nx*0.8+5.2, nz*0.8+1.3, s+45.6)

	d := math.Sqrt(wx*wx + wz*wz)
	d2 := d * d
	falloff := math.Max(0, 1-d2)
	shelf := math.Max(0, 0.4*(1-2*d))
	v := fbm(wx*1.8, wz*1.8, s)*1.5*falloff - d2*d2*d*0.8 + shelf

	if strict {
		return v > strictThreshold
	}
	return v > islandThreshold
}
