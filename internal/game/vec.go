package game

import (
	"math"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/protocol"
)

// horizontalDistance ignores elevation. Every movement and proximity rule
// in the game is two dimensional; Y is whatever the client renders.
func horizontalDistance(a, b protocol.Vec3) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dz*dz)
}
