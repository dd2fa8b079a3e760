package mapgen

import (
	"fmt"
	"math"
)

const (
	// DefaultResourceCount is how many resources a room asks for at start.
	DefaultResourceCount = 200

	chestDiscRadius    = Range / 2.5
	resourceDiscRadius = Range / 2.2
	resourceSpacing    = 5.0

	chestMaxAttempts = 200
)

// ResourceType identifies what a harvest yields.
type ResourceType string

const (
	ResourceWood  ResourceType = "wood"
	ResourceStone ResourceType = "stone"
	ResourceBerry ResourceType = "berry"
)

var resourceTypes = [3]ResourceType{ResourceWood, ResourceStone, ResourceBerry}

// Resource is an immutable placement. Rooms copy these and track the
// harvested flag themselves.
type Resource struct {
	ID   string
	Type ResourceType
	X    float64
	Z    float64
}

// ChestPosition derives the hidden chest location for a seed: uniform draws
// in a disc, rejected until they land on the island. The zero origin is the
// fallback if no attempt lands.
func ChestPosition(seed uint32) (x, z float64) {
	r := newRNG(seed * 99991)
	for i := 0; i < chestMaxAttempts; i++ {
		angle := r.next() * 2 * math.Pi
		radius := chestDiscRadius * math.Sqrt(r.next())
		x = math.Cos(angle) * radius
		z = math.Sin(angle) * radius
		if IsOnIsland(x, z, seed, false) {
			return x, z
		}
	}
	return 0, 0
}

// Resources derives the harvestable field for a seed. Placements are drawn
// in a disc and rejected off the strict island band or within spacing of an
// earlier placement; the type draw happens only after a position is
// accepted, so rejections do not shift the type sequence. IDs follow
// placement order, which is how clients and tests line lists up.
func Resources(seed uint32, count int) []Resource {
	r := newRNG(seed * 77777)
	placed := make([]Resource, 0, count)

	maxAttempts := count * 100
	for attempts := 0; len(placed) < count && attempts < maxAttempts; attempts++ {
		angle := r.next() * 2 * math.Pi
		radius := resourceDiscRadius * math.Sqrt(r.next())
		x := math.Cos(angle) * radius
		z := math.Sin(angle) * radius

		if !IsOnIsland(x, z, seed, true) {
			continue
		}
		if tooClose(placed, x, z) {
			continue
		}

		kind := resourceTypes[int(r.next()*3)]
		placed = append(placed, Resource{
			ID:   fmt.Sprintf("res_%d", len(placed)),
			Type: kind,
			X:    x,
			Z:    z,
		})
	}
	return placed
}

func tooClose(placed []Resource, x, z float64) bool {
	for i := range placed {
		dx := placed[i].X - x
		dz := placed[i].Z - z
		if dx*dx+dz*dz < resourceSpacing*resourceSpacing {
			return true
		}
	}
	return false
}
