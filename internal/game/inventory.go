package game

import (
	"math"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/mapgen"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/protocol"
)

// Upgrade tuning. A dig tier costs a batch of both wood and stone; the
// treasure map costs raw wood.
const (
	BerryBonus      = 0.08
	DigMult         = 0.90
	DigUpgradeBatch = 5
	MapWoodCost     = 50
)

// Inventory counts only ever grow during a round.
type Inventory struct {
	Wood  int
	Stone int
	Berry int
}

func (inv *Inventory) Add(kind mapgen.ResourceType) {
	switch kind {
	case mapgen.ResourceWood:
		inv.Wood++
	case mapgen.ResourceStone:
		inv.Stone++
	case mapgen.ResourceBerry:
		inv.Berry++
	}
}

func (inv Inventory) State() protocol.InventoryState {
	return protocol.InventoryState{
		Wood:  inv.Wood,
		Stone: inv.Stone,
		Berry: inv.Berry,
	}
}

// Upgrades are derived from the inventory and never stored anywhere else.
type Upgrades struct {
	SpeedMultiplier  float64
	DigMultiplier    float64
	DigUpgradesTaken int
	HasMap           bool
}

func (u Upgrades) State() protocol.UpgradeState {
	return protocol.UpgradeState{
		SpeedMultiplier:  u.SpeedMultiplier,
		DigMultiplier:    u.DigMultiplier,
		DigUpgradesTaken: u.DigUpgradesTaken,
		HasMap:           u.HasMap,
	}
}

// DeriveUpgrades recomputes the modifier set from an inventory. prev keeps
// the dig tier and the map latch from ever regressing.
func DeriveUpgrades(inv Inventory, prev Upgrades) Upgrades {
	taken := inv.Stone / DigUpgradeBatch
	if woodTiers := inv.Wood / DigUpgradeBatch; woodTiers < taken {
		taken = woodTiers
	}
	if taken < prev.DigUpgradesTaken {
		taken = prev.DigUpgradesTaken
	}

	return Upgrades{
		SpeedMultiplier:  1 + float64(inv.Berry)*BerryBonus,
		DigMultiplier:    math.Pow(DigMult, float64(taken)),
		DigUpgradesTaken: taken,
		HasMap:           prev.HasMap || inv.Wood >= MapWoodCost,
	}
}

// UpgradeDeltas lists the UpgradeUnlocked kinds earned between two
// derivations, in announcement order.
func UpgradeDeltas(prev, next Upgrades) []string {
	deltas := make([]string, 0, 3)
	if next.SpeedMultiplier > prev.SpeedMultiplier {
		deltas = append(deltas, protocol.UpgradeSpeed)
	}
	if next.DigUpgradesTaken > prev.DigUpgradesTaken {
		deltas = append(deltas, protocol.UpgradeDigSpeed)
	}
	if next.HasMap && !prev.HasMap {
		deltas = append(deltas, protocol.UpgradeMap)
	}
	return deltas
}
