package pump

import (
	"github.com/nwehbe/waterops/internal/storage"
	"github.com/nwehbe/waterops/internal/tank"
)

// ReservoirEmpty reports whether the shared reservoir is too low to justify
// a pump cycle. The 30% threshold is inclusive, and a reservoir with zero
// capacity can never be pumped from.
func ReservoirEmpty(mt storage.MainTank) bool {
	maxCap := tank.MaxCapacity(mt.Radius, mt.Height)
	if maxCap <= 0 {
		return true
	}
	return mt.CurrentLevel/maxCap <= emptyRatio
}
