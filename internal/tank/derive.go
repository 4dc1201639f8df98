// Package tank holds the derived tank attributes. These are pure functions
// computed on read; they are never persisted so they always reflect the
// current physical and household inputs.
package tank

import (
	"math"
	"time"

	"github.com/nwehbe/waterops/internal/storage"
)

// MaxCapacity converts a cylinder's dimensions (centimeters) to liters,
// rounded to two decimals.
func MaxCapacity(radius, height float64) float64 {
	cm3 := math.Pi * radius * radius * height
	liters := cm3 / 1000
	return math.Round(liters*100) / 100
}

// FillRatio returns current/max, treating a zero-capacity tank as empty.
func FillRatio(currentLevel, maxCapacity float64) float64 {
	if maxCapacity <= 0 {
		return 0
	}
	return currentLevel / maxCapacity
}

// dailyAllowance is the banded per-person daily liter allowance.
func dailyAllowance(m storage.FamilyMember, now time.Time) float64 {
	age := int(math.Floor(now.Sub(m.DOB).Hours() / 24 / 365.25))
	switch {
	case age <= 5:
		return 50
	case age <= 12:
		if m.Gender == storage.GenderMale {
			return 80
		}
		return 75
	case age <= 17:
		if m.Gender == storage.GenderMale {
			return 120
		}
		return 100
	case age <= 59:
		if m.Gender == storage.GenderMale {
			return 140
		}
		return 110
	default:
		if m.Gender == storage.GenderMale {
			return 120
		}
		return 100
	}
}

// MonthlyAllowance is the household's monthly liter allowance: the sum of
// each member's daily allowance times 30.
func MonthlyAllowance(members []storage.FamilyMember, now time.Time) float64 {
	var total float64
	for _, m := range members {
		total += dailyAllowance(m, now) * 30
	}
	return total
}
