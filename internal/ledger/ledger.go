// Package ledger holds the point and level arithmetic for child users.
// Everything here is pure; the workflow engine decides when a credit
// happens (exactly once, on task approval) and the store persists it.
package ledger

import (
	"github.com/dukerupert/kidtask/internal/apperr"
	"github.com/dukerupert/kidtask/internal/model"
)

// PointsPerLevel is the size of one level band.
const PointsPerLevel = 100

// Level computes the tier for a point total: 0-99 is level 1,
// 100-199 is level 2, and so on. Never stored out of sync with points.
func Level(totalPoints int) int {
	if totalPoints < 0 {
		return 1
	}
	return totalPoints/PointsPerLevel + 1
}

// ApplyPoints returns a copy of the profile with amount credited and the
// level recomputed. Callers must invoke it once per approval event.
func ApplyPoints(p model.ChildProfile, amount int) (model.ChildProfile, error) {
	if amount < 0 {
		return p, apperr.InvalidArgument("credit amount must be >= 0, got %d", amount)
	}
	p.TotalPoints += amount
	p.Level = Level(p.TotalPoints)
	return p, nil
}
