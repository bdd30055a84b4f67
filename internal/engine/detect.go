package engine

import "github.com/yoshihiko555/takt/internal/models"

// LoopDetector watches for the same movement name repeating on
// consecutive iterations.
type LoopDetector struct {
	cfg          models.LoopDetectorConfig
	lastMovement string
	streak       int
}

// NewLoopDetector builds a detector from cfg. A zero-value cfg
// (MaxConsecutiveSameMovement == 0) disables detection.
func NewLoopDetector(cfg models.LoopDetectorConfig) *LoopDetector {
	return &LoopDetector{cfg: cfg}
}

// Feed records that movement is about to run and reports whether this
// occurrence should abort or warn. Fires on the (max+1)-th consecutive
// occurrence of the same name.
func (d *LoopDetector) Feed(movement string) (shouldAbort, shouldWarn bool) {
	if movement == d.lastMovement {
		d.streak++
	} else {
		d.lastMovement = movement
		d.streak = 1
	}

	if d.cfg.MaxConsecutiveSameMovement <= 0 || d.streak <= d.cfg.MaxConsecutiveSameMovement {
		return false, false
	}

	switch d.cfg.Action {
	case models.LoopAbort:
		return true, false
	case models.LoopWarn:
		return false, true
	default:
		return false, false
	}
}

// CycleDetector watches a fixed set of configured movement-name cycles
// for repeated, uninterrupted traversal.
type CycleDetector struct {
	patterns []models.CyclePattern
	history  []string
}

// NewCycleDetector builds a detector watching for patterns.
func NewCycleDetector(patterns []models.CyclePattern) *CycleDetector {
	return &CycleDetector{patterns: patterns}
}

// Feed records movement as the current step and reports whether any
// configured cycle has completed Threshold uninterrupted traversals
// ending at this step.
func (d *CycleDetector) Feed(movement string) (pattern models.CyclePattern, triggered bool) {
	d.history = append(d.history, movement)

	for _, p := range d.patterns {
		if len(p.Cycle) == 0 || p.Threshold <= 0 {
			continue
		}
		need := len(p.Cycle) * p.Threshold
		if len(d.history) < need {
			continue
		}
		window := d.history[len(d.history)-need:]
		if matchesRepeatedCycle(window, p.Cycle, p.Threshold) {
			return p, true
		}
	}
	return models.CyclePattern{}, false
}

func matchesRepeatedCycle(window, cycle []string, threshold int) bool {
	for rep := 0; rep < threshold; rep++ {
		for i, name := range cycle {
			if window[rep*len(cycle)+i] != name {
				return false
			}
		}
	}
	return true
}
