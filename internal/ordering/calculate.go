package ordering

import (
	"math"
	"sort"
)

type Status int

const (
	StatusOK Status = iota
	StatusRebalanceRequired
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRebalanceRequired:
		return "rebalance_required"
	default:
		return "unknown"
	}
}

// Placement is the outcome of Calculate. Position is meaningful only when
// Status is StatusOK.
type Placement struct {
	Position float64
	Status   Status
}

func (p Placement) OK() bool {
	return p.Status == StatusOK
}

func (p Placement) Err() error {
	if p.Status == StatusRebalanceRequired {
		return ErrRebalanceRequired
	}
	return nil
}

func placed(position float64) Placement {
	return Placement{Position: position, Status: StatusOK}
}

func needsRebalance() Placement {
	return Placement{Status: StatusRebalanceRequired}
}

func finiteBound(bound *float64) bool {
	return bound == nil || !(math.IsNaN(*bound) || math.IsInf(*bound, 0))
}

// Calculate returns a position strictly between prev and next. A nil bound is
// an open end of the container. A NaN or infinite bound cannot be split and
// always requires a rebalance.
func (e *Engine) Calculate(prev, next *float64) Placement {
	if !finiteBound(prev) || !finiteBound(next) {
		return needsRebalance()
	}

	switch {
	case prev == nil && next == nil:
		return placed(e.cfg.Gap)

	case prev == nil:
		candidate := math.Max(*next/2, e.cfg.MinPosition)
		if *next-candidate < e.cfg.RebalanceEpsilon {
			return needsRebalance()
		}
		return placed(candidate)

	case next == nil:
		candidate := *prev + e.cfg.Gap
		if math.IsInf(candidate, 0) || candidate <= *prev {
			return needsRebalance()
		}
		return placed(candidate)

	default:
		if *next-*prev < e.cfg.RebalanceEpsilon {
			return needsRebalance()
		}
		mid := *prev + (*next-*prev)/2
		// Large magnitudes can round the midpoint onto a bound.
		if mid <= *prev || mid >= *next {
			return needsRebalance()
		}
		return placed(mid)
	}
}

// NeedsRebalance reports whether any two adjacent positions are closer than
// the rebalance epsilon. The input is not modified.
func (e *Engine) NeedsRebalance(positions []float64) bool {
	if len(positions) < 2 {
		return false
	}
	sorted := append([]float64(nil), positions...)
	sort.Float64s(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i]-sorted[i-1] < e.cfg.RebalanceEpsilon {
			return true
		}
	}
	return false
}

func (e *Engine) NeedsRebalanceItems(items []Item) bool {
	positions := make([]float64, len(items))
	for i, item := range items {
		positions[i] = item.Position
	}
	return e.NeedsRebalance(positions)
}
