package application

import (
	"slices"

	"github.com/bnema/azad-hub/internal/domain"
)

// PeriodAggregator accumulates the periods advertised by any content peer.
// Periods are never withdrawn, even when the advertising peer disconnects.
type PeriodAggregator struct {
	periods []int
}

func NewPeriodAggregator() *PeriodAggregator {
	return &PeriodAggregator{periods: []int{}}
}

func (a *PeriodAggregator) Add(periods []int) []int {
	if len(periods) > 0 {
		a.periods = domain.MergePeriods(a.periods, periods)
	}
	return a.Snapshot()
}

func (a *PeriodAggregator) Snapshot() []int {
	if a.periods == nil {
		return []int{}
	}
	return slices.Clone(a.periods)
}
