package application

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeriodAggregatorUnionIsSortedAndDeduplicated(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 50; i++ {
		a := randomPeriods(rng)
		b := randomPeriods(rng)

		aggregator := NewPeriodAggregator()
		aggregator.Add(a)
		got := aggregator.Add(b)

		want := append(slices.Clone(a), b...)
		slices.Sort(want)
		want = slices.Compact(want)
		if want == nil {
			want = []int{}
		}
		assert.Equal(t, want, got, "a=%v b=%v", a, b)
	}
}

func TestPeriodAggregatorAddIsIdempotent(t *testing.T) {
	t.Parallel()

	aggregator := NewPeriodAggregator()
	first := aggregator.Add([]int{2022, 2020, 2021})
	second := aggregator.Add([]int{2022, 2020, 2021})

	assert.Equal(t, []int{2020, 2021, 2022}, first)
	assert.Equal(t, first, second)
}

func TestPeriodAggregatorEmptyInputKeepsAggregate(t *testing.T) {
	t.Parallel()

	aggregator := NewPeriodAggregator()
	assert.Equal(t, []int{}, aggregator.Add(nil))

	aggregator.Add([]int{2019})
	assert.Equal(t, []int{2019}, aggregator.Add([]int{}))
}

func TestPeriodAggregatorSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	aggregator := NewPeriodAggregator()
	snapshot := aggregator.Add([]int{1, 2})
	snapshot[0] = 42

	assert.Equal(t, []int{1, 2}, aggregator.Snapshot())
}

func randomPeriods(rng *rand.Rand) []int {
	n := rng.IntN(6)
	periods := make([]int, 0, n)
	for i := 0; i < n; i++ {
		periods = append(periods, 2015+rng.IntN(10))
	}
	return periods
}
