package domain

import "slices"

// MergePeriods returns the ascending, duplicate free union of current and added.
func MergePeriods(current []int, added []int) []int {
	merged := make([]int, 0, len(current)+len(added))
	merged = append(merged, current...)
	merged = append(merged, added...)
	slices.Sort(merged)
	return slices.Compact(merged)
}
