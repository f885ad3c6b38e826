package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleForConnection(t *testing.T) {
	role, err := RoleForConnection("azad_inject")
	require.NoError(t, err)
	assert.Equal(t, RoleContent, role)

	role, err = RoleForConnection("azad_control")
	require.NoError(t, err)
	assert.Equal(t, RoleControl, role)

	_, err = RoleForConnection("azad_popup")
	require.ErrorIs(t, err, ErrUnknownConnection)
}

func TestMergePeriods(t *testing.T) {
	tests := []struct {
		name    string
		current []int
		added   []int
		want    []int
	}{
		{name: "empty both", current: nil, added: nil, want: []int{}},
		{name: "sorts and dedups", current: []int{2019, 2021}, added: []int{2020, 2021, 2018}, want: []int{2018, 2019, 2020, 2021}},
		{name: "empty added keeps current", current: []int{2020}, added: nil, want: []int{2020}},
		{name: "duplicates inside added", current: nil, added: []int{3, 3, 1, 1}, want: []int{1, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergePeriods(tt.current, tt.added))
		})
	}
}

func TestMergePeriodsDoesNotAliasInputs(t *testing.T) {
	current := []int{3, 1}
	merged := MergePeriods(current, []int{2})
	merged[0] = 99

	assert.Equal(t, []int{3, 1}, current)
}
