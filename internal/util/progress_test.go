package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebuildProgressPercentage(t *testing.T) {
	tests := []struct {
		name string
		in   RebuildProgress
		want int32
	}{
		{"Start", RebuildProgress{Stage: StageLoading}, 0},
		{"HalfResolving", RebuildProgress{Stage: StageResolving, Done: 50, Total: 100}, 50},
		{"GraphNoTotal", RebuildProgress{Stage: StageGraph}, 60},
		{"CommitDone", RebuildProgress{Stage: StageCommit, Done: 1, Total: 1}, 100},
		{"Overshoot", RebuildProgress{Stage: StageLoading, Done: 9, Total: 3}, 20},
		{"Completed", RebuildProgress{Stage: StageCompleted}, 100},
		{"Unknown", RebuildProgress{Stage: "describing"}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.Percentage())
		})
	}
}

func TestProgressFuncReport(t *testing.T) {
	var got []RebuildProgress
	fn := ProgressFunc(func(p RebuildProgress) { got = append(got, p) })
	fn.Report(StageResolving, 3, 10)
	assert.Equal(t, []RebuildProgress{{Stage: StageResolving, Done: 3, Total: 10}}, got)
	assert.Equal(t, "resolving 3/10", got[0].String())

	var none ProgressFunc
	assert.NotPanics(t, func() { none.Report(StageCommit, 0, 0) })
}
