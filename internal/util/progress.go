package util

import "fmt"

// RebuildStage is one step of a rebuild, in execution order.
type RebuildStage string

const (
	StageLoading   RebuildStage = "loading"
	StageMapping   RebuildStage = "mapping"
	StageResolving RebuildStage = "resolving"
	StageGraph     RebuildStage = "graph"
	StageCommit    RebuildStage = "commit"
	StageCompleted RebuildStage = "completed"
)

var rebuildStages = []RebuildStage{StageLoading, StageMapping, StageResolving, StageGraph, StageCommit}

// RebuildProgress reports how far a rebuild got.
type RebuildProgress struct {
	Stage RebuildStage `json:"stage"`
	Done  int          `json:"done"`
	Total int          `json:"total"`
}

func (p RebuildProgress) String() string {
	if p.Total <= 0 {
		return string(p.Stage)
	}
	return fmt.Sprintf("%s %d/%d", p.Stage, p.Done, p.Total)
}

// Percentage weights every stage equally; inside a stage Done/Total moves
// the bar forward. Unknown stages report 0.
func (p RebuildProgress) Percentage() int32 {
	if p.Stage == StageCompleted {
		return 100
	}
	idx := -1
	for i, s := range rebuildStages {
		if s == p.Stage {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0
	}

	stageCount := int64(len(rebuildStages))
	base := int64(idx) * 100 / stageCount
	if p.Total <= 0 {
		return int32(base)
	}
	done := min(max(int64(p.Done), 0), int64(p.Total))
	return int32(base + done*100/(int64(p.Total)*stageCount))
}

// ProgressFunc receives progress updates. It must not block.
type ProgressFunc func(RebuildProgress)

// Report calls fn when it is set.
func (fn ProgressFunc) Report(stage RebuildStage, done, total int) {
	if fn == nil {
		return
	}
	fn(RebuildProgress{Stage: stage, Done: done, Total: total})
}
