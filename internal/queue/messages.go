package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobmatnyc/the-island-sub004/internal/curation"
	"github.com/bobmatnyc/the-island-sub004/internal/pipeline"
	"github.com/bobmatnyc/the-island-sub004/internal/util"
	"github.com/bobmatnyc/the-island-sub004/pkg/common"
)

// RebuildMsg asks the worker for a full rebuild.
type RebuildMsg struct {
	RequestID   string    `json:"request_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// CurationMsg carries curated aliases and exclusions to append to the
// curation file. With Rebuild set the worker queues a rebuild afterwards.
type CurationMsg struct {
	RequestID string        `json:"request_id"`
	Curation  curation.File `json:"curation"`
	Rebuild   bool          `json:"rebuild"`
}

// ReviewMsg is published to the review queue after every commit.
type ReviewMsg struct {
	Version string                `json:"version"`
	Items   []pipeline.ReviewItem `json:"items"`
}

// EnqueueRebuild publishes a rebuild request and returns its id.
func EnqueueRebuild(ch Channel, reason string) (string, error) {
	id, err := util.NewRunID()
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(RebuildMsg{RequestID: id, Reason: reason, RequestedAt: time.Now().UTC()})
	if err != nil {
		return "", err
	}
	if err := PublishFIFO(ch, RebuildQueue, body); err != nil {
		return "", fmt.Errorf("failed to enqueue rebuild: %w", err)
	}
	return id, nil
}

// EnqueueCuration validates file and publishes it for the worker.
func EnqueueCuration(ch Channel, file curation.File, rebuild bool) (string, error) {
	if err := file.Validate(); err != nil {
		return "", err
	}
	id, err := util.NewRunID()
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(CurationMsg{RequestID: id, Curation: file, Rebuild: rebuild})
	if err != nil {
		return "", err
	}
	if err := PublishFIFO(ch, CurationQueue, body); err != nil {
		return "", fmt.Errorf("failed to enqueue curation: %w", err)
	}
	return id, nil
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedInput, err)
	}
	return nil
}
