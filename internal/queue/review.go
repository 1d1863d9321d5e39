package queue

import (
	"context"
	"encoding/json"

	"github.com/bobmatnyc/the-island-sub004/internal/pipeline"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
)

// ReviewPublisher publishes the review queue of each committed snapshot.
type ReviewPublisher struct {
	ch Channel
}

var _ pipeline.ReviewSink = (*ReviewPublisher)(nil)

func NewReviewPublisher(ch Channel) *ReviewPublisher {
	return &ReviewPublisher{ch: ch}
}

func (p *ReviewPublisher) PublishReview(_ context.Context, version string, items []pipeline.ReviewItem) error {
	if len(items) == 0 {
		return nil
	}
	body, err := json.Marshal(ReviewMsg{Version: version, Items: items})
	if err != nil {
		return err
	}
	if err := PublishFIFO(p.ch, ReviewQueue, body); err != nil {
		return err
	}
	logger.Info("[Queue] Published review items", "version", version, "count", len(items))
	return nil
}
