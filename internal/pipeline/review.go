package pipeline

import (
	"context"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
)

// ReviewReasonAmbiguousType marks an entity whose type fell back to person.
const ReviewReasonAmbiguousType = "ambiguous_classification"

// ReviewItem is one entry of the manual review queue.
type ReviewItem struct {
	EntityID      string            `json:"entity_id"`
	GUID          string            `json:"guid"`
	CanonicalName string            `json:"canonical_name"`
	EntityType    common.EntityType `json:"entity_type"`
	Reason        string            `json:"reason"`
	TypeSource    string            `json:"type_source,omitempty"`
	Aliases       []string          `json:"aliases"`
	Sources       []string          `json:"sources"`
}

// ReviewSink receives the review queue of a committed snapshot.
type ReviewSink interface {
	PublishReview(ctx context.Context, version string, items []ReviewItem) error
}

func reviewItems(entities []common.CanonicalEntity) []ReviewItem {
	items := make([]ReviewItem, 0)
	for _, e := range entities {
		if e.ConfidenceFlag != common.ConfidenceLow {
			continue
		}
		items = append(items, ReviewItem{
			EntityID:      e.ID,
			GUID:          e.GUID,
			CanonicalName: e.CanonicalName,
			EntityType:    e.EntityType,
			Reason:        ReviewReasonAmbiguousType,
			TypeSource:    e.Metadata["type_source"],
			Aliases:       e.Aliases,
			Sources:       e.Sources,
		})
	}
	return items
}
