package changedetect

import (
	"context"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Conditions emitted by ContentDeltaDetector.
const (
	ConditionContentChanged = "content_changed"
	ConditionContentEmptied = "content_emptied"
	ConditionContentGrew    = "content_grew"
	ConditionContentShrank  = "content_shrank"
)

// ContentDeltaDetector classifies a content change into named conditions.
// It is pure and reads nothing beyond the event.
type ContentDeltaDetector struct{}

// Execute implements ports.UseCase.
func (ContentDeltaDetector) Execute(_ context.Context, ev domain.NewDataEvent) ([]domain.Condition, error) {
	prev, cur := len(ev.PreviousContent), len(ev.CurrentContent)
	details := func() map[string]any {
		return map[string]any{
			"endpoint_id":   ev.EndpointID,
			"content_hash":  ev.ContentHash,
			"previous_size": prev,
			"current_size":  cur,
		}
	}

	conds := []domain.Condition{{Name: ConditionContentChanged, Details: details()}}
	switch {
	case cur == 0 && prev > 0:
		conds = append(conds, domain.Condition{Name: ConditionContentEmptied, Details: details()})
	case cur > prev:
		conds = append(conds, domain.Condition{Name: ConditionContentGrew, Details: details()})
	case cur < prev:
		conds = append(conds, domain.Condition{Name: ConditionContentShrank, Details: details()})
	}
	return conds, nil
}
