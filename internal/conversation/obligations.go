package conversation

import (
	"context"

	"github.com/google/uuid"

	"tramita/internal/domain"
)

// StoreObligations derives the secondary pending-message check from the
// record's other threads: any open require-answer group conversation whose
// last word is not the responsible group's keeps the obligation alive.
type StoreObligations struct {
	convs Store
}

func NewStoreObligations(convs Store) *StoreObligations {
	return &StoreObligations{convs: convs}
}

func (o *StoreObligations) HasPendingObligation(ctx context.Context, recordID uuid.UUID, group domain.GroupID) (bool, error) {
	convs, err := o.convs.ByRecord(ctx, recordID)
	if err != nil {
		return false, err
	}
	for _, c := range convs {
		if c.Type == domain.ConversationApplicant {
			continue
		}
		msgs, err := o.convs.Messages(ctx, c.ID)
		if err != nil {
			return false, err
		}
		if pendingOnResponsible(msgs, c, group) {
			return true, nil
		}
	}
	return false, nil
}
