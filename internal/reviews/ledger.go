package reviews

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"encore/pkg/interfaces"
	"encore/pkg/types"
)

// Ledger appends and removes reviews attached to sessions. Reviews are
// independent of session lifecycle state; a student can review a scheduled,
// live, or ended session alike.
type Ledger struct {
	store interfaces.Store
	now   func() time.Time
}

// NewLedger creates a review ledger over the given store.
func NewLedger(store interfaces.Store) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
	}
}

// Create appends a review to an existing session.
func (l *Ledger) Create(ctx context.Context, sessionID string, in *types.CreateReviewInput) (*types.Review, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	// Session must exist; its status does not matter.
	if _, err := l.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	review := &types.Review{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		StudentID:   in.StudentID,
		StudentName: in.StudentName,
		Rating:      in.Rating,
		Comment:     in.Comment,
		CreatedAt:   l.now().UTC(),
	}

	if err := l.store.CreateReview(ctx, review); err != nil {
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	log.Printf("Created review: id=%s session=%s rating=%d", review.ID, sessionID, review.Rating)
	return review, nil
}

// ListForSession returns the session's reviews newest-first.
func (l *Ledger) ListForSession(ctx context.Context, sessionID string) ([]*types.Review, error) {
	return l.store.ListSessionReviews(ctx, sessionID)
}

// Delete removes a review. Only the authoring student may delete it.
func (l *Ledger) Delete(ctx context.Context, reviewID, requestingStudentID string) error {
	review, err := l.store.GetReview(ctx, reviewID)
	if err != nil {
		return err
	}

	if review.StudentID != requestingStudentID {
		return types.E(types.KindPermissionDenied, "only the review author can delete a review")
	}

	if err := l.store.DeleteReview(ctx, reviewID); err != nil {
		return err
	}

	log.Printf("Deleted review: id=%s session=%s", reviewID, review.SessionID)
	return nil
}
