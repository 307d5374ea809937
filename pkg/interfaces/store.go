package interfaces

import (
	"context"
	"time"

	"encore/pkg/types"
)

// SessionFilter narrows list queries. Zero-value fields are not applied.
type SessionFilter struct {
	Status        string     // exact status match
	CreatorID     string     // exact creator match
	UpcomingAfter *time.Time // scheduled sessions with scheduled_date after this instant
}

// SessionStore is the persistence collaborator for sessions.
//
// The four guarded operations (TransitionToLive, TransitionToEnded,
// IncrementParticipants, DecrementParticipants) must be atomic with respect
// to concurrent calls on the same session id: the state/capacity check and
// the write are one indivisible operation, never a read-modify-write the
// caller could race.
type SessionStore interface {
	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, id string) (*types.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]*types.Session, error)
	UpdateSessionFields(ctx context.Context, id string, patch *types.SessionPatch) (*types.Session, error)
	DeleteSession(ctx context.Context, id string) error
	SessionStats(ctx context.Context) (*types.SessionStats, error)

	// TransitionToLive moves scheduled -> live and stamps started_at.
	TransitionToLive(ctx context.Context, id string, at time.Time) (*types.Session, error)
	// TransitionToEnded moves live -> ended, stamps ended_at, and zeroes
	// the participant counter.
	TransitionToEnded(ctx context.Context, id string, at time.Time) (*types.Session, error)
	// IncrementParticipants counts one join, guarded by live status and
	// remaining capacity.
	IncrementParticipants(ctx context.Context, id string) (*types.Session, error)
	// DecrementParticipants counts one leave, floored at zero. A leave on
	// an already-zero count succeeds without effect.
	DecrementParticipants(ctx context.Context, id string) (*types.Session, error)
}

// ReviewStore is the persistence collaborator for reviews.
type ReviewStore interface {
	CreateReview(ctx context.Context, review *types.Review) error
	GetReview(ctx context.Context, id string) (*types.Review, error)
	// ListSessionReviews returns the session's reviews newest-first.
	ListSessionReviews(ctx context.Context, sessionID string) ([]*types.Review, error)
	DeleteReview(ctx context.Context, id string) error
}

// Store combines the per-entity stores backed by one database.
type Store interface {
	SessionStore
	ReviewStore
}
