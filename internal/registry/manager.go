package registry

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"encore/pkg/interfaces"
	"encore/pkg/types"
)

// Manager is the session registry: the source of truth for lifecycle state
// and participant counts. Lifecycle and capacity mutations delegate to the
// store's guarded operations, so the registry never performs a
// read-modify-write on status or counters.
type Manager struct {
	store interfaces.SessionStore
	now   func() time.Time
}

// NewManager creates a new session registry over the given store.
func NewManager(store interfaces.SessionStore) *Manager {
	return &Manager{
		store: store,
		now:   time.Now,
	}
}

// newRoomName generates a room name bound to the session for its lifetime.
// The millisecond timestamp plus a uuid fragment makes a collision with any
// existing room effectively impossible; the store's UNIQUE constraint turns
// the impossible case into a hard failure instead of a silent reuse.
func newRoomName(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("lesson-%d-%s", at.UnixMilli(), suffix)
}

// Create registers a new session in the scheduled state.
func (m *Manager) Create(ctx context.Context, in *types.CreateSessionInput) (*types.Session, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := m.now().UTC()

	duration := in.Duration
	if duration == 0 {
		duration = types.DefaultDurationMinutes
	}
	maxParticipants := in.MaxParticipants
	if maxParticipants == 0 {
		maxParticipants = types.DefaultMaxParticipants
	}

	session := &types.Session{
		ID:                  uuid.New().String(),
		Title:               in.Title,
		Description:         in.Description,
		Instructor:          in.Instructor,
		Category:            in.Category,
		Level:               in.Level,
		ThumbnailURL:        in.ThumbnailURL,
		ScheduledDate:       in.ScheduledDate,
		Duration:            duration,
		Status:              types.StatusScheduled,
		RoomName:            newRoomName(now),
		MaxParticipants:     maxParticipants,
		CurrentParticipants: 0,
		CreatorID:           in.CreatorID,
		CreatedAt:           now,
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("Created session: id=%s title=%q room=%s", session.ID, session.Title, session.RoomName)
	return session, nil
}

// Start moves a scheduled session live and stamps started_at.
func (m *Manager) Start(ctx context.Context, id string) (*types.Session, error) {
	session, err := m.store.TransitionToLive(ctx, id, m.now().UTC())
	if err != nil {
		return nil, err
	}

	log.Printf("Started session: id=%s room=%s", session.ID, session.RoomName)
	return session, nil
}

// End moves a live session to its terminal state. All counted attendees
// are considered disconnected, so the participant counter resets to zero.
func (m *Manager) End(ctx context.Context, id string) (*types.Session, error) {
	session, err := m.store.TransitionToEnded(ctx, id, m.now().UTC())
	if err != nil {
		return nil, err
	}

	log.Printf("Ended session: id=%s room=%s", session.ID, session.RoomName)
	return session, nil
}

// Join counts one participant into a live session. The capacity check and
// the increment are one atomic store operation: of two joins racing for
// the last slot, exactly one succeeds.
func (m *Manager) Join(ctx context.Context, id string) (*types.Session, error) {
	return m.store.IncrementParticipants(ctx, id)
}

// Leave counts one participant out, floored at zero. Leaves beyond zero
// are no-ops so repeated disconnect notifications stay harmless.
func (m *Manager) Leave(ctx context.Context, id string) (*types.Session, error) {
	return m.store.DecrementParticipants(ctx, id)
}

// Update applies a partial update to descriptive fields. The session id
// and room name are immutable; a patch cannot express them.
func (m *Manager) Update(ctx context.Context, id string, patch *types.SessionPatch) (*types.Session, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return m.store.UpdateSessionFields(ctx, id, patch)
}

// Remove deletes a session and, through the store, its reviews.
func (m *Manager) Remove(ctx context.Context, id string) error {
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return err
	}

	log.Printf("Removed session: id=%s", id)
	return nil
}

// Get retrieves a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*types.Session, error) {
	return m.store.GetSession(ctx, id)
}

// ListAll returns every session.
func (m *Manager) ListAll(ctx context.Context) ([]*types.Session, error) {
	return m.store.ListSessions(ctx, interfaces.SessionFilter{})
}

// ListLive returns sessions currently accepting joins.
func (m *Manager) ListLive(ctx context.Context) ([]*types.Session, error) {
	return m.store.ListSessions(ctx, interfaces.SessionFilter{Status: types.StatusLive})
}

// ListUpcoming returns scheduled sessions whose scheduled date is still
// ahead of now.
func (m *Manager) ListUpcoming(ctx context.Context) ([]*types.Session, error) {
	now := m.now().UTC()
	return m.store.ListSessions(ctx, interfaces.SessionFilter{UpcomingAfter: &now})
}

// ListByCreator returns sessions owned by the given instructor.
func (m *Manager) ListByCreator(ctx context.Context, creatorID string) ([]*types.Session, error) {
	return m.store.ListSessions(ctx, interfaces.SessionFilter{CreatorID: creatorID})
}

// Stats returns registry-wide aggregates.
func (m *Manager) Stats(ctx context.Context) (*types.SessionStats, error) {
	return m.store.SessionStats(ctx)
}
