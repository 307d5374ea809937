package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "encore/pkg/database"
	"encore/pkg/interfaces"
	"encore/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "encore_test.db")

	store, err := NewStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func newTestSession(status string, maxParticipants int) *types.Session {
	return &types.Session{
		ID:              uuid.New().String(),
		Title:           "Beginner Guitar",
		Instructor:      "Sam Reed",
		Category:        "guitar",
		Level:           "beginner",
		ScheduledDate:   time.Now().Add(time.Hour).UTC(),
		Duration:        types.DefaultDurationMinutes,
		Status:          status,
		RoomName:        "lesson-" + uuid.New().String(),
		MaxParticipants: maxParticipants,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestCreateAndGetSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := newTestSession(types.StatusScheduled, 100)
	creator := "instructor-1"
	session.CreatorID = &creator

	require.NoError(t, store.CreateSession(ctx, session))

	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.Title, got.Title)
	assert.Equal(t, session.RoomName, got.RoomName)
	assert.Equal(t, types.StatusScheduled, got.Status)
	assert.Equal(t, 0, got.CurrentParticipants)
	require.NotNil(t, got.CreatorID)
	assert.Equal(t, creator, *got.CreatorID)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.EndedAt)
}

func TestGetSessionNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestRoomNameUniqueness(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := newTestSession(types.StatusScheduled, 100)
	require.NoError(t, store.CreateSession(ctx, first))

	dup := newTestSession(types.StatusScheduled, 100)
	dup.RoomName = first.RoomName
	err := store.CreateSession(ctx, dup)
	require.Error(t, err)
	assert.Equal(t, types.KindUnexpected, types.KindOf(err))
}

func TestTransitionToLive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := newTestSession(types.StatusScheduled, 100)
	require.NoError(t, store.CreateSession(ctx, session))

	live, err := store.TransitionToLive(ctx, session.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, types.StatusLive, live.Status)
	require.NotNil(t, live.StartedAt)

	// second start must fail
	_, err = store.TransitionToLive(ctx, session.ID, time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidStateTransition, types.KindOf(err))
	assert.Contains(t, err.Error(), "already live")
}

func TestTransitionToLiveAfterEnded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := newTestSession(types.StatusScheduled, 100)
	require.NoError(t, store.CreateSession(ctx, session))

	_, err := store.TransitionToLive(ctx, session.ID, time.Now().UTC())
	require.NoError(t, err)
	_, err = store.TransitionToEnded(ctx, session.ID, time.Now().UTC())
	require.NoError(t, err)

	_, err = store.TransitionToLive(ctx, session.ID, time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidStateTransition, types.KindOf(err))
	assert.Contains(t, err.Error(), "cannot restart an ended session")
}

func TestTransitionToEndedRequiresLive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := newTestSession(types.StatusScheduled, 100)
	require.NoError(t, store.CreateSession(ctx, session))

	_, err := store.TransitionToEnded(ctx, session.ID, time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidStateTransition, types.KindOf(err))

	_, err = store.TransitionToEnded(ctx, "missing", time.Now().UTC())
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestTransitionToEndedResetsParticipants(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := newTestSession(types.StatusScheduled, 100)
	require.NoError(t, store.CreateSession(ctx, session))
	_, err := store.TransitionToLive(ctx, session.ID, time.Now().UTC())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := store.IncrementParticipants(ctx, session.ID)
		require.NoError(t, err)
	}

	ended, err := store.TransitionToEnded(ctx, session.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, types.StatusEnded, ended.Status)
	assert.Equal(t, 0, ended.CurrentParticipants)
	require.NotNil(t, ended.EndedAt)
}

func TestIncrementParticipantsGuards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := newTestSession(types.StatusScheduled, 2)
	require.NoError(t, store.CreateSession(ctx, session))

	// joining a scheduled session is rejected
	_, err := store.IncrementParticipants(ctx, session.ID)
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidStateTransition, types.KindOf(err))
	assert.Contains(t, err.Error(), "can only join a live session")

	_, err = store.TransitionToLive(ctx, session.ID, time.Now().UTC())
	require.NoError(t, err)

	first, err := store.IncrementParticipants(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.CurrentParticipants)

	second, err := store.IncrementParticipants(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.CurrentParticipants)

	// room is full
	_, err = store.IncrementParticipants(ctx, session.ID)
	require.Error(t, err)
	assert.Equal(t, types.KindCapacityExceeded, types.KindOf(err))

	current, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.CurrentParticipants)

	_, err = store.IncrementParticipants(ctx, "missing")
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestConcurrentJoinsNeverOvershoot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const capacity = 5
	const attempts = 40

	session := newTestSession(types.StatusScheduled, capacity)
	require.NoError(t, store.CreateSession(ctx, session))
	_, err := store.TransitionToLive(ctx, session.ID, time.Now().UTC())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	rejected := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrementParticipants(ctx, session.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if types.IsKind(err, types.KindCapacityExceeded) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, attempts-capacity, rejected)

	final, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, final.CurrentParticipants)
}

func TestDecrementParticipantsFloorsAtZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := newTestSession(types.StatusScheduled, 10)
	require.NoError(t, store.CreateSession(ctx, session))
	_, err := store.TransitionToLive(ctx, session.ID, time.Now().UTC())
	require.NoError(t, err)

	_, err = store.IncrementParticipants(ctx, session.ID)
	require.NoError(t, err)

	after, err := store.DecrementParticipants(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.CurrentParticipants)

	// leave beyond zero is a silent no-op
	again, err := store.DecrementParticipants(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.CurrentParticipants)

	_, err = store.DecrementParticipants(ctx, "missing")
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestUpdateSessionFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := newTestSession(types.StatusScheduled, 100)
	require.NoError(t, store.CreateSession(ctx, session))

	newTitle := "Intermediate Guitar"
	newMax := 25
	updated, err := store.UpdateSessionFields(ctx, session.ID, &types.SessionPatch{
		Title:           &newTitle,
		MaxParticipants: &newMax,
	})
	require.NoError(t, err)
	assert.Equal(t, newTitle, updated.Title)
	assert.Equal(t, newMax, updated.MaxParticipants)
	// immutable fields untouched
	assert.Equal(t, session.ID, updated.ID)
	assert.Equal(t, session.RoomName, updated.RoomName)

	_, err = store.UpdateSessionFields(ctx, "missing", &types.SessionPatch{Title: &newTitle})
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestDeleteSessionCascadesReviews(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := newTestSession(types.StatusScheduled, 100)
	require.NoError(t, store.CreateSession(ctx, session))

	review := &types.Review{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		StudentID: "student-1",
		Rating:    5,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateReview(ctx, review))

	require.NoError(t, store.DeleteSession(ctx, session.ID))

	_, err := store.GetSession(ctx, session.ID)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))

	_, err = store.GetReview(ctx, review.ID)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))

	assert.Equal(t, types.KindNotFound, types.KindOf(store.DeleteSession(ctx, session.ID)))
}

func TestListSessionsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	creator := "instructor-7"

	scheduled := newTestSession(types.StatusScheduled, 100)
	scheduled.ScheduledDate = time.Now().Add(2 * time.Hour).UTC()
	scheduled.CreatorID = &creator
	require.NoError(t, store.CreateSession(ctx, scheduled))

	past := newTestSession(types.StatusScheduled, 100)
	past.ScheduledDate = time.Now().Add(-2 * time.Hour).UTC()
	require.NoError(t, store.CreateSession(ctx, past))

	live := newTestSession(types.StatusScheduled, 100)
	require.NoError(t, store.CreateSession(ctx, live))
	_, err := store.TransitionToLive(ctx, live.ID, time.Now().UTC())
	require.NoError(t, err)

	all, err := store.ListSessions(ctx, interfaces.SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	liveOnly, err := store.ListSessions(ctx, interfaces.SessionFilter{Status: types.StatusLive})
	require.NoError(t, err)
	require.Len(t, liveOnly, 1)
	assert.Equal(t, live.ID, liveOnly[0].ID)

	now := time.Now().UTC()
	upcoming, err := store.ListSessions(ctx, interfaces.SessionFilter{UpcomingAfter: &now})
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, scheduled.ID, upcoming[0].ID)

	byCreator, err := store.ListSessions(ctx, interfaces.SessionFilter{CreatorID: creator})
	require.NoError(t, err)
	require.Len(t, byCreator, 1)
	assert.Equal(t, scheduled.ID, byCreator[0].ID)
}

func TestSessionStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	scheduled := newTestSession(types.StatusScheduled, 100)
	require.NoError(t, store.CreateSession(ctx, scheduled))

	live := newTestSession(types.StatusScheduled, 100)
	require.NoError(t, store.CreateSession(ctx, live))
	_, err := store.TransitionToLive(ctx, live.ID, time.Now().UTC())
	require.NoError(t, err)
	_, err = store.IncrementParticipants(ctx, live.ID)
	require.NoError(t, err)

	stats, err := store.SessionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.ScheduledSessions)
	assert.Equal(t, 1, stats.LiveSessions)
	assert.Equal(t, 0, stats.EndedSessions)
	assert.Equal(t, 1, stats.LiveParticipants)
}

func TestReviewsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := newTestSession(types.StatusScheduled, 100)
	require.NoError(t, store.CreateSession(ctx, session))

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		review := &types.Review{
			ID:        uuid.New().String(),
			SessionID: session.ID,
			StudentID: "student-1",
			Rating:    i + 1,
			Comment:   "note",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.CreateReview(ctx, review))
	}

	list, err := store.ListSessionReviews(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 3, list[0].Rating)
	assert.Equal(t, 2, list[1].Rating)
	assert.Equal(t, 1, list[2].Rating)
}

func TestDeleteReview(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := newTestSession(types.StatusScheduled, 100)
	require.NoError(t, store.CreateSession(ctx, session))

	review := &types.Review{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		StudentID: "student-1",
		Rating:    4,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateReview(ctx, review))

	require.NoError(t, store.DeleteReview(ctx, review.ID))
	assert.Equal(t, types.KindNotFound, types.KindOf(store.DeleteReview(ctx, review.ID)))
}
