package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "encore/pkg/database"
	"encore/pkg/interfaces"
	"encore/pkg/types"
)

// Store implements interfaces.Store on SQLite.
//
// All writes funnel through a single goroutine, so two mutations of the
// same row can never interleave. On top of that, every lifecycle and
// capacity mutation is a single guarded UPDATE whose WHERE clause carries
// the precondition; the check and the write are one statement, never a
// read-modify-write the caller could race.
type Store struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // protects closed
}

// writeOperation represents a queued database write.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens the database, applies the schema, and starts the writer.
func NewStore(config *dbconfig.Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	for _, stmt := range dbconfig.SchemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	store := &Store{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	store.wg.Add(1)
	go store.writeLoop()

	return store, nil
}

// writeLoop processes all write operations in a single goroutine.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			op.result <- op.operation(s.db)
		case <-s.shutdown:
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-s.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// Close stops the writer and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	log.Println("Store closed")
	return nil
}

// DB exposes the underlying handle for schema validation and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

const sessionColumns = `id, title, description, instructor, category, level, thumbnail_url,
	scheduled_date, duration, status, room_name, max_participants, current_participants,
	creator_id, created_at, started_at, ended_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*types.Session, error) {
	var session types.Session
	var scheduledDate, startedAt, endedAt sql.NullTime
	var creatorID sql.NullString

	err := row.Scan(
		&session.ID,
		&session.Title,
		&session.Description,
		&session.Instructor,
		&session.Category,
		&session.Level,
		&session.ThumbnailURL,
		&scheduledDate,
		&session.Duration,
		&session.Status,
		&session.RoomName,
		&session.MaxParticipants,
		&session.CurrentParticipants,
		&creatorID,
		&session.CreatedAt,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	if scheduledDate.Valid {
		session.ScheduledDate = scheduledDate.Time
	}
	if startedAt.Valid {
		t := startedAt.Time
		session.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		session.EndedAt = &t
	}
	if creatorID.Valid {
		id := creatorID.String
		session.CreatorID = &id
	}

	return &session, nil
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, session *types.Session) error {
	return s.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO sessions (` + sessionColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		var creatorID interface{}
		if session.CreatorID != nil {
			creatorID = *session.CreatorID
		}
		_, err := db.ExecContext(ctx, query,
			session.ID,
			session.Title,
			session.Description,
			session.Instructor,
			session.Category,
			session.Level,
			session.ThumbnailURL,
			session.ScheduledDate,
			session.Duration,
			session.Status,
			session.RoomName,
			session.MaxParticipants,
			session.CurrentParticipants,
			creatorID,
			session.CreatedAt,
			session.StartedAt,
			session.EndedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.E(types.KindNotFound, "session not found")
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return session, nil
}

// ListSessions returns sessions matching the filter. Upcoming queries are
// ordered soonest-first, everything else newest-first.
func (s *Store) ListSessions(ctx context.Context, filter interfaces.SessionFilter) ([]*types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.CreatorID != "" {
		conditions = append(conditions, "creator_id = ?")
		args = append(args, filter.CreatorID)
	}
	if filter.UpcomingAfter != nil {
		conditions = append(conditions, "status = ? AND scheduled_date > ?")
		args = append(args, types.StatusScheduled, *filter.UpcomingAfter)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if filter.UpcomingAfter != nil {
		query += " ORDER BY scheduled_date ASC"
	} else {
		query += " ORDER BY created_at DESC, id"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

// UpdateSessionFields applies a partial update. The id and room_name
// columns are not reachable from a patch, which keeps them immutable.
func (s *Store) UpdateSessionFields(ctx context.Context, id string, patch *types.SessionPatch) (*types.Session, error) {
	var updated *types.Session

	err := s.executeWrite(func(db *sql.DB) error {
		var sets []string
		var args []interface{}

		if patch.Title != nil {
			sets = append(sets, "title = ?")
			args = append(args, *patch.Title)
		}
		if patch.Description != nil {
			sets = append(sets, "description = ?")
			args = append(args, *patch.Description)
		}
		if patch.Instructor != nil {
			sets = append(sets, "instructor = ?")
			args = append(args, *patch.Instructor)
		}
		if patch.Category != nil {
			sets = append(sets, "category = ?")
			args = append(args, *patch.Category)
		}
		if patch.Level != nil {
			sets = append(sets, "level = ?")
			args = append(args, *patch.Level)
		}
		if patch.ThumbnailURL != nil {
			sets = append(sets, "thumbnail_url = ?")
			args = append(args, *patch.ThumbnailURL)
		}
		if patch.ScheduledDate != nil {
			sets = append(sets, "scheduled_date = ?")
			args = append(args, *patch.ScheduledDate)
		}
		if patch.Duration != nil {
			sets = append(sets, "duration = ?")
			args = append(args, *patch.Duration)
		}
		if patch.MaxParticipants != nil {
			sets = append(sets, "max_participants = ?")
			args = append(args, *patch.MaxParticipants)
		}

		if len(sets) > 0 {
			query := "UPDATE sessions SET " + strings.Join(sets, ", ") + " WHERE id = ?"
			args = append(args, id)
			result, err := db.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("failed to update session: %w", err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read rows affected: %w", err)
			}
			if affected == 0 {
				return types.E(types.KindNotFound, "session not found")
			}
		}

		session, err := scanSession(db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
		if err != nil {
			if err == sql.ErrNoRows {
				return types.E(types.KindNotFound, "session not found")
			}
			return fmt.Errorf("failed to reload session: %w", err)
		}
		updated = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSession removes a session; reviews cascade via the foreign key.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if affected == 0 {
			return types.E(types.KindNotFound, "session not found")
		}
		return nil
	})
}

// SessionStats aggregates registry-wide counters.
func (s *Store) SessionStats(ctx context.Context) (*types.SessionStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'scheduled' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'live' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'ended' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'live' THEN current_participants ELSE 0 END), 0)
		FROM sessions
	`

	var stats types.SessionStats
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalSessions,
		&stats.ScheduledSessions,
		&stats.LiveSessions,
		&stats.EndedSessions,
		&stats.LiveParticipants,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query session stats: %w", err)
	}
	return &stats, nil
}

// guardedUpdate runs a single guarded UPDATE inside the writer goroutine.
// When the guard rejects the row, classify inspects the current row state
// to produce the precise failure; classify receives nil when the row does
// not exist. A nil return from classify turns the rejection into a no-op.
func (s *Store) guardedUpdate(ctx context.Context, id, query string, args []interface{}, classify func(*types.Session) error) (*types.Session, error) {
	var result *types.Session

	err := s.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to execute guarded update: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}

		session, err := scanSession(db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
		if err != nil {
			if err == sql.ErrNoRows {
				if affected == 0 {
					return classify(nil)
				}
				return types.E(types.KindNotFound, "session not found")
			}
			return fmt.Errorf("failed to reload session: %w", err)
		}

		if affected == 0 {
			if err := classify(session); err != nil {
				return err
			}
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TransitionToLive moves scheduled -> live and stamps started_at.
func (s *Store) TransitionToLive(ctx context.Context, id string, at time.Time) (*types.Session, error) {
	query := `UPDATE sessions SET status = ?, started_at = ? WHERE id = ? AND status = ?`
	args := []interface{}{types.StatusLive, at, id, types.StatusScheduled}

	return s.guardedUpdate(ctx, id, query, args, func(session *types.Session) error {
		if session == nil {
			return types.E(types.KindNotFound, "session not found")
		}
		switch session.Status {
		case types.StatusLive:
			return types.E(types.KindInvalidStateTransition, "session is already live")
		case types.StatusEnded:
			return types.E(types.KindInvalidStateTransition, "cannot restart an ended session")
		default:
			return types.Ef(types.KindInvalidStateTransition, "cannot start session in status %q", session.Status)
		}
	})
}

// TransitionToEnded moves live -> ended, stamps ended_at, and disconnects
// all counted attendees by zeroing the participant counter.
func (s *Store) TransitionToEnded(ctx context.Context, id string, at time.Time) (*types.Session, error) {
	query := `UPDATE sessions SET status = ?, ended_at = ?, current_participants = 0 WHERE id = ? AND status = ?`
	args := []interface{}{types.StatusEnded, at, id, types.StatusLive}

	return s.guardedUpdate(ctx, id, query, args, func(session *types.Session) error {
		if session == nil {
			return types.E(types.KindNotFound, "session not found")
		}
		return types.E(types.KindInvalidStateTransition, "can only end a live session")
	})
}

// IncrementParticipants counts one join. The status and capacity guards
// live in the WHERE clause, so two joins racing for the last slot resolve
// to exactly one success.
func (s *Store) IncrementParticipants(ctx context.Context, id string) (*types.Session, error) {
	query := `
		UPDATE sessions SET current_participants = current_participants + 1
		WHERE id = ? AND status = ? AND current_participants < max_participants
	`
	args := []interface{}{id, types.StatusLive}

	return s.guardedUpdate(ctx, id, query, args, func(session *types.Session) error {
		if session == nil {
			return types.E(types.KindNotFound, "session not found")
		}
		if session.Status != types.StatusLive {
			return types.E(types.KindInvalidStateTransition, "can only join a live session")
		}
		return types.E(types.KindCapacityExceeded, "session is at capacity")
	})
}

// DecrementParticipants counts one leave, floored at zero. A leave on an
// already-zero counter is a no-op, not an error: disconnect races can
// deliver the same leave twice.
func (s *Store) DecrementParticipants(ctx context.Context, id string) (*types.Session, error) {
	query := `
		UPDATE sessions SET current_participants = current_participants - 1
		WHERE id = ? AND current_participants > 0
	`
	args := []interface{}{id}

	return s.guardedUpdate(ctx, id, query, args, func(session *types.Session) error {
		if session == nil {
			return types.E(types.KindNotFound, "session not found")
		}
		return nil // floor reached, leave is a no-op
	})
}

// CreateReview inserts a new review row.
func (s *Store) CreateReview(ctx context.Context, review *types.Review) error {
	return s.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO reviews (id, session_id, student_id, student_name, rating, comment, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			review.ID,
			review.SessionID,
			review.StudentID,
			review.StudentName,
			review.Rating,
			review.Comment,
			review.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert review: %w", err)
		}
		return nil
	})
}

// GetReview retrieves a review by id.
func (s *Store) GetReview(ctx context.Context, id string) (*types.Review, error) {
	query := `
		SELECT id, session_id, student_id, student_name, rating, comment, created_at
		FROM reviews WHERE id = ?
	`

	var review types.Review
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&review.ID,
		&review.SessionID,
		&review.StudentID,
		&review.StudentName,
		&review.Rating,
		&review.Comment,
		&review.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.E(types.KindNotFound, "review not found")
		}
		return nil, fmt.Errorf("failed to query review: %w", err)
	}
	return &review, nil
}

// ListSessionReviews returns a session's reviews newest-first.
func (s *Store) ListSessionReviews(ctx context.Context, sessionID string) ([]*types.Review, error) {
	query := `
		SELECT id, session_id, student_id, student_name, rating, comment, created_at
		FROM reviews WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*types.Review
	for rows.Next() {
		var review types.Review
		err := rows.Scan(
			&review.ID,
			&review.SessionID,
			&review.StudentID,
			&review.StudentName,
			&review.Rating,
			&review.Comment,
			&review.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, &review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reviews: %w", err)
	}

	return reviews, nil
}

// DeleteReview removes a review by id.
func (s *Store) DeleteReview(ctx context.Context, id string) error {
	return s.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, "DELETE FROM reviews WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete review: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if affected == 0 {
			return types.E(types.KindNotFound, "review not found")
		}
		return nil
	})
}
