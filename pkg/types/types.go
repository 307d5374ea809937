package types

import (
	"time"
)

// Session lifecycle states. A session moves scheduled -> live -> ended and
// never returns to a prior state.
const (
	StatusScheduled = "scheduled"
	StatusLive      = "live"
	StatusEnded     = "ended"
)

// Media credential roles. Host maps to publishing privileges, audience to
// subscribe-only.
const (
	RoleHost     = "host"
	RoleAudience = "audience"
)

// Defaults applied at session creation when the descriptor leaves them unset.
const (
	DefaultDurationMinutes = 60
	DefaultMaxParticipants = 100
)

// Session represents one scheduled, live, or ended lesson.
// Status, the participant counter, and the lifecycle timestamps are owned
// exclusively by the session registry; nothing else mutates them.
type Session struct {
	ID                  string     `json:"id" db:"id"`
	Title               string     `json:"title" db:"title"`
	Description         string     `json:"description" db:"description"`
	Instructor          string     `json:"instructor" db:"instructor"`
	Category            string     `json:"category" db:"category"`
	Level               string     `json:"level" db:"level"`
	ThumbnailURL        string     `json:"thumbnail_url" db:"thumbnail_url"`
	ScheduledDate       time.Time  `json:"scheduled_date" db:"scheduled_date"`
	Duration            int        `json:"duration" db:"duration"` // minutes, informational only
	Status              string     `json:"status" db:"status"`
	RoomName            string     `json:"room_name" db:"room_name"` // immutable after creation
	MaxParticipants     int        `json:"max_participants" db:"max_participants"`
	CurrentParticipants int        `json:"current_participants" db:"current_participants"`
	CreatorID           *string    `json:"creator_id,omitempty" db:"creator_id"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt             *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// IsLive reports whether the session currently accepts joins.
func (s *Session) IsLive() bool {
	return s.Status == StatusLive
}

// Review is a student rating attached to a session. Reviews live and die
// independently of the session lifecycle but are cascade-deleted with it.
type Review struct {
	ID          string    `json:"id" db:"id"`
	SessionID   string    `json:"session_id" db:"session_id"`
	StudentID   string    `json:"student_id" db:"student_id"`
	StudentName string    `json:"student_name" db:"student_name"`
	Rating      int       `json:"rating" db:"rating"` // 1-5 inclusive
	Comment     string    `json:"comment" db:"comment"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ChatMessage is the record fanned out to every member of a chat room,
// including the sender. Messages are transient and never persisted.
type ChatMessage struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// Credential is the signed artifact a client presents to the external
// media provider, together with the coordinates it is bound to.
type Credential struct {
	Token    string `json:"token"`
	RoomName string `json:"room_name"`
	UID      uint32 `json:"uid"`
	AppID    string `json:"app_id"`
}

// SessionStats is the registry-wide aggregate exposed by the stats query.
type SessionStats struct {
	TotalSessions     int `json:"total_sessions"`
	ScheduledSessions int `json:"scheduled_sessions"`
	LiveSessions      int `json:"live_sessions"`
	EndedSessions     int `json:"ended_sessions"`
	LiveParticipants  int `json:"live_participants"`
}

// IsValidStatus reports whether s is a known session status.
func IsValidStatus(s string) bool {
	return s == StatusScheduled || s == StatusLive || s == StatusEnded
}

// IsValidRole reports whether r is a known media credential role.
func IsValidRole(r string) bool {
	return r == RoleHost || r == RoleAudience
}
