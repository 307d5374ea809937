package types

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// CreateSessionInput is the descriptor accepted by the session registry.
type CreateSessionInput struct {
	Title           string    `json:"title" validate:"required,max=200"`
	Description     string    `json:"description"`
	Instructor      string    `json:"instructor"`
	Category        string    `json:"category"`
	Level           string    `json:"level"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	ScheduledDate   time.Time `json:"scheduled_date"`
	Duration        int       `json:"duration" validate:"omitempty,min=1"`
	MaxParticipants int       `json:"max_participants" validate:"omitempty,min=1"`
	CreatorID       *string   `json:"creator_id,omitempty"`
}

// Validate checks the descriptor and reports violations as InvalidArgument.
func (in *CreateSessionInput) Validate() error {
	if in.Title == "" {
		return E(KindInvalidArgument, "title is required")
	}
	if err := validate.Struct(in); err != nil {
		return WrapErr(KindInvalidArgument, "invalid session descriptor", err)
	}
	return nil
}

// SessionPatch is a partial update. Nil fields are left untouched. The
// session id and room name are not representable here and stay immutable.
type SessionPatch struct {
	Title           *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description     *string    `json:"description,omitempty"`
	Instructor      *string    `json:"instructor,omitempty"`
	Category        *string    `json:"category,omitempty"`
	Level           *string    `json:"level,omitempty"`
	ThumbnailURL    *string    `json:"thumbnail_url,omitempty"`
	ScheduledDate   *time.Time `json:"scheduled_date,omitempty"`
	Duration        *int       `json:"duration,omitempty" validate:"omitempty,min=1"`
	MaxParticipants *int       `json:"max_participants,omitempty" validate:"omitempty,min=1"`
}

// Validate checks the patch fields that are present.
func (p *SessionPatch) Validate() error {
	if p.Title != nil && *p.Title == "" {
		return E(KindInvalidArgument, "title cannot be empty")
	}
	if p.Duration != nil && *p.Duration < 1 {
		return E(KindInvalidArgument, "duration must be positive")
	}
	if p.MaxParticipants != nil && *p.MaxParticipants < 1 {
		return E(KindInvalidArgument, "max participants must be positive")
	}
	if err := validate.Struct(p); err != nil {
		return WrapErr(KindInvalidArgument, "invalid session patch", err)
	}
	return nil
}

// CreateReviewInput is the descriptor accepted by the review ledger.
type CreateReviewInput struct {
	StudentID   string `json:"student_id" validate:"required"`
	StudentName string `json:"student_name"`
	Rating      int    `json:"rating" validate:"min=1,max=5"`
	Comment     string `json:"comment"`
}

// Validate checks the descriptor and reports violations as InvalidArgument.
func (in *CreateReviewInput) Validate() error {
	if in.Rating < 1 || in.Rating > 5 {
		return E(KindInvalidArgument, "rating must be between 1 and 5")
	}
	if err := validate.Struct(in); err != nil {
		return WrapErr(KindInvalidArgument, "invalid review descriptor", err)
	}
	return nil
}
