package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamType enumerates the supported exam formats.
type ExamType string

const (
	ExamTypeMCQ        ExamType = "mcq"
	ExamTypeCoding     ExamType = "coding"
	ExamTypeLongAnswer ExamType = "long-answer"
)

// ExamStatus enumerates the lifecycle states of an exam definition.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// ExamDefinition is the faculty-owned exam descriptor. It is immutable for
// the lifetime of a student session.
type ExamDefinition struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	AuthorID        int        `json:"author_id"`
	ExamType        ExamType   `json:"exam_type"`
	DurationMinutes int        `json:"duration_minutes"`
	// MinimumMinutes gates manual submission. Zero means "half the duration".
	MinimumMinutes  int        `json:"minimum_minutes,omitempty"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end,omitempty"`
	DefaultLanguage string     `json:"default_language,omitempty"`
	Status          ExamStatus `json:"status"`
	Questions       []Question `json:"questions,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// MinimumTime returns the elapsed time required before a manual submit is
// allowed. Defaults to half the exam duration when unset.
func (e *ExamDefinition) MinimumTime() time.Duration {
	minutes := e.MinimumMinutes
	if minutes <= 0 {
		minutes = e.DurationMinutes / 2
	}
	return time.Duration(minutes) * time.Minute
}

// Duration returns the full exam duration.
func (e *ExamDefinition) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// ExamPaper is the Redis-cached, student-facing payload. Correct options and
// expected outputs never appear here.
type ExamPaper struct {
	ExamID          uuid.UUID               `json:"exam_id"`
	Title           string                  `json:"title"`
	ExamType        ExamType                `json:"exam_type"`
	DurationMinutes int                     `json:"duration_minutes"`
	MinimumMinutes  int                     `json:"minimum_minutes,omitempty"`
	DefaultLanguage string                  `json:"default_language,omitempty"`
	Questions       []StudentFacingQuestion `json:"questions"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string     `json:"title" binding:"required,min=3,max=255"`
	ExamType        string     `json:"exam_type" binding:"required,oneof=mcq coding long-answer"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	MinimumMinutes  int        `json:"minimum_minutes" binding:"omitempty,min=0,max=480"`
	ScheduledStart  *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
	DefaultLanguage string     `json:"default_language" binding:"omitempty,max=32"`
}

// UpdateExamRequest is the payload for updating a draft exam.
type UpdateExamRequest struct {
	Title           string     `json:"title" binding:"omitempty,min=3,max=255"`
	DurationMinutes int        `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	MinimumMinutes  *int       `json:"minimum_minutes" binding:"omitempty,min=0,max=480"`
	ScheduledStart  *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
	DefaultLanguage string     `json:"default_language" binding:"omitempty,max=32"`
}
