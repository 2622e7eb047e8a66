package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionRowStatus enumerates the durable attempt states.
type SessionRowStatus string

const (
	SessionRowInProgress SessionRowStatus = "IN_PROGRESS"
	SessionRowSubmitted  SessionRowStatus = "SUBMITTED"
)

// ExamSessionRow is the durable record of a student joining an exam. It
// anchors the idempotent join and reload recovery; the final outcome lives
// in SubmissionRecord.
type ExamSessionRow struct {
	ID         uuid.UUID        `json:"id"`
	ExamID     uuid.UUID        `json:"exam_id"`
	StudentID  int              `json:"student_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Status     SessionRowStatus `json:"status"`
}

// ReloadState is returned to a student who reloads mid-exam: autosaved
// answers plus the authoritative remaining time.
type ReloadState struct {
	ExamID           uuid.UUID         `json:"exam_id"`
	StudentID        int               `json:"student_id"`
	AutosavedAnswers map[string]string `json:"autosaved_answers"`
	RemainingSeconds int               `json:"remaining_seconds"`
}
