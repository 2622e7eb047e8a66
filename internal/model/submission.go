package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates completion states of a submission record.
type SubmissionStatus string

const (
	// SubmissionStatusGraded means every question was machine-graded.
	SubmissionStatusGraded SubmissionStatus = "graded"
	// SubmissionStatusCompleted means the record awaits manual grading
	// (long-answer exams).
	SubmissionStatusCompleted SubmissionStatus = "completed"
	// SubmissionStatusSuspicious marks proctoring-forced submissions.
	SubmissionStatusSuspicious SubmissionStatus = "suspicious"
)

// QuestionResult holds the graded outcome for a single question.
type QuestionResult struct {
	QuestionID uuid.UUID `json:"question_id"`
	Marks      float64   `json:"marks"`

	// MCQ.
	SelectedOption *int `json:"selected_option,omitempty"`

	// Long answer.
	AnswerText *string `json:"answer_text,omitempty"`

	// Coding.
	SourceCode  string           `json:"source_code,omitempty"`
	Language    string           `json:"language,omitempty"`
	TestResults []TestCaseResult `json:"test_results,omitempty"`
	PassedCount int              `json:"passed_count,omitempty"`
	TotalCount  int              `json:"total_count,omitempty"`
}

// SubmissionRecord is the final outcome of one exam attempt. At most one is
// accepted per (student, exam) pair.
type SubmissionRecord struct {
	ID             uuid.UUID        `json:"id"`
	StudentID      int              `json:"student_id"`
	ExamID         uuid.UUID        `json:"exam_id"`
	ExamTitle      string           `json:"exam_title"`
	Results        []QuestionResult `json:"results"`
	Score          float64          `json:"score"`
	Status         SubmissionStatus `json:"status"`
	AutoSubmitted  bool             `json:"auto_submitted,omitempty"`
	ViolationCount int              `json:"violation_count,omitempty"`
	CompletedAt    time.Time        `json:"completed_at"`
}
