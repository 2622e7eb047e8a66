package model

import (
	"github.com/google/uuid"
)

// Question is the full faculty-side question, including grading material.
type Question struct {
	ID       uuid.UUID `json:"id"`
	ExamID   uuid.UUID `json:"exam_id"`
	Prompt   string    `json:"prompt"`
	OrderNum int       `json:"order_num"`

	// MCQ payload. CorrectOption is an index into Options.
	Options       []string `json:"options,omitempty"`
	CorrectOption *int     `json:"correct_option,omitempty"`

	// Coding payload.
	TestCases []TestCase `json:"test_cases,omitempty"`
}

// TestCase is a single input/expected-output pair for a coding question.
type TestCase struct {
	ID             string `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// StudentFacingQuestion is the redacted view of a Question handed to the
// session. Correct options and expected outputs are stripped.
type StudentFacingQuestion struct {
	ID      uuid.UUID `json:"id"`
	Prompt  string    `json:"prompt"`
	Options []string  `json:"options,omitempty"`
	// Coding questions expose test case IDs and inputs only.
	TestCases []StudentFacingTestCase `json:"test_cases,omitempty"`
}

// StudentFacingTestCase is a test case without its expected output.
type StudentFacingTestCase struct {
	ID    string `json:"id"`
	Input string `json:"input"`
}

// Redact derives the student-facing copy of a question.
func (q Question) Redact() StudentFacingQuestion {
	sq := StudentFacingQuestion{
		ID:      q.ID,
		Prompt:  q.Prompt,
		Options: q.Options,
	}
	if len(q.TestCases) > 0 {
		sq.TestCases = make([]StudentFacingTestCase, len(q.TestCases))
		for i, tc := range q.TestCases {
			sq.TestCases[i] = StudentFacingTestCase{ID: tc.ID, Input: tc.Input}
		}
	}
	return sq
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Prompt        string     `json:"prompt" binding:"required,min=1,max=4000"`
	OrderNum      int        `json:"order_num" binding:"min=0"`
	Options       []string   `json:"options" binding:"omitempty,min=2,max=10,dive,max=1000"`
	CorrectOption *int       `json:"correct_option" binding:"omitempty,min=0"`
	TestCases     []TestCase `json:"test_cases" binding:"omitempty,max=50,dive"`
}

// ReplaceQuestionsRequest bulk-replaces the questions of a draft exam.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}
