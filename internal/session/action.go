package session

import (
	"github.com/examina/examina-backend/internal/model"
	"github.com/google/uuid"
)

// Action is the tagged union of state transitions. Reduce is the only
// consumer; adding an action means adding a case there.
type Action interface {
	isAction()
}

// Start moves the machine from not-started to running and visits the first
// question.
type Start struct{}

// GoToNext advances the cursor by one, clamped to the last question.
type GoToNext struct{}

// GoToPrevious moves the cursor back by one, clamped to the first question.
type GoToPrevious struct{}

// JumpTo moves the cursor to an arbitrary question index (clamped).
type JumpTo struct {
	Index int
}

// RecordAnswer stores an MCQ selection or long-answer text. The question's
// status becomes answered unless it is marked for review.
type RecordAnswer struct {
	QuestionID uuid.UUID
	Value      Answer
}

// UpdateCode stores coding source without touching the status; only a run
// result changes a coding question's answered state.
type UpdateCode struct {
	QuestionID uuid.UUID
	SourceCode string
}

// ClearAnswer resets the stored value and reverts the status to not-answered
// unless the question is marked for review.
type ClearAnswer struct {
	QuestionID uuid.UUID
}

// ToggleReviewMark flips between marked-for-review and the status implied by
// the presence of a stored answer.
type ToggleReviewMark struct {
	QuestionID uuid.UUID
}

// SetLanguage switches the session-wide programming language.
type SetLanguage struct {
	Language string
}

// StoreRunResult records an execution outcome for a coding question. Seq
// must be at least the highest sequence already applied for the question,
// otherwise the action is a stale completion and is ignored.
type StoreRunResult struct {
	QuestionID uuid.UUID
	Seq        uint64
	Result     model.RunResult
}

// Tick decrements the timer by one second; at one second or less it forces
// the finished state with the timer pinned to zero.
type Tick struct{}

// Finish terminates the session unconditionally. Used for manual submission
// and auto-submission alike.
type Finish struct{}

func (Start) isAction()            {}
func (GoToNext) isAction()         {}
func (GoToPrevious) isAction()     {}
func (JumpTo) isAction()           {}
func (RecordAnswer) isAction()     {}
func (UpdateCode) isAction()       {}
func (ClearAnswer) isAction()      {}
func (ToggleReviewMark) isAction() {}
func (SetLanguage) isAction()      {}
func (StoreRunResult) isAction()   {}
func (Tick) isAction()             {}
func (Finish) isAction()           {}
