package session

import (
	"github.com/examina/examina-backend/internal/model"
	"github.com/google/uuid"
)

// QuestionStatus tracks a student's progress on one question.
type QuestionStatus string

const (
	StatusNotVisited      QuestionStatus = "not-visited"
	StatusNotAnswered     QuestionStatus = "not-answered"
	StatusAnswered        QuestionStatus = "answered"
	StatusMarkedForReview QuestionStatus = "marked-for-review"
)

// Answer is the stored value for one question. Exactly one payload group is
// populated depending on the exam type.
type Answer struct {
	// MCQ: index into the question's options. Nil means cleared.
	SelectedOption *int `json:"selected_option,omitempty"`

	// Long answer. Nil means cleared.
	Text *string `json:"text,omitempty"`

	// Coding.
	SourceCode string           `json:"source_code,omitempty"`
	LastRun    *model.RunResult `json:"last_run,omitempty"`
}

// State is the mutable heart of an exam attempt. It is only ever changed by
// Reduce; everything here is value-semantics friendly so a transition can
// copy-on-write the maps it touches.
type State struct {
	Questions []model.StudentFacingQuestion
	Index     int
	Answers   map[uuid.UUID]Answer
	Statuses  map[uuid.UUID]QuestionStatus
	// RunSeqs holds the highest execution sequence number applied per
	// question; stale run completions are discarded against it.
	RunSeqs  map[uuid.UUID]uint64
	TimeLeft int // seconds
	Started  bool
	Finished bool
	Language string
}

// New constructs the initial state for a loaded paper. Every question starts
// not-visited; the timer holds the full remaining budget in seconds.
func New(questions []model.StudentFacingQuestion, timeLeftSeconds int, language string) State {
	statuses := make(map[uuid.UUID]QuestionStatus, len(questions))
	for _, q := range questions {
		statuses[q.ID] = StatusNotVisited
	}
	return State{
		Questions: questions,
		Answers:   make(map[uuid.UUID]Answer, len(questions)),
		Statuses:  statuses,
		RunSeqs:   make(map[uuid.UUID]uint64, len(questions)),
		TimeLeft:  timeLeftSeconds,
		Language:  language,
	}
}

// Current returns the question under the cursor. ok is false for an empty
// paper.
func (s State) Current() (model.StudentFacingQuestion, bool) {
	if len(s.Questions) == 0 || s.Index < 0 || s.Index >= len(s.Questions) {
		return model.StudentFacingQuestion{}, false
	}
	return s.Questions[s.Index], true
}

// QuestionByID looks a question up by its stable id.
func (s State) QuestionByID(id uuid.UUID) (model.StudentFacingQuestion, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return model.StudentFacingQuestion{}, false
}

func copyAnswers(in map[uuid.UUID]Answer) map[uuid.UUID]Answer {
	out := make(map[uuid.UUID]Answer, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStatuses(in map[uuid.UUID]QuestionStatus) map[uuid.UUID]QuestionStatus {
	out := make(map[uuid.UUID]QuestionStatus, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copySeqs(in map[uuid.UUID]uint64) map[uuid.UUID]uint64 {
	out := make(map[uuid.UUID]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
