package websocket

import (
	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart        Action = "start"
	ActionEnv          Action = "env"
	ActionAnswer       Action = "answer"
	ActionUpdateCode   Action = "update_code"
	ActionClearAnswer  Action = "clear_answer"
	ActionToggleReview Action = "toggle_review"
	ActionNext         Action = "next"
	ActionPrevious     Action = "previous"
	ActionJump         Action = "jump"
	ActionSetLanguage  Action = "set_language"
	ActionRunCode      Action = "run_code"
	ActionSubmit       Action = "submit"
	ActionPing         Action = "ping"
)

// RequestPayload carries every client action; unused fields stay empty.
type RequestPayload struct {
	Action Action `json:"action"`

	// Question-scoped actions.
	QID    string `json:"q_id,omitempty"`
	Answer string `json:"ans,omitempty"` // MCQ option index or long-answer text
	Source string `json:"source_code,omitempty"`

	// jump
	Index int `json:"index,omitempty"`

	// set_language
	Language string `json:"language,omitempty"`

	// env: the client reports raw environment flags; the server decides
	// what counts as a violation.
	Fullscreen *bool `json:"fullscreen,omitempty"`
	Visible    *bool `json:"visible,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState        Event = "state"
	EventTick         Event = "tick"
	EventWarning      Event = "warning"
	EventSecure       Event = "secure"
	EventRunResult    Event = "run_result"
	EventSubmitted    Event = "submitted"
	EventSubmitFailed Event = "submit_failed"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// StateView is the client-facing projection of the session state.
type StateView struct {
	Event    Event                         `json:"event"`
	Index    int                           `json:"index"`
	TimeLeft int                           `json:"time_left"`
	Started  bool                          `json:"started"`
	Finished bool                          `json:"finished"`
	Language string                        `json:"language,omitempty"`
	Statuses map[string]string             `json:"statuses"`
	Answers  map[string]session.Answer     `json:"answers"`
	Paper    []model.StudentFacingQuestion `json:"paper,omitempty"`
	// ExitCount is populated on the first push only, so a reloading client
	// can show the persisted violation count immediately.
	ExitCount int `json:"exit_count,omitempty"`
}

// NewStateView projects a session state. includePaper is set on the first
// push only; the paper never changes mid-session.
func NewStateView(st session.State, includePaper bool) StateView {
	view := StateView{
		Event:    EventState,
		Index:    st.Index,
		TimeLeft: st.TimeLeft,
		Started:  st.Started,
		Finished: st.Finished,
		Language: st.Language,
		Statuses: make(map[string]string, len(st.Statuses)),
		Answers:  make(map[string]session.Answer, len(st.Answers)),
	}
	for qid, status := range st.Statuses {
		view.Statuses[qid.String()] = string(status)
	}
	for qid, ans := range st.Answers {
		view.Answers[qid.String()] = ans
	}
	if includePaper {
		view.Paper = st.Questions
	}
	return view
}

// TickResponse syncs the timer each second. CountdownRemaining is -1 when no
// proctoring countdown is running.
type TickResponse struct {
	Event              Event `json:"event"`
	TimeLeft           int   `json:"time_left"`
	CountdownRemaining int   `json:"countdown_remaining"`
}

// WarningResponse announces a counted proctoring violation.
type WarningResponse struct {
	Event            Event `json:"event"`
	ExitCount        int   `json:"exit_count"`
	Remaining        int   `json:"remaining"`
	CountdownSeconds int   `json:"countdown_seconds"`
}

// SecureResponse announces a cancelled countdown after returning to secure
// mode.
type SecureResponse struct {
	Event Event `json:"event"`
}

// RunResultResponse carries the outcome of one code execution.
type RunResultResponse struct {
	Event  Event           `json:"event"`
	QID    string          `json:"q_id"`
	Seq    uint64          `json:"seq"`
	Result model.RunResult `json:"result"`
}

// SubmittedResponse carries the final record summary.
type SubmittedResponse struct {
	Event  Event                  `json:"event"`
	ID     string                 `json:"id"`
	Score  float64                `json:"score"`
	Status model.SubmissionStatus `json:"status"`
}

// SubmitFailedResponse signals a failed submission. Retryable means the
// client should offer the submit action again.
type SubmitFailedResponse struct {
	Event     Event  `json:"event"`
	Retryable bool   `json:"retryable"`
	Message   string `json:"message"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
