package websocket

import (
	"testing"

	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewStateViewProjectsState(t *testing.T) {
	qid := uuid.New()
	text := "an answer"
	st := session.State{
		Questions: []model.StudentFacingQuestion{{ID: qid, Prompt: "q"}},
		Index:     0,
		TimeLeft:  120,
		Started:   true,
		Language:  "python",
		Statuses:  map[uuid.UUID]session.QuestionStatus{qid: session.StatusAnswered},
		Answers:   map[uuid.UUID]session.Answer{qid: {Text: &text}},
	}

	view := NewStateView(st, true)

	assert.Equal(t, EventState, view.Event)
	assert.Equal(t, 120, view.TimeLeft)
	assert.True(t, view.Started)
	assert.Equal(t, "answered", view.Statuses[qid.String()])
	assert.Equal(t, &text, view.Answers[qid.String()].Text)
	assert.Len(t, view.Paper, 1)
}

func TestNewStateViewOmitsPaperAfterFirstPush(t *testing.T) {
	st := session.State{
		Questions: []model.StudentFacingQuestion{{ID: uuid.New()}},
	}

	view := NewStateView(st, false)

	assert.Nil(t, view.Paper)
}
