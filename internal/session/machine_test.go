package session

import (
	"testing"

	"github.com/examina/examina-backend/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPaper(n int) []model.StudentFacingQuestion {
	questions := make([]model.StudentFacingQuestion, n)
	for i := range questions {
		questions[i] = model.StudentFacingQuestion{
			ID:     uuid.New(),
			Prompt: "question",
		}
	}
	return questions
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func TestStartVisitsFirstQuestion(t *testing.T) {
	paper := testPaper(3)
	st := New(paper, 600, "")

	for _, q := range paper {
		assert.Equal(t, StatusNotVisited, st.Statuses[q.ID])
	}

	st = Reduce(st, Start{})

	assert.True(t, st.Started)
	assert.Equal(t, StatusNotAnswered, st.Statuses[paper[0].ID])
	assert.Equal(t, StatusNotVisited, st.Statuses[paper[1].ID])
}

func TestActionsBeforeStartAreNoOps(t *testing.T) {
	paper := testPaper(2)
	st := New(paper, 600, "")

	next := Reduce(st, GoToNext{})
	assert.Equal(t, 0, next.Index)

	next = Reduce(st, RecordAnswer{QuestionID: paper[0].ID, Value: Answer{SelectedOption: intPtr(1)}})
	assert.Empty(t, next.Answers)
}

func TestNavigationClampsAndVisits(t *testing.T) {
	paper := testPaper(3)
	st := Reduce(New(paper, 600, ""), Start{})

	st = Reduce(st, GoToPrevious{})
	assert.Equal(t, 0, st.Index)

	st = Reduce(st, GoToNext{})
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, StatusNotAnswered, st.Statuses[paper[1].ID])

	st = Reduce(st, JumpTo{Index: 99})
	assert.Equal(t, 2, st.Index)

	st = Reduce(st, JumpTo{Index: -5})
	assert.Equal(t, 0, st.Index)
}

func TestRecordAnswerSetsAnsweredStatus(t *testing.T) {
	paper := testPaper(2)
	st := Reduce(New(paper, 600, ""), Start{})

	st = Reduce(st, RecordAnswer{QuestionID: paper[0].ID, Value: Answer{SelectedOption: intPtr(2)}})

	require.Contains(t, st.Answers, paper[0].ID)
	assert.Equal(t, 2, *st.Answers[paper[0].ID].SelectedOption)
	assert.Equal(t, StatusAnswered, st.Statuses[paper[0].ID])
}

func TestRecordAnswerUnknownQuestionIgnored(t *testing.T) {
	paper := testPaper(1)
	st := Reduce(New(paper, 600, ""), Start{})

	next := Reduce(st, RecordAnswer{QuestionID: uuid.New(), Value: Answer{Text: strPtr("hi")}})
	assert.Empty(t, next.Answers)
}

func TestClearAnswerRevertsStatus(t *testing.T) {
	paper := testPaper(1)
	st := Reduce(New(paper, 600, ""), Start{})
	st = Reduce(st, RecordAnswer{QuestionID: paper[0].ID, Value: Answer{Text: strPtr("draft")}})

	st = Reduce(st, ClearAnswer{QuestionID: paper[0].ID})

	assert.NotContains(t, st.Answers, paper[0].ID)
	assert.Equal(t, StatusNotAnswered, st.Statuses[paper[0].ID])
}

func TestReviewMarkIsStickyAcrossAnswering(t *testing.T) {
	paper := testPaper(1)
	qid := paper[0].ID
	st := Reduce(New(paper, 600, ""), Start{})

	st = Reduce(st, ToggleReviewMark{QuestionID: qid})
	assert.Equal(t, StatusMarkedForReview, st.Statuses[qid])

	st = Reduce(st, RecordAnswer{QuestionID: qid, Value: Answer{SelectedOption: intPtr(0)}})
	assert.Equal(t, StatusMarkedForReview, st.Statuses[qid])

	st = Reduce(st, ClearAnswer{QuestionID: qid})
	assert.Equal(t, StatusMarkedForReview, st.Statuses[qid])
}

func TestToggleReviewMarkRestoresImpliedStatus(t *testing.T) {
	paper := testPaper(1)
	qid := paper[0].ID
	st := Reduce(New(paper, 600, ""), Start{})
	st = Reduce(st, RecordAnswer{QuestionID: qid, Value: Answer{SelectedOption: intPtr(1)}})

	st = Reduce(st, ToggleReviewMark{QuestionID: qid})
	st = Reduce(st, ToggleReviewMark{QuestionID: qid})

	assert.Equal(t, StatusAnswered, st.Statuses[qid])
}

func TestUpdateCodeDoesNotChangeStatus(t *testing.T) {
	paper := testPaper(1)
	qid := paper[0].ID
	st := Reduce(New(paper, 600, "python"), Start{})

	st = Reduce(st, UpdateCode{QuestionID: qid, SourceCode: "print(1)"})

	assert.Equal(t, "print(1)", st.Answers[qid].SourceCode)
	assert.Equal(t, StatusNotAnswered, st.Statuses[qid])
}

func TestStoreRunResultDiscardsStaleSeq(t *testing.T) {
	paper := testPaper(1)
	qid := paper[0].ID
	st := Reduce(New(paper, 600, "python"), Start{})

	newer := model.RunResult{
		Results: []model.TestCaseResult{{TestCaseID: "t1", IsCorrect: true}},
		Passed:  1, Total: 1,
	}
	older := model.RunResult{
		Results: []model.TestCaseResult{{TestCaseID: "t1", IsCorrect: false}},
		Passed:  0, Total: 1,
	}

	st = Reduce(st, StoreRunResult{QuestionID: qid, Seq: 2, Result: newer})
	st = Reduce(st, StoreRunResult{QuestionID: qid, Seq: 1, Result: older})

	require.NotNil(t, st.Answers[qid].LastRun)
	assert.Equal(t, 1, st.Answers[qid].LastRun.Passed)
	assert.Equal(t, StatusAnswered, st.Statuses[qid])
}

func TestStoreRunResultFailingRunIsNotAnswered(t *testing.T) {
	paper := testPaper(1)
	qid := paper[0].ID
	st := Reduce(New(paper, 600, "python"), Start{})

	st = Reduce(st, StoreRunResult{QuestionID: qid, Seq: 1, Result: model.RunResult{
		Results: []model.TestCaseResult{
			{TestCaseID: "t1", IsCorrect: true},
			{TestCaseID: "t2", IsCorrect: false},
		},
		Passed: 1, Total: 2,
	}})

	assert.Equal(t, StatusNotAnswered, st.Statuses[qid])
}

func TestSetLanguageAppliesGlobally(t *testing.T) {
	st := Reduce(New(testPaper(2), 600, "python"), Start{})
	st = Reduce(st, SetLanguage{Language: "go"})
	assert.Equal(t, "go", st.Language)
}

func TestTickExpiryFinishesAtZero(t *testing.T) {
	st := Reduce(New(testPaper(1), 2, ""), Start{})

	st = Reduce(st, Tick{})
	assert.Equal(t, 1, st.TimeLeft)
	assert.False(t, st.Finished)

	st = Reduce(st, Tick{})
	assert.Equal(t, 0, st.TimeLeft)
	assert.True(t, st.Finished)
}

func TestFinishedStateRejectsAllActions(t *testing.T) {
	paper := testPaper(2)
	st := Reduce(New(paper, 600, ""), Start{})
	st = Reduce(st, Finish{})
	require.True(t, st.Finished)

	next := Reduce(st, RecordAnswer{QuestionID: paper[0].ID, Value: Answer{Text: strPtr("late")}})
	assert.Empty(t, next.Answers)

	next = Reduce(st, GoToNext{})
	assert.Equal(t, 0, next.Index)

	next = Reduce(st, Tick{})
	assert.Equal(t, 600, next.TimeLeft)
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	paper := testPaper(2)
	st := Reduce(New(paper, 600, ""), Start{})

	_ = Reduce(st, RecordAnswer{QuestionID: paper[1].ID, Value: Answer{SelectedOption: intPtr(3)}})

	assert.NotContains(t, st.Answers, paper[1].ID)
	assert.Equal(t, StatusNotVisited, st.Statuses[paper[1].ID])
}
