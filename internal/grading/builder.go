package grading

import (
	"context"
	"strings"
	"time"

	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/runner"
	"github.com/examina/examina-backend/internal/session"
	"github.com/rs/zerolog"
)

// AutoSubmitMeta tags a record produced by a forced finish.
type AutoSubmitMeta struct {
	// Proctoring is true when the violation ceiling or the insecure
	// countdown forced the submission; such records are marked
	// suspicious regardless of exam type.
	Proctoring     bool
	ViolationCount int
}

// Builder transforms final session state into a SubmissionRecord, computing
// per-question marks according to the exam type.
type Builder struct {
	exec runner.Executor
	log  zerolog.Logger
}

// NewBuilder creates a submission builder backed by the execution
// collaborator (used for coding exams only).
func NewBuilder(exec runner.Executor, log zerolog.Logger) *Builder {
	return &Builder{
		exec: exec,
		log:  log.With().Str("component", "submission_builder").Logger(),
	}
}

// Build grades the attempt and assembles the record. Coding questions are
// always re-executed here, even if a manual run already reported all-pass:
// client-side results are never trusted at submission time. An execution
// failure for one question contributes zero marks and never aborts the rest.
func (b *Builder) Build(ctx context.Context, st session.State, exam *model.ExamDefinition, studentID int, meta *AutoSubmitMeta) *model.SubmissionRecord {
	results := make([]model.QuestionResult, 0, len(exam.Questions))
	var totalMarks float64

	for _, q := range exam.Questions {
		var qr model.QuestionResult
		switch exam.ExamType {
		case model.ExamTypeMCQ:
			qr = gradeMCQ(q, st.Answers[q.ID])
		case model.ExamTypeLongAnswer:
			qr = gradeLongAnswer(q, st.Answers[q.ID])
		case model.ExamTypeCoding:
			qr = b.gradeCoding(ctx, q, st.Answers[q.ID], st.Language)
		}
		qr.QuestionID = q.ID
		totalMarks += qr.Marks
		results = append(results, qr)
	}

	// Mean of per-question marks; zero-question exams must not divide by
	// zero.
	var score float64
	if len(exam.Questions) > 0 {
		score = totalMarks / float64(len(exam.Questions))
	}

	record := &model.SubmissionRecord{
		StudentID:   studentID,
		ExamID:      exam.ID,
		ExamTitle:   exam.Title,
		Results:     results,
		Score:       score,
		Status:      recordStatus(exam.ExamType, meta),
		CompletedAt: time.Now(),
	}
	if meta != nil {
		record.AutoSubmitted = true
		record.ViolationCount = meta.ViolationCount
	}

	b.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("student_id", studentID).
		Float64("score", score).
		Str("status", string(record.Status)).
		Msg("Submission built")

	return record
}

func recordStatus(examType model.ExamType, meta *AutoSubmitMeta) model.SubmissionStatus {
	if meta != nil && meta.Proctoring {
		return model.SubmissionStatusSuspicious
	}
	if examType == model.ExamTypeLongAnswer {
		// Awaiting manual grading.
		return model.SubmissionStatusCompleted
	}
	return model.SubmissionStatusGraded
}

func gradeMCQ(q model.Question, ans session.Answer) model.QuestionResult {
	qr := model.QuestionResult{SelectedOption: ans.SelectedOption}
	if ans.SelectedOption != nil && q.CorrectOption != nil && *ans.SelectedOption == *q.CorrectOption {
		qr.Marks = 100
	}
	return qr
}

// gradeLongAnswer grants full credit for any non-empty answer. This is a
// deliberately generous default: the record's completed status signals that
// a human must re-grade.
func gradeLongAnswer(q model.Question, ans session.Answer) model.QuestionResult {
	qr := model.QuestionResult{AnswerText: ans.Text}
	if ans.Text != nil && strings.TrimSpace(*ans.Text) != "" {
		qr.Marks = 100
	}
	return qr
}

func (b *Builder) gradeCoding(ctx context.Context, q model.Question, ans session.Answer, language string) model.QuestionResult {
	qr := model.QuestionResult{
		SourceCode: ans.SourceCode,
		Language:   language,
		TotalCount: len(q.TestCases),
	}
	if len(q.TestCases) == 0 {
		return qr
	}

	run := runner.ExecuteOrFail(ctx, b.exec, runner.RunRequest{
		Language:   language,
		SourceCode: ans.SourceCode,
		TestCases:  q.TestCases,
	})
	if run.Passed < run.Total {
		b.log.Debug().
			Str("question_id", q.ID.String()).
			Int("passed", run.Passed).
			Int("total", run.Total).
			Msg("Coding question graded below full marks")
	}

	qr.TestResults = run.Results
	qr.PassedCount = run.Passed
	qr.TotalCount = run.Total
	qr.Marks = 100 * float64(run.Passed) / float64(run.Total)
	return qr
}
