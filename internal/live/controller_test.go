package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/examina/examina-backend/internal/grading"
	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/runner"
	"github.com/examina/examina-backend/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Test doubles ────────────────────────────────────────────────────────────

type submitFailure struct {
	retryable bool
	message   string
}

type fakeSink struct {
	mu         sync.Mutex
	stateCount int
	warnings   []int
	secures    int
	runResults chan uint64
	submitted  chan *model.SubmissionRecord
	failed     chan submitFailure
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		runResults: make(chan uint64, 8),
		submitted:  make(chan *model.SubmissionRecord, 4),
		failed:     make(chan submitFailure, 4),
	}
}

func (s *fakeSink) OnState(session.State) {
	s.mu.Lock()
	s.stateCount++
	s.mu.Unlock()
}

func (s *fakeSink) OnTick(int, int) {}

func (s *fakeSink) OnWarning(exitCount, _, _ int) {
	s.mu.Lock()
	s.warnings = append(s.warnings, exitCount)
	s.mu.Unlock()
}

func (s *fakeSink) OnSecure() {
	s.mu.Lock()
	s.secures++
	s.mu.Unlock()
}

func (s *fakeSink) OnRunResult(_ uuid.UUID, seq uint64, _ model.RunResult) {
	s.runResults <- seq
}

func (s *fakeSink) OnSubmitted(rec *model.SubmissionRecord) {
	s.submitted <- rec
}

func (s *fakeSink) OnSubmitFailed(retryable bool, message string) {
	s.failed <- submitFailure{retryable: retryable, message: message}
}

func (s *fakeSink) warningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.warnings)
}

type fakeSubmissionStore struct {
	mu          sync.Mutex
	existing    *model.SubmissionRecord
	failNext    int // fail this many upserts before succeeding
	failNextGet int // fail this many lookups before succeeding
	upserts     int
	lastUpsert  *model.SubmissionRecord
	gate        chan struct{} // when set, Upsert blocks until closed
}

func (s *fakeSubmissionStore) GetByExamAndStudent(context.Context, uuid.UUID, int) (*model.SubmissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNextGet > 0 {
		s.failNextGet--
		return nil, errors.New("connection refused")
	}
	return s.existing, nil
}

func (s *fakeSubmissionStore) Upsert(_ context.Context, rec *model.SubmissionRecord) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.failNext > 0 {
		s.failNext--
		return errors.New("connection refused")
	}
	rec.ID = uuid.New()
	s.existing = rec
	s.lastUpsert = rec
	return nil
}

type fakeAttemptStore struct {
	mu        sync.Mutex
	submitted int
}

func (s *fakeAttemptStore) MarkSubmitted(context.Context, uuid.UUID, int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted++
	return nil
}

func (s *fakeAttemptStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

type memCounterStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemCounterStore() *memCounterStore {
	return &memCounterStore{counts: make(map[string]int)}
}

func (s *memCounterStore) Get(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key], nil
}

func (s *memCounterStore) Set(_ context.Context, key string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key] = count
	return nil
}

func (s *memCounterStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, key)
	return nil
}

// countingExecutor passes every test case and counts invocations.
type countingExecutor struct {
	mu    sync.Mutex
	calls int
}

func (e *countingExecutor) Execute(_ context.Context, req runner.RunRequest) (*model.RunResult, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	results := make([]model.TestCaseResult, len(req.TestCases))
	for i, tc := range req.TestCases {
		results[i] = model.TestCaseResult{TestCaseID: tc.ID, IsCorrect: true}
	}
	return &model.RunResult{Results: results, Passed: len(results), Total: len(results)}, nil
}

func (e *countingExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// ─── Harness ─────────────────────────────────────────────────────────────────

type harness struct {
	ctrl  *Controller
	sink  *fakeSink
	subs  *fakeSubmissionStore
	atts  *fakeAttemptStore
	exec  *countingExecutor
	store *memCounterStore
}

func intPtr(n int) *int { return &n }

func mcqExamDef(correct int) *model.ExamDefinition {
	return &model.ExamDefinition{
		ID:              uuid.New(),
		Title:           "Data Structures Quiz",
		ExamType:        model.ExamTypeMCQ,
		DurationMinutes: 60,
		MinimumMinutes:  30,
		Status:          model.ExamStatusPublished,
		Questions: []model.Question{
			{ID: uuid.New(), Prompt: "pick one", Options: []string{"a", "b", "c"}, CorrectOption: intPtr(correct)},
		},
	}
}

func startedState(exam *model.ExamDefinition, timeLeft int) session.State {
	paper := make([]model.StudentFacingQuestion, len(exam.Questions))
	for i, q := range exam.Questions {
		paper[i] = q.Redact()
	}
	return session.Reduce(session.New(paper, timeLeft, exam.DefaultLanguage), session.Start{})
}

func newHarness(t *testing.T, exam *model.ExamDefinition, st session.State) *harness {
	t.Helper()
	h := &harness{
		sink:  newFakeSink(),
		subs:  &fakeSubmissionStore{},
		atts:  &fakeAttemptStore{},
		exec:  &countingExecutor{},
		store: newMemCounterStore(),
	}
	h.ctrl = NewController(Config{
		Exam:         exam,
		StudentID:    7,
		InitialState: st,
		Counters:     h.store,
		Executor:     h.exec,
		Builder:      grading.NewBuilder(h.exec, zerolog.Nop()),
		Submissions:  h.subs,
		Attempts:     h.atts,
		Sink:         h.sink,
		Logger:       zerolog.Nop(),
	})
	t.Cleanup(h.ctrl.Close)
	return h
}

func waitSubmitted(t *testing.T, sink *fakeSink) *model.SubmissionRecord {
	t.Helper()
	select {
	case rec := <-sink.submitted:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for submission")
		return nil
	}
}

func waitFailed(t *testing.T, sink *fakeSink) submitFailure {
	t.Helper()
	select {
	case f := <-sink.failed:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for submit failure")
		return submitFailure{}
	}
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestSubmitRejectedBeforeMinimumTime(t *testing.T) {
	exam := mcqExamDef(0)
	// Full hour remaining: nothing has elapsed yet.
	h := newHarness(t, exam, startedState(exam, 3600))

	h.ctrl.Submit()

	f := waitFailed(t, h.sink)
	assert.False(t, f.retryable)
	assert.Equal(t, 0, h.subs.upserts)
}

func TestManualSubmitGradesAndFinalizes(t *testing.T) {
	exam := mcqExamDef(1)
	st := startedState(exam, 60) // 59 minutes elapsed, past the gate
	qid := exam.Questions[0].ID
	st = session.Reduce(st, session.RecordAnswer{QuestionID: qid, Value: session.Answer{SelectedOption: intPtr(1)}})
	h := newHarness(t, exam, st)

	h.ctrl.Submit()

	rec := waitSubmitted(t, h.sink)
	assert.Equal(t, float64(100), rec.Score)
	assert.Equal(t, model.SubmissionStatusGraded, rec.Status)
	assert.False(t, rec.AutoSubmitted)
	assert.Equal(t, 1, h.atts.count())
	assert.True(t, h.ctrl.State().Finished)
}

func TestSecondSubmitAfterCompletionIsIgnored(t *testing.T) {
	exam := mcqExamDef(0)
	h := newHarness(t, exam, startedState(exam, 60))

	h.ctrl.Submit()
	waitSubmitted(t, h.sink)

	h.ctrl.Submit()

	select {
	case <-h.sink.submitted:
		t.Fatal("submission ran twice")
	case <-h.sink.failed:
		t.Fatal("completed submit must be silently ignored")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 1, h.subs.upserts)
}

func TestTimerExpiryAutoSubmits(t *testing.T) {
	exam := mcqExamDef(0)
	h := newHarness(t, exam, startedState(exam, 1))

	h.ctrl.tick(context.Background())

	rec := waitSubmitted(t, h.sink)
	assert.True(t, rec.AutoSubmitted)
	assert.Equal(t, model.SubmissionStatusGraded, rec.Status)
	assert.Equal(t, 0, rec.ViolationCount)
	st := h.ctrl.State()
	assert.True(t, st.Finished)
	assert.Equal(t, 0, st.TimeLeft)
}

func TestViolationCeilingForcesSuspiciousSubmission(t *testing.T) {
	exam := mcqExamDef(0)
	h := newHarness(t, exam, startedState(exam, 3600))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		h.ctrl.ReportEnvironment(ctx, true, true)
		h.ctrl.ReportEnvironment(ctx, false, true)
	}
	require.Equal(t, 5, h.sink.warningCount())
	require.Equal(t, 5, h.ctrl.ExitCount())

	// The sixth exit skips the countdown and submits immediately.
	h.ctrl.ReportEnvironment(ctx, true, true)
	h.ctrl.ReportEnvironment(ctx, false, true)

	rec := waitSubmitted(t, h.sink)
	assert.Equal(t, model.SubmissionStatusSuspicious, rec.Status)
	assert.True(t, rec.AutoSubmitted)
	assert.Equal(t, 6, rec.ViolationCount)
}

func TestInsecureCountdownExpiryForcesSubmission(t *testing.T) {
	exam := mcqExamDef(0)
	h := newHarness(t, exam, startedState(exam, 3600))
	ctx := context.Background()

	h.ctrl.ReportEnvironment(ctx, true, true)
	h.ctrl.ReportEnvironment(ctx, false, true)
	require.Equal(t, 1, h.ctrl.ExitCount())

	// Stay insecure through the whole countdown.
	for i := 0; i < 31; i++ {
		h.ctrl.tick(ctx)
	}

	rec := waitSubmitted(t, h.sink)
	assert.Equal(t, model.SubmissionStatusSuspicious, rec.Status)
	assert.Equal(t, 1, rec.ViolationCount)
}

func TestFailedPersistenceIsRetryableWithoutRegrading(t *testing.T) {
	exam := mcqExamDef(0)
	exam.ExamType = model.ExamTypeCoding
	exam.Questions[0].CorrectOption = nil
	exam.Questions[0].TestCases = []model.TestCase{{ID: "t1", Input: "x", ExpectedOutput: "y"}}

	st := startedState(exam, 60)
	st = session.Reduce(st, session.UpdateCode{QuestionID: exam.Questions[0].ID, SourceCode: "print('y')"})
	h := newHarness(t, exam, st)
	h.subs.failNext = 1

	h.ctrl.Submit()
	f := waitFailed(t, h.sink)
	assert.True(t, f.retryable)
	require.Equal(t, 1, h.exec.callCount())

	// Retry must reuse the already-built record instead of re-executing.
	h.ctrl.Submit()
	rec := waitSubmitted(t, h.sink)

	assert.Equal(t, 1, h.exec.callCount())
	assert.Equal(t, 2, h.subs.upserts)
	assert.Equal(t, float64(100), rec.Score)
}

func TestRetryAfterTransientFailureKeepsManualProvenance(t *testing.T) {
	exam := mcqExamDef(0)
	h := newHarness(t, exam, startedState(exam, 60))
	// Fail before the record is even built, so the retry rebuilds it.
	h.subs.failNextGet = 1

	h.ctrl.Submit()
	f := waitFailed(t, h.sink)
	assert.True(t, f.retryable)

	// A clock tick between failure and retry must not resubmit on its own.
	h.ctrl.tick(context.Background())
	select {
	case <-h.sink.submitted:
		t.Fatal("tick resubmitted a failed manual submission")
	case <-h.sink.failed:
		t.Fatal("tick re-ran the pipeline after a failed submission")
	case <-time.After(100 * time.Millisecond):
	}

	h.ctrl.Submit()
	rec := waitSubmitted(t, h.sink)

	assert.False(t, rec.AutoSubmitted)
	assert.Equal(t, 0, rec.ViolationCount)
	assert.Equal(t, model.SubmissionStatusGraded, rec.Status)
	assert.Equal(t, 1, h.subs.upserts)
}

func TestDuplicateSubmitWhileInFlightIsNoOp(t *testing.T) {
	exam := mcqExamDef(0)
	h := newHarness(t, exam, startedState(exam, 60))
	gate := make(chan struct{})
	h.subs.gate = gate

	h.ctrl.Submit()
	h.ctrl.Submit() // first one is still writing

	select {
	case f := <-h.sink.failed:
		t.Fatalf("duplicate submit surfaced an error: %s", f.message)
	case <-time.After(100 * time.Millisecond):
	}

	close(gate)
	waitSubmitted(t, h.sink)
	assert.Equal(t, 1, h.subs.upserts)
}

func TestExistingRecordIsAdoptedWithoutRebuilding(t *testing.T) {
	exam := mcqExamDef(0)
	prior := &model.SubmissionRecord{
		ID:        uuid.New(),
		StudentID: 7,
		ExamID:    exam.ID,
		Score:     85,
		Status:    model.SubmissionStatusGraded,
	}
	h := newHarness(t, exam, startedState(exam, 60))
	h.subs.existing = prior

	h.ctrl.Submit()

	rec := waitSubmitted(t, h.sink)
	assert.Equal(t, prior.ID, rec.ID)
	assert.Equal(t, float64(85), rec.Score)
	assert.Equal(t, 0, h.subs.upserts)
	assert.Equal(t, 1, h.atts.count())
}

func TestFinalizeClearsViolationCounter(t *testing.T) {
	exam := mcqExamDef(0)
	h := newHarness(t, exam, startedState(exam, 60))
	ctx := context.Background()

	h.ctrl.ReportEnvironment(ctx, true, true)
	h.ctrl.ReportEnvironment(ctx, false, true)
	require.Equal(t, 1, h.ctrl.ExitCount())

	h.ctrl.Submit()
	waitSubmitted(t, h.sink)

	h.store.mu.Lock()
	remaining := len(h.store.counts)
	h.store.mu.Unlock()
	assert.Equal(t, 0, remaining)
}

func TestRunCodeDeliversResultAndUpdatesState(t *testing.T) {
	exam := mcqExamDef(0)
	exam.ExamType = model.ExamTypeCoding
	exam.Questions[0].CorrectOption = nil
	exam.Questions[0].TestCases = []model.TestCase{{ID: "t1", Input: "1", ExpectedOutput: "1"}}
	qid := exam.Questions[0].ID

	h := newHarness(t, exam, startedState(exam, 3600))
	ctx := context.Background()
	h.ctrl.Dispatch(ctx, session.UpdateCode{QuestionID: qid, SourceCode: "print(input())"})

	h.ctrl.RunCode(ctx, qid)

	select {
	case seq := <-h.sink.runResults:
		assert.Equal(t, uint64(1), seq)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run result")
	}

	st := h.ctrl.State()
	require.NotNil(t, st.Answers[qid].LastRun)
	assert.True(t, st.Answers[qid].LastRun.AllPassed())
	assert.Equal(t, session.StatusAnswered, st.Statuses[qid])
}

func TestRunCodeIgnoredForUnknownQuestion(t *testing.T) {
	exam := mcqExamDef(0)
	h := newHarness(t, exam, startedState(exam, 3600))

	h.ctrl.RunCode(context.Background(), uuid.New())

	select {
	case <-h.sink.runResults:
		t.Fatal("unexpected run result")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 0, h.exec.callCount())
}

func TestDispatchAfterSubmissionIsIgnored(t *testing.T) {
	exam := mcqExamDef(0)
	qid := exam.Questions[0].ID
	h := newHarness(t, exam, startedState(exam, 60))

	h.ctrl.Submit()
	waitSubmitted(t, h.sink)

	h.ctrl.Dispatch(context.Background(), session.RecordAnswer{
		QuestionID: qid,
		Value:      session.Answer{SelectedOption: intPtr(2)},
	})

	assert.Empty(t, h.ctrl.State().Answers)
}
