package live

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/examina/examina-backend/internal/config"
	"github.com/examina/examina-backend/internal/grading"
	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/proctor"
	"github.com/examina/examina-backend/internal/runner"
	"github.com/examina/examina-backend/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Trigger identifies what caused a submission.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerTimer   Trigger = "timer"
	TriggerProctor Trigger = "proctor"
)

// Sink receives session events for delivery to the student's connection.
// Implementations must be non-blocking; the controller invokes them while
// holding its lock.
type Sink interface {
	OnState(st session.State)
	OnTick(timeLeft, countdownRemaining int)
	OnWarning(exitCount, remaining, countdownSeconds int)
	OnSecure()
	OnRunResult(questionID uuid.UUID, seq uint64, result model.RunResult)
	OnSubmitted(record *model.SubmissionRecord)
	OnSubmitFailed(retryable bool, message string)
}

// SubmissionStore is the slice of the persistence layer the controller needs
// to finalize an attempt.
type SubmissionStore interface {
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.SubmissionRecord, error)
	Upsert(ctx context.Context, rec *model.SubmissionRecord) error
}

// AttemptStore finalizes the durable attempt row.
type AttemptStore interface {
	MarkSubmitted(ctx context.Context, examID uuid.UUID, studentID int) error
}

// Autosaver persists in-progress answers so a reload can restore them. Calls
// are best-effort; failures never interrupt the session.
type Autosaver interface {
	SaveAnswers(ctx context.Context, examID uuid.UUID, studentID int, answers map[string]string)
}

// Config wires a Controller's collaborators.
type Config struct {
	Exam         *model.ExamDefinition
	StudentID    int
	InitialState session.State
	Counters     proctor.CounterStore
	Executor     runner.Executor
	Builder      *grading.Builder
	Submissions  SubmissionStore
	Attempts     AttemptStore
	Autosave     Autosaver
	Sink         Sink
	Logger       zerolog.Logger
}

// Controller owns one student's live exam attempt. It serializes every
// mutation of the session state behind a mutex, drives the shared one-second
// clock for the exam timer and the proctoring countdown, and runs the
// submission pipeline. All escalation paths (manual submit, timer expiry,
// violation ceiling, insecure countdown) converge on the same submit path.
type Controller struct {
	mu sync.Mutex

	exam      *model.ExamDefinition
	studentID int
	st        session.State
	questions map[uuid.UUID]model.Question

	monitor  *proctor.Monitor
	exec     runner.Executor
	builder  *grading.Builder
	subs     SubmissionStore
	attempts AttemptStore
	autosave Autosaver
	sink     Sink
	log      zerolog.Logger

	runSeq uint64 // monotonic run sequence, shared across questions

	submitInFlight bool
	submitted      bool
	// pendingRecord survives a failed persistence attempt so a retry does
	// not re-execute coding questions; pendingTrigger keeps the cause of the
	// attempt that froze the state so a retried record carries the same
	// provenance.
	pendingRecord  *model.SubmissionRecord
	pendingTrigger Trigger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewController builds a controller around an already-loaded initial state
// and wires the proctoring monitor to it.
func NewController(cfg Config) *Controller {
	c := &Controller{
		exam:      cfg.Exam,
		studentID: cfg.StudentID,
		st:        cfg.InitialState,
		questions: make(map[uuid.UUID]model.Question, len(cfg.Exam.Questions)),
		exec:      cfg.Executor,
		builder:   cfg.Builder,
		subs:      cfg.Submissions,
		attempts:  cfg.Attempts,
		autosave:  cfg.Autosave,
		sink:      cfg.Sink,
		log: cfg.Logger.With().
			Str("component", "session_controller").
			Str("exam_id", cfg.Exam.ID.String()).
			Int("student_id", cfg.StudentID).
			Logger(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, q := range cfg.Exam.Questions {
		c.questions[q.ID] = q
	}

	counterKey := config.CacheKey.ViolationCountKey(cfg.Exam.ID.String(), cfg.StudentID)
	c.monitor = proctor.NewMonitor(cfg.Counters, counterKey, c.activeLocked, proctor.Callbacks{
		OnWarning:    c.sink.OnWarning,
		OnSecure:     c.sink.OnSecure,
		OnAutoSubmit: c.autoSubmitLocked,
	}, cfg.Logger)

	return c
}

// LoadProctorState restores the persisted violation count before the session
// starts, so a page reload never resets the counter.
func (c *Controller) LoadProctorState(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitor.Load(ctx)
}

// ExitCount returns the current proctoring violation count.
func (c *Controller) ExitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitor.ExitCount()
}

// Run starts the one-second clock and blocks until Close is called or the
// context ends. The caller runs it on its own goroutine.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// Close stops the clock. Safe to call more than once.
func (c *Controller) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Done is closed when the clock loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns a snapshot of the current session state.
func (c *Controller) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// activeLocked reports whether the attempt is running. It backs the monitor's
// active check and so always runs under c.mu.
func (c *Controller) activeLocked() bool {
	return c.st.Started && !c.st.Finished && !c.submitted
}

// Dispatch applies a navigation or answering action and pushes the new state
// to the sink. Answer-bearing actions also trigger an autosave.
func (c *Controller) Dispatch(ctx context.Context, a session.Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitted {
		return
	}
	c.st = session.Reduce(c.st, a)
	c.sink.OnState(c.st)

	switch a.(type) {
	case session.RecordAnswer, session.UpdateCode, session.ClearAnswer:
		c.autosaveLocked(ctx)
	}
}

// ReportEnvironment feeds full-screen and visibility flags to the proctoring
// monitor. Escalation callbacks fire synchronously from here.
func (c *Controller) ReportEnvironment(ctx context.Context, fullscreen, visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.monitor.Report(ctx, fullscreen, visible)
}

// RunCode executes the current source of a coding question against its test
// cases asynchronously. The sequence number lets the reducer discard results
// of runs that were superseded before completing.
func (c *Controller) RunCode(ctx context.Context, questionID uuid.UUID) {
	c.mu.Lock()
	if !c.st.Started || c.st.Finished {
		c.mu.Unlock()
		return
	}
	q, ok := c.questions[questionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.runSeq++
	seq := c.runSeq
	req := runner.RunRequest{
		Language:   c.st.Language,
		SourceCode: c.st.Answers[questionID].SourceCode,
		TestCases:  q.TestCases,
	}
	c.mu.Unlock()

	go func() {
		result := runner.ExecuteOrFail(ctx, c.exec, req)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.st.Finished {
			return // run completed after the exam ended
		}
		if seq < c.st.RunSeqs[questionID] {
			c.log.Debug().Uint64("seq", seq).Msg("Discarded stale run result")
			return
		}
		c.st = session.Reduce(c.st, session.StoreRunResult{
			QuestionID: questionID,
			Seq:        seq,
			Result:     *result,
		})
		c.sink.OnRunResult(questionID, seq, *result)
		c.sink.OnState(c.st)
	}()
}

// Submit handles an explicit submit request from the student. The minimum
// elapsed time gate applies only here; forced submissions bypass it.
func (c *Controller) Submit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.st.Started || c.submitted {
		return
	}
	elapsed := c.exam.Duration() - time.Duration(c.st.TimeLeft)*time.Second
	if !c.st.Finished && elapsed < c.exam.MinimumTime() {
		c.sink.OnSubmitFailed(false, "minimum exam time has not elapsed")
		return
	}
	c.submitLocked(TriggerManual)
}

// tick advances both clocks. Timer expiry converges on the forced-submit
// path only on the tick that actually expires the timer; a state left
// finished by an earlier failed persistence attempt is not resubmitted here,
// retrying stays an explicit action.
func (c *Controller) tick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.st.Started || c.st.Finished || c.submitted || c.submitInFlight {
		return
	}

	c.st = session.Reduce(c.st, session.Tick{})
	if c.st.Finished {
		c.log.Info().Msg("Exam time expired, auto-submitting")
		c.submitLocked(TriggerTimer)
		return
	}

	c.monitor.Tick()
	if c.submitInFlight || c.submitted {
		return // the countdown just forced a submit
	}
	c.sink.OnTick(c.st.TimeLeft, c.monitor.CountdownRemaining())
}

// autoSubmitLocked is the monitor's escalation callback. The monitor only
// fires it from ReportEnvironment or tick, so c.mu is already held.
func (c *Controller) autoSubmitLocked(violations int) {
	if c.submitted || c.submitInFlight {
		return
	}
	c.log.Warn().Int("violations", violations).Msg("Proctoring forced submission")
	c.submitLocked(TriggerProctor)
}

// submitLocked freezes the state and hands off to the asynchronous
// persistence pipeline. A submit while one is already in flight is a silent
// no-op; the pipeline reports its own outcome. Callers hold c.mu.
func (c *Controller) submitLocked(trigger Trigger) {
	if c.submitInFlight || c.submitted {
		return
	}
	c.submitInFlight = true
	if c.pendingTrigger == "" {
		c.pendingTrigger = trigger
	}
	c.st = session.Reduce(c.st, session.Finish{})
	c.sink.OnState(c.st)

	// The pipeline deliberately detaches from the connection context: once
	// a submission is triggered it must complete even if the socket drops.
	go c.persist(context.Background(), c.st, c.pendingTrigger)
}

// persist grades (re-executing coding questions), writes the record, and
// finalizes. On failure the built record is kept so a retry only repeats the
// write, and the in-flight flag is released so the student can retry.
func (c *Controller) persist(ctx context.Context, st session.State, trigger Trigger) {
	// An earlier attempt may already have stored a record (e.g. the
	// connection dropped after the write). Converge on it.
	existing, err := c.subs.GetByExamAndStudent(ctx, c.exam.ID, c.studentID)
	if err != nil {
		c.failSubmit(err)
		return
	}
	if existing != nil {
		c.finalize(ctx, existing)
		return
	}

	c.mu.Lock()
	record := c.pendingRecord
	violations := c.monitor.ExitCount()
	c.mu.Unlock()

	if record == nil {
		var meta *grading.AutoSubmitMeta
		switch trigger {
		case TriggerTimer:
			meta = &grading.AutoSubmitMeta{ViolationCount: violations}
		case TriggerProctor:
			meta = &grading.AutoSubmitMeta{Proctoring: true, ViolationCount: violations}
		}
		record = c.builder.Build(ctx, st, c.exam, c.studentID, meta)

		c.mu.Lock()
		c.pendingRecord = record
		c.mu.Unlock()
	}

	if err := c.subs.Upsert(ctx, record); err != nil {
		c.failSubmit(err)
		return
	}
	c.finalize(ctx, record)
}

func (c *Controller) failSubmit(err error) {
	c.log.Error().Err(err).Msg("Submission persistence failed")
	c.mu.Lock()
	c.submitInFlight = false
	c.mu.Unlock()
	c.sink.OnSubmitFailed(true, "failed to store submission, please retry")
}

func (c *Controller) finalize(ctx context.Context, record *model.SubmissionRecord) {
	if err := c.attempts.MarkSubmitted(ctx, c.exam.ID, c.studentID); err != nil {
		c.log.Error().Err(err).Msg("Failed to finalize attempt row")
	}

	c.mu.Lock()
	c.submitInFlight = false
	c.submitted = true
	c.pendingRecord = nil
	c.pendingTrigger = ""
	if err := c.monitor.Clear(ctx); err != nil {
		c.log.Error().Err(err).Msg("Failed to clear violation counter")
	}
	c.mu.Unlock()

	c.log.Info().
		Str("submission_id", record.ID.String()).
		Str("status", string(record.Status)).
		Float64("score", record.Score).
		Msg("Submission stored")
	c.sink.OnSubmitted(record)
	c.Close()
}

// autosaveLocked snapshots answers into the wire-friendly map the reload
// endpoint serves. Callers hold c.mu.
func (c *Controller) autosaveLocked(ctx context.Context) {
	if c.autosave == nil {
		return
	}
	answers := make(map[string]string, len(c.st.Answers))
	for qid, ans := range c.st.Answers {
		switch {
		case ans.SelectedOption != nil:
			answers[qid.String()] = strconv.Itoa(*ans.SelectedOption)
		case ans.Text != nil:
			answers[qid.String()] = *ans.Text
		case ans.SourceCode != "":
			answers[qid.String()] = ans.SourceCode
		}
	}
	c.autosave.SaveAnswers(ctx, c.exam.ID, c.studentID, answers)
}
