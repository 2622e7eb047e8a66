package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/examina/examina-backend/internal/config"
	"github.com/examina/examina-backend/internal/grading"
	"github.com/examina/examina-backend/internal/live"
	"github.com/examina/examina-backend/internal/middleware"
	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/proctor"
	"github.com/examina/examina-backend/internal/repository"
	"github.com/examina/examina-backend/internal/runner"
	"github.com/examina/examina-backend/internal/service"
	"github.com/examina/examina-backend/internal/session"
	ws "github.com/examina/examina-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionWSHandler runs the live exam stream: one WebSocket per attempt,
// one controller per connection.
type SessionWSHandler struct {
	rdb            *redis.Client
	examService    *service.ExamService
	sessionService *service.SessionService
	subRepo        *repository.SubmissionRepository
	sessionRepo    *repository.ExamSessionRepository
	executor       runner.Executor
	builder        *grading.Builder
	log            zerolog.Logger
	upgrader       websocket.Upgrader
	cfg            *config.Config
}

// NewSessionWSHandler creates a new SessionWSHandler.
func NewSessionWSHandler(
	rdb *redis.Client,
	examService *service.ExamService,
	sessionService *service.SessionService,
	subRepo *repository.SubmissionRepository,
	sessionRepo *repository.ExamSessionRepository,
	executor runner.Executor,
	builder *grading.Builder,
	log zerolog.Logger,
	cfg *config.Config,
) *SessionWSHandler {
	return &SessionWSHandler{
		rdb:            rdb,
		examService:    examService,
		sessionService: sessionService,
		subRepo:        subRepo,
		sessionRepo:    sessionRepo,
		executor:       executor,
		builder:        builder,
		log:            log.With().Str("component", "session_ws_handler").Logger(),
		upgrader:       buildUpgrader(cfg.AllowedOrigins),
		cfg:            cfg,
	}
}

// Stream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Upgrades to WebSocket and runs the server-authoritative exam session.
func (h *SessionWSHandler) Stream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw, h.cfg.WSWriteTimeout, h.cfg.WSReadTimeout)
	defer conn.Close()

	studentID := claims.UserID
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("exam_id", examID.String()).
		Logger()

	// A stored submission ends the matter before any state is built.
	existing, err := h.subRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		conn.WriteError("failed to check submission state")
		return
	}
	if existing != nil {
		conn.WriteError("a submission already exists for this exam")
		return
	}

	if _, err := h.sessionService.VerifyActiveSession(ctx, examID, studentID); err != nil {
		conn.WriteError("no active session for this exam")
		return
	}

	exam, err := h.examService.GetPublishedWithQuestions(ctx, examID)
	if err != nil {
		conn.WriteError("exam is not available")
		return
	}

	paper, err := h.examService.GetPaper(ctx, examID)
	if err != nil {
		conn.WriteError("failed to load exam paper")
		return
	}

	reload, err := h.sessionService.GetReloadState(ctx, examID, studentID)
	if err != nil {
		conn.WriteError("failed to restore session state")
		return
	}
	if reload.RemainingSeconds <= 0 {
		// Out of time before connecting: the controller will auto-submit
		// on the first tick. Give it one second of budget so the tick path
		// handles it uniformly.
		reload.RemainingSeconds = 1
	}

	st := buildInitialState(exam, paper, reload)

	sink := newConnSink(conn, wsLog, func(exitCount int) {
		h.sessionService.RecordViolation(context.Background(), examID, studentID, exitCount)
	}, func() {
		h.sessionService.ClearSessionCache(context.Background(), examID, studentID)
	})

	ctrl := live.NewController(live.Config{
		Exam:         exam,
		StudentID:    studentID,
		InitialState: st,
		Counters:     proctor.NewRedisCounterStore(h.rdb),
		Executor:     h.executor,
		Builder:      h.builder,
		Submissions:  h.subRepo,
		Attempts:     h.sessionRepo,
		Autosave:     h.sessionService,
		Sink:         sink,
		Logger:       wsLog,
	})
	if err := ctrl.LoadProctorState(ctx); err != nil {
		wsLog.Error().Err(err).Msg("Failed to load violation counter")
		conn.WriteError("failed to restore proctoring state")
		return
	}

	// First push carries the paper and the persisted violation count.
	initial := ws.NewStateView(ctrl.State(), true)
	initial.ExitCount = ctrl.ExitCount()
	if err := conn.WriteTyped(initial); err != nil {
		wsLog.Error().Err(err).Msg("Failed to write initial state")
		return
	}

	go sink.writeLoop(ctx)
	go ctrl.Run(ctx)
	defer ctrl.Close()

	wsLog.Info().Msg("Student connected")
	h.readLoop(ctx, conn, wsLog, exam, ctrl)
	wsLog.Info().Msg("Student disconnected")
}

func (h *SessionWSHandler) readLoop(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, exam *model.ExamDefinition, ctrl *live.Controller) {
	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionStart:
			ctrl.Dispatch(ctx, session.Start{})

		case ws.ActionEnv:
			if msg.Fullscreen == nil || msg.Visible == nil {
				conn.WriteError("env requires fullscreen and visible flags")
				continue
			}
			ctrl.ReportEnvironment(ctx, *msg.Fullscreen, *msg.Visible)

		case ws.ActionAnswer:
			qid, ok := parseQID(conn, msg.QID)
			if !ok {
				continue
			}
			value, ok := parseAnswer(conn, exam.ExamType, msg.Answer)
			if !ok {
				continue
			}
			ctrl.Dispatch(ctx, session.RecordAnswer{QuestionID: qid, Value: value})

		case ws.ActionUpdateCode:
			qid, ok := parseQID(conn, msg.QID)
			if !ok {
				continue
			}
			ctrl.Dispatch(ctx, session.UpdateCode{QuestionID: qid, SourceCode: msg.Source})

		case ws.ActionClearAnswer:
			qid, ok := parseQID(conn, msg.QID)
			if !ok {
				continue
			}
			ctrl.Dispatch(ctx, session.ClearAnswer{QuestionID: qid})

		case ws.ActionToggleReview:
			qid, ok := parseQID(conn, msg.QID)
			if !ok {
				continue
			}
			ctrl.Dispatch(ctx, session.ToggleReviewMark{QuestionID: qid})

		case ws.ActionNext:
			ctrl.Dispatch(ctx, session.GoToNext{})

		case ws.ActionPrevious:
			ctrl.Dispatch(ctx, session.GoToPrevious{})

		case ws.ActionJump:
			ctrl.Dispatch(ctx, session.JumpTo{Index: msg.Index})

		case ws.ActionSetLanguage:
			if !runner.IsSupportedLanguage(msg.Language) {
				conn.WriteError("unsupported language: "+msg.Language)
				continue
			}
			ctrl.Dispatch(ctx, session.SetLanguage{Language: msg.Language})

		case ws.ActionRunCode:
			qid, ok := parseQID(conn, msg.QID)
			if !ok {
				continue
			}
			ctrl.RunCode(ctx, qid)

		case ws.ActionSubmit:
			ctrl.Submit()

		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})

		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: "+string(msg.Action))
		}
	}
}

func parseQID(conn *ws.Conn, raw string) (uuid.UUID, bool) {
	qid, err := uuid.Parse(raw)
	if err != nil {
		conn.WriteError("invalid q_id format")
		return uuid.Nil, false
	}
	return qid, true
}

// parseAnswer interprets the wire answer by exam type: an option index for
// MCQ, free text for long-answer exams.
func parseAnswer(conn *ws.Conn, examType model.ExamType, raw string) (session.Answer, bool) {
	switch examType {
	case model.ExamTypeMCQ:
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 {
			conn.WriteError("ans must be a non-negative option index")
			return session.Answer{}, false
		}
		return session.Answer{SelectedOption: &idx}, true
	case model.ExamTypeLongAnswer:
		return session.Answer{Text: &raw}, true
	default:
		conn.WriteError("coding answers use update_code")
		return session.Answer{}, false
	}
}

// buildInitialState assembles the pre-start session state: shuffled paper,
// remaining time from the original start instant, and restored autosaved
// answers keyed by stable question id.
func buildInitialState(exam *model.ExamDefinition, paper *model.ExamPaper, reload *model.ReloadState) session.State {
	language := exam.DefaultLanguage
	if language == "" && exam.ExamType == model.ExamTypeCoding {
		language = runner.SupportedLanguages[0]
	}
	st := session.New(paper.Questions, reload.RemainingSeconds, language)

	for raw, saved := range reload.AutosavedAnswers {
		qid, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if _, ok := st.QuestionByID(qid); !ok {
			continue
		}
		switch exam.ExamType {
		case model.ExamTypeMCQ:
			idx, err := strconv.Atoi(saved)
			if err != nil || idx < 0 {
				continue
			}
			st.Answers[qid] = session.Answer{SelectedOption: &idx}
			st.Statuses[qid] = session.StatusAnswered
		case model.ExamTypeLongAnswer:
			text := saved
			st.Answers[qid] = session.Answer{Text: &text}
			st.Statuses[qid] = session.StatusAnswered
		case model.ExamTypeCoding:
			// Restored source is not proof of a passing run; the student
			// must re-run to flip the status.
			st.Answers[qid] = session.Answer{SourceCode: saved}
		}
	}
	return st
}
