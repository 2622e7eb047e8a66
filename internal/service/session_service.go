package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/examina/examina-backend/internal/config"
	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Common session errors.
var (
	ErrExamNotAvailable = errors.New("exam is not available for joining")
	ErrNoActiveSession  = errors.New("no active exam session")
	ErrSessionFinished  = errors.New("exam session is already submitted")
)

// AutosaveJob is the queue payload consumed by the autosave worker.
type AutosaveJob struct {
	ExamID    uuid.UUID         `json:"exam_id"`
	StudentID int               `json:"student_id"`
	Answers   map[string]string `json:"answers"`
	SavedAt   time.Time         `json:"saved_at"`
}

// ViolationJob is the queue payload consumed by the violation worker.
type ViolationJob struct {
	ExamID     uuid.UUID `json:"exam_id"`
	StudentID  int       `json:"student_id"`
	ExitCount  int       `json:"exit_count"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SessionService handles attempt lifecycle: joining, reload recovery,
// autosave, and violation persistence fan-out.
type SessionService struct {
	sessionRepo *repository.ExamSessionRepository
	examRepo    *repository.ExamRepository
	subRepo     *repository.SubmissionRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessionRepo *repository.ExamSessionRepository,
	examRepo *repository.ExamRepository,
	subRepo *repository.SubmissionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		examRepo:    examRepo,
		subRepo:     subRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "session_service").Logger(),
	}
}

// JoinExam records the student's attempt. Joining twice is a no-op that
// returns the original attempt, so a reload or a second device never resets
// the clock or creates a duplicate.
func (s *SessionService) JoinExam(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSessionRow, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, ErrExamNotAvailable
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotAvailable
	}
	now := time.Now()
	if exam.ScheduledStart != nil && now.Before(*exam.ScheduledStart) {
		return nil, ErrExamNotAvailable
	}
	if exam.ScheduledEnd != nil && now.After(*exam.ScheduledEnd) {
		return nil, ErrExamNotAvailable
	}

	// A stored submission ends the matter regardless of session state.
	existing, err := s.subRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check submission: %w", err)
	}
	if existing != nil {
		return nil, ErrSessionFinished
	}

	if err := s.sessionRepo.Create(ctx, examID, studentID); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	row, err := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("session vanished after create for student %d exam %s", studentID, examID)
	}

	// Cache the start instant; the reload path falls back to PostgreSQL if
	// this write is lost.
	startKey := config.CacheKey.SessionStartKey(examID.String(), studentID)
	if err := s.rdb.Set(ctx, startKey, row.StartedAt.Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache session start time")
	}

	return row, nil
}

// VerifyActiveSession checks that the student has joined and not yet
// submitted. Gate for the live WebSocket stream.
func (s *SessionService) VerifyActiveSession(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSessionRow, error) {
	row, err := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if row == nil {
		return nil, ErrNoActiveSession
	}
	if row.Status == model.SessionRowSubmitted {
		return nil, ErrSessionFinished
	}
	return row, nil
}

// GetReloadState restores a reloading student: autosaved answers plus the
// authoritative remaining time computed from the original start instant. The
// start time is read from Redis with a PostgreSQL failover that self-heals
// the cache.
func (s *SessionService) GetReloadState(ctx context.Context, examID uuid.UUID, studentID int) (*model.ReloadState, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, ErrExamNotAvailable
	}

	answersKey := config.CacheKey.StudentAnswersKey(examID.String(), studentID)
	answers, err := s.rdb.HGetAll(ctx, answersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get autosaved answers: %w", err)
	}

	var startUnix int64
	startKey := config.CacheKey.SessionStartKey(examID.String(), studentID)
	val, err := s.rdb.Get(ctx, startKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Cache miss (eviction or flush): PostgreSQL is the source of
		// truth, and we self-heal the cache for the next reload.
		row, dbErr := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
		if dbErr != nil {
			return nil, fmt.Errorf("load session: %w", dbErr)
		}
		if row == nil {
			return nil, ErrNoActiveSession
		}
		startUnix = row.StartedAt.Unix()
		if healErr := s.rdb.Set(ctx, startKey, startUnix, 0).Err(); healErr != nil {
			s.log.Warn().Err(healErr).Msg("Failed to self-heal start time cache")
		}
	case err != nil:
		return nil, fmt.Errorf("get start time: %w", err)
	default:
		startUnix, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid start time in cache: %w", err)
		}
	}

	endTime := time.Unix(startUnix, 0).Add(exam.Duration())
	remaining := time.Until(endTime)
	if remaining < 0 {
		remaining = 0
	}

	return &model.ReloadState{
		ExamID:           examID,
		StudentID:        studentID,
		AutosavedAnswers: answers,
		RemainingSeconds: int(remaining.Seconds()),
	}, nil
}

// SaveAnswers stores the answer snapshot in Redis for fast reload recovery
// and queues a durable write for the autosave worker. Best-effort: the live
// session never blocks on persistence.
func (s *SessionService) SaveAnswers(ctx context.Context, examID uuid.UUID, studentID int, answers map[string]string) {
	answersKey := config.CacheKey.StudentAnswersKey(examID.String(), studentID)

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, answersKey)
	if len(answers) > 0 {
		flat := make([]interface{}, 0, len(answers)*2)
		for k, v := range answers {
			flat = append(flat, k, v)
		}
		pipe.HSet(ctx, answersKey, flat...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to autosave answers to cache")
		return
	}

	job, err := json.Marshal(AutosaveJob{
		ExamID:    examID,
		StudentID: studentID,
		Answers:   answers,
		SavedAt:   time.Now(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal autosave job")
		return
	}
	if err := s.rdb.LPush(ctx, config.WorkerKey.PersistAnswersQueue, job).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to queue autosave job")
	}
}

// RecordViolation queues a violation event for durable persistence by the
// violation worker. The live counter itself lives in Redis via the proctor
// counter store.
func (s *SessionService) RecordViolation(ctx context.Context, examID uuid.UUID, studentID, exitCount int) {
	job, err := json.Marshal(ViolationJob{
		ExamID:     examID,
		StudentID:  studentID,
		ExitCount:  exitCount,
		OccurredAt: time.Now(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal violation job")
		return
	}
	if err := s.rdb.LPush(ctx, config.WorkerKey.PersistViolationsQueue, job).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to queue violation job")
	}
}

// ClearSessionCache removes the per-attempt Redis keys after submission.
func (s *SessionService) ClearSessionCache(ctx context.Context, examID uuid.UUID, studentID int) {
	keys := []string{
		config.CacheKey.StudentAnswersKey(examID.String(), studentID),
		config.CacheKey.SessionStartKey(examID.String(), studentID),
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear session cache keys")
	}
}

// LobbyExam is an exam as shown in the student lobby, with the student's own
// progress overlaid.
type LobbyExam struct {
	model.ExamDefinition
	Joined    bool     `json:"joined"`
	Submitted bool     `json:"submitted"`
	Score     *float64 `json:"score,omitempty"`
}

// GetLobby lists exams a student can currently see: published exams within
// their schedule window, plus anything already attempted.
func (s *SessionService) GetLobby(ctx context.Context, studentID int) ([]LobbyExam, error) {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published exams: %w", err)
	}

	records, err := s.subRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	recordMap := make(map[uuid.UUID]*model.SubmissionRecord, len(records))
	for i := range records {
		recordMap[records[i].ExamID] = &records[i]
	}

	now := time.Now()
	lobby := make([]LobbyExam, 0, len(exams))
	for _, exam := range exams {
		if exam.ScheduledEnd != nil && now.After(*exam.ScheduledEnd) && recordMap[exam.ID] == nil {
			continue
		}

		entry := LobbyExam{ExamDefinition: exam}
		if rec, ok := recordMap[exam.ID]; ok {
			entry.Submitted = true
			entry.Joined = true
			entry.Score = &rec.Score
		} else {
			row, err := s.sessionRepo.GetByExamAndStudent(ctx, exam.ID, studentID)
			if err != nil {
				return nil, fmt.Errorf("load session: %w", err)
			}
			entry.Joined = row != nil
		}
		lobby = append(lobby, entry)
	}
	return lobby, nil
}
