package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/examina/examina-backend/internal/config"
	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/repository"
	"github.com/examina/examina-backend/internal/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Common exam errors.
var (
	ErrExamNotFound  = errors.New("exam not found")
	ErrNotAuthor     = errors.New("not the exam author")
	ErrNotDraft      = errors.New("exam is not in draft status")
	ErrNotPublished  = errors.New("exam is not published")
	ErrNoQuestions   = errors.New("exam has no questions")
	ErrPaperNotFound = errors.New("exam paper not cached")
)

// ExamService handles exam authoring and the published paper cache.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo *repository.ExamRepository, questionRepo *repository.QuestionRepository, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// Create inserts a new draft exam owned by the author.
func (s *ExamService) Create(ctx context.Context, authorID int, req *model.CreateExamRequest) (*model.ExamDefinition, error) {
	exam := &model.ExamDefinition{
		Title:           req.Title,
		AuthorID:        authorID,
		ExamType:        model.ExamType(req.ExamType),
		DurationMinutes: req.DurationMinutes,
		MinimumMinutes:  req.MinimumMinutes,
		ScheduledStart:  req.ScheduledStart,
		ScheduledEnd:    req.ScheduledEnd,
		DefaultLanguage: req.DefaultLanguage,
		Status:          model.ExamStatusDraft,
	}
	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	return exam, nil
}

// GetOwned fetches an exam and verifies authorship.
func (s *ExamService) GetOwned(ctx context.Context, examID uuid.UUID, authorID int) (*model.ExamDefinition, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, ErrExamNotFound
	}
	if exam.AuthorID != authorID {
		return nil, ErrNotAuthor
	}
	return exam, nil
}

// GetOwnedWithQuestions fetches an owned exam including its questions.
func (s *ExamService) GetOwnedWithQuestions(ctx context.Context, examID uuid.UUID, authorID int) (*model.ExamDefinition, error) {
	exam, err := s.GetOwned(ctx, examID, authorID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	exam.Questions = questions
	return exam, nil
}

// Update modifies a draft exam. Published exams are immutable; students may
// be sitting them.
func (s *ExamService) Update(ctx context.Context, examID uuid.UUID, authorID int, req *model.UpdateExamRequest) (*model.ExamDefinition, error) {
	exam, err := s.GetOwned(ctx, examID, authorID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrNotDraft
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.DurationMinutes > 0 {
		exam.DurationMinutes = req.DurationMinutes
	}
	if req.MinimumMinutes != nil {
		exam.MinimumMinutes = *req.MinimumMinutes
	}
	if req.ScheduledStart != nil {
		exam.ScheduledStart = req.ScheduledStart
	}
	if req.ScheduledEnd != nil {
		exam.ScheduledEnd = req.ScheduledEnd
	}
	if req.DefaultLanguage != "" {
		exam.DefaultLanguage = req.DefaultLanguage
	}

	if err := s.examRepo.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	return exam, nil
}

// Delete removes a draft exam.
func (s *ExamService) Delete(ctx context.Context, examID uuid.UUID, authorID int) error {
	exam, err := s.GetOwned(ctx, examID, authorID)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrNotDraft
	}
	return s.examRepo.Delete(ctx, examID)
}

// ListByAuthor returns an author's exams page by page.
func (s *ExamService) ListByAuthor(ctx context.Context, authorID, page, perPage int) ([]model.ExamDefinition, int, error) {
	return s.examRepo.ListByAuthorPaginated(ctx, authorID, perPage, (page-1)*perPage)
}

// ReplaceQuestions bulk-replaces a draft exam's questions.
func (s *ExamService) ReplaceQuestions(ctx context.Context, examID uuid.UUID, authorID int, req *model.ReplaceQuestionsRequest) error {
	exam, err := s.GetOwned(ctx, examID, authorID)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrNotDraft
	}

	questions := make([]model.Question, len(req.Questions))
	for i, q := range req.Questions {
		questions[i] = model.Question{
			ExamID:        examID,
			Prompt:        q.Prompt,
			OrderNum:      q.OrderNum,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			TestCases:     q.TestCases,
		}
		if questions[i].OrderNum == 0 {
			questions[i].OrderNum = i + 1
		}
	}
	return s.questionRepo.ReplaceForExam(ctx, examID, questions)
}

// Publish transitions a draft to published and warms the paper cache so the
// first joining student never hits PostgreSQL for the paper.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID, authorID int) (*model.ExamDefinition, error) {
	exam, err := s.GetOwned(ctx, examID, authorID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrNotDraft
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusPublished); err != nil {
		return nil, fmt.Errorf("publish exam: %w", err)
	}
	exam.Status = model.ExamStatusPublished
	exam.Questions = questions

	if err := s.WarmPaperCache(ctx, exam); err != nil {
		// The cache read path falls back to PostgreSQL; log and move on.
		s.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to warm paper cache")
	}

	return exam, nil
}

// Archive transitions a published exam to archived.
func (s *ExamService) Archive(ctx context.Context, examID uuid.UUID, authorID int) error {
	exam, err := s.GetOwned(ctx, examID, authorID)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusPublished {
		return ErrNotPublished
	}
	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusArchived); err != nil {
		return fmt.Errorf("archive exam: %w", err)
	}
	return s.rdb.Del(ctx, config.CacheKey.ExamPaperKey(examID.String())).Err()
}

// GetPublishedWithQuestions loads a published exam with full questions,
// grading material included. Only the live session engine calls this; the
// payload never reaches a client.
func (s *ExamService) GetPublishedWithQuestions(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, ErrExamNotFound
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrNotPublished
	}
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	exam.Questions = questions
	return exam, nil
}

// WarmPaperCache serializes the redacted paper into Redis. Questions are
// stored in authoring order; shuffling happens per load in GetPaper.
func (s *ExamService) WarmPaperCache(ctx context.Context, exam *model.ExamDefinition) error {
	paper := model.ExamPaper{
		ExamID:          exam.ID,
		Title:           exam.Title,
		ExamType:        exam.ExamType,
		DurationMinutes: exam.DurationMinutes,
		MinimumMinutes:  exam.MinimumMinutes,
		DefaultLanguage: exam.DefaultLanguage,
		Questions:       make([]model.StudentFacingQuestion, len(exam.Questions)),
	}
	for i, q := range exam.Questions {
		paper.Questions[i] = q.Redact()
	}

	payload, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.ExamPaperKey(exam.ID.String()), payload, 0).Err()
}

// WarmAllPublished re-warms the paper cache for every published exam, used on
// startup so a Redis flush never leaves papers unreachable.
func (s *ExamService) WarmAllPublished(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}
	for i := range exams {
		questions, err := s.questionRepo.ListByExam(ctx, exams[i].ID)
		if err != nil {
			return fmt.Errorf("list questions for %s: %w", exams[i].ID, err)
		}
		exams[i].Questions = questions
		if err := s.WarmPaperCache(ctx, &exams[i]); err != nil {
			return err
		}
	}
	s.log.Info().Int("count", len(exams)).Msg("Warmed paper cache for published exams")
	return nil
}

// GetPaper serves the student-facing paper with a freshly shuffled question
// order. Cache miss falls back to PostgreSQL and self-heals the cache.
func (s *ExamService) GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	key := config.CacheKey.ExamPaperKey(examID.String())
	payload, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get paper from cache: %w", err)
	}

	var paper model.ExamPaper
	if err == nil {
		if err := json.Unmarshal(payload, &paper); err != nil {
			return nil, fmt.Errorf("unmarshal cached paper: %w", err)
		}
	} else {
		// Cache miss: rebuild from PostgreSQL and self-heal.
		exam, dbErr := s.examRepo.GetByID(ctx, examID)
		if dbErr != nil {
			return nil, ErrExamNotFound
		}
		if exam.Status != model.ExamStatusPublished {
			return nil, ErrNotPublished
		}
		questions, dbErr := s.questionRepo.ListByExam(ctx, examID)
		if dbErr != nil {
			return nil, fmt.Errorf("list questions: %w", dbErr)
		}
		exam.Questions = questions
		if warmErr := s.WarmPaperCache(ctx, exam); warmErr != nil {
			s.log.Error().Err(warmErr).Msg("Failed to self-heal paper cache")
		}
		paper = model.ExamPaper{
			ExamID:          exam.ID,
			Title:           exam.Title,
			ExamType:        exam.ExamType,
			DurationMinutes: exam.DurationMinutes,
			MinimumMinutes:  exam.MinimumMinutes,
			DefaultLanguage: exam.DefaultLanguage,
			Questions:       make([]model.StudentFacingQuestion, len(questions)),
		}
		for i, q := range questions {
			paper.Questions[i] = q.Redact()
		}
	}

	paper.Questions = session.ShufflePaper(paper.Questions, session.NewPaperRNG())
	return &paper, nil
}
