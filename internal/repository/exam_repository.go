package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/examina/examina-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamRepository handles exam definition data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, author_id, exam_type, duration_minutes, minimum_minutes,
	scheduled_start, scheduled_end, default_language, status, created_at, updated_at`

func scanExam(row interface{ Scan(...any) error }) (*model.ExamDefinition, error) {
	e := &model.ExamDefinition{}
	err := row.Scan(
		&e.ID, &e.Title, &e.AuthorID, &e.ExamType, &e.DurationMinutes, &e.MinimumMinutes,
		&e.ScheduledStart, &e.ScheduledEnd, &e.DefaultLanguage, &e.Status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetByID retrieves an exam definition without its questions.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
}

// Create inserts a new exam definition.
func (r *ExamRepository) Create(ctx context.Context, e *model.ExamDefinition) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, author_id, exam_type, duration_minutes, minimum_minutes,
		                    scheduled_start, scheduled_end, default_language, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.AuthorID, e.ExamType, e.DurationMinutes, e.MinimumMinutes,
		e.ScheduledStart, e.ScheduledEnd, e.DefaultLanguage, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update modifies a draft exam definition.
func (r *ExamRepository) Update(ctx context.Context, e *model.ExamDefinition) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, duration_minutes = $2, minimum_minutes = $3,
		     scheduled_start = $4, scheduled_end = $5, default_language = $6, updated_at = NOW()
		 WHERE id = $7`,
		e.Title, e.DurationMinutes, e.MinimumMinutes,
		e.ScheduledStart, e.ScheduledEnd, e.DefaultLanguage, e.ID)
	return err
}

// UpdateStatus changes an exam's lifecycle status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}

// Delete removes a draft exam.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	return err
}

// ListByAuthorPaginated retrieves an author's exams page by page.
func (r *ExamRepository) ListByAuthorPaginated(ctx context.Context, authorID, limit, offset int) ([]model.ExamDefinition, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exams WHERE author_id = $1`, authorID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE author_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, authorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.ExamDefinition
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, 0, err
		}
		exams = append(exams, *e)
	}
	return exams, total, rows.Err()
}

// ListPublished retrieves all published exams (cache prewarm on startup).
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.ExamDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE status = $1`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.ExamDefinition
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// QuestionRepository handles question data access. MCQ options and coding
// test cases live in jsonb columns.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam returns an exam's questions in authoring order.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, prompt, order_num, options, correct_option, test_cases
		 FROM questions
		 WHERE exam_id = $1
		 ORDER BY order_num ASC, id ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var options, testCases []byte
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Prompt, &q.OrderNum, &options, &q.CorrectOption, &testCases); err != nil {
			return nil, err
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &q.Options); err != nil {
				return nil, fmt.Errorf("unmarshal options for %s: %w", q.ID, err)
			}
		}
		if len(testCases) > 0 {
			if err := json.Unmarshal(testCases, &q.TestCases); err != nil {
				return nil, fmt.Errorf("unmarshal test cases for %s: %w", q.ID, err)
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ReplaceForExam atomically replaces all questions of an exam.
func (r *QuestionRepository) ReplaceForExam(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, examID); err != nil {
		return fmt.Errorf("delete old questions: %w", err)
	}

	for _, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("marshal options: %w", err)
		}
		testCases, err := json.Marshal(q.TestCases)
		if err != nil {
			return fmt.Errorf("marshal test cases: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO questions (exam_id, prompt, order_num, options, correct_option, test_cases)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			examID, q.Prompt, q.OrderNum, options, q.CorrectOption, testCases); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}

	return tx.Commit(ctx)
}
