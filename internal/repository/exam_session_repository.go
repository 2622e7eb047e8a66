package repository

import (
	"context"
	"errors"

	"github.com/examina/examina-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamSessionRepository persists exam attempts (the durable join record).
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// Create records a join. A second join for the same (student, exam) pair is a
// no-op; the original start instant is preserved so reloading never resets
// the clock.
func (r *ExamSessionRepository) Create(ctx context.Context, examID uuid.UUID, studentID int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, student_id) DO NOTHING`,
		examID, studentID, model.SessionRowInProgress)
	return err
}

// GetByExamAndStudent returns the attempt row, or (nil, nil) when the student
// never joined.
func (r *ExamSessionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSessionRow, error) {
	var row model.ExamSessionRow
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, started_at, finished_at, status
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID).Scan(
		&row.ID, &row.ExamID, &row.StudentID, &row.StartedAt, &row.FinishedAt, &row.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// MarkSubmitted finalizes the attempt row once a submission record exists.
func (r *ExamSessionRepository) MarkSubmitted(ctx context.Context, examID uuid.UUID, studentID int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1, finished_at = NOW()
		 WHERE exam_id = $2 AND student_id = $3 AND status = $4`,
		model.SessionRowSubmitted, examID, studentID, model.SessionRowInProgress)
	return err
}
