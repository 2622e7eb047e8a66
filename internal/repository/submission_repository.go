package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/examina/examina-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubmissionRepository persists final submission records. The unique index on
// (student_id, exam_id) is the backstop for the at-most-one guarantee.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// GetByExamAndStudent fetches the zero-or-one record for the pair. Returns
// (nil, nil) when no submission exists.
func (r *SubmissionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.SubmissionRecord, error) {
	var rec model.SubmissionRecord
	var results []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, student_id, exam_id, exam_title, results, score, status,
		        auto_submitted, violation_count, completed_at
		 FROM submissions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID).Scan(
		&rec.ID, &rec.StudentID, &rec.ExamID, &rec.ExamTitle, &results, &rec.Score,
		&rec.Status, &rec.AutoSubmitted, &rec.ViolationCount, &rec.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(results, &rec.Results); err != nil {
		return nil, fmt.Errorf("unmarshal results: %w", err)
	}
	return &rec, nil
}

// Upsert writes the record, keeping the earlier one if a concurrent attempt
// already landed. ON CONFLICT DO NOTHING plus a follow-up read means a retried
// submission converges on exactly one stored record.
func (r *SubmissionRepository) Upsert(ctx context.Context, rec *model.SubmissionRecord) error {
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO submissions (student_id, exam_id, exam_title, results, score, status,
		                          auto_submitted, violation_count, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (student_id, exam_id) DO NOTHING
		 RETURNING id`,
		rec.StudentID, rec.ExamID, rec.ExamTitle, results, rec.Score, rec.Status,
		rec.AutoSubmitted, rec.ViolationCount, rec.CompletedAt).Scan(&rec.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	// Lost the race: adopt the record that won.
	existing, err := r.GetByExamAndStudent(ctx, rec.ExamID, rec.StudentID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("submission conflict but no existing record for student %d exam %s", rec.StudentID, rec.ExamID)
	}
	*rec = *existing
	return nil
}

// ListByExamPaginated returns an exam's submissions for the results view.
func (r *SubmissionRepository) ListByExamPaginated(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.SubmissionRecord, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE exam_id = $1`, examID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.student_id, s.exam_id, s.exam_title, s.results, s.score, s.status,
		        s.auto_submitted, s.violation_count, s.completed_at
		 FROM submissions s
		 WHERE s.exam_id = $1
		 ORDER BY s.completed_at DESC
		 LIMIT $2 OFFSET $3`, examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []model.SubmissionRecord
	for rows.Next() {
		var rec model.SubmissionRecord
		var results []byte
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.ExamID, &rec.ExamTitle, &results,
			&rec.Score, &rec.Status, &rec.AutoSubmitted, &rec.ViolationCount, &rec.CompletedAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(results, &rec.Results); err != nil {
			return nil, 0, fmt.Errorf("unmarshal results: %w", err)
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// ListByStudent returns a student's submission history, newest first.
func (r *SubmissionRepository) ListByStudent(ctx context.Context, studentID int) ([]model.SubmissionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, student_id, exam_id, exam_title, results, score, status,
		        auto_submitted, violation_count, completed_at
		 FROM submissions
		 WHERE student_id = $1
		 ORDER BY completed_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.SubmissionRecord
	for rows.Next() {
		var rec model.SubmissionRecord
		var results []byte
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.ExamID, &rec.ExamTitle, &results,
			&rec.Score, &rec.Status, &rec.AutoSubmitted, &rec.ViolationCount, &rec.CompletedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(results, &rec.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
