package repository

import (
	"context"
	"errors"

	"github.com/examina/examina-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles student and faculty account data access.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetStudentByUsername retrieves a student by login name. Returns (nil, nil)
// when absent.
func (r *UserRepository) GetStudentByUsername(ctx context.Context, username string) (*model.Student, error) {
	var s model.Student
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, username, password_hash, created_at
		 FROM students WHERE username = $1`, username).Scan(
		&s.ID, &s.Name, &s.Username, &s.PasswordHash, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// GetStudentByID retrieves a student by id. Returns (nil, nil) when absent.
func (r *UserRepository) GetStudentByID(ctx context.Context, id int) (*model.Student, error) {
	var s model.Student
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, username, password_hash, created_at
		 FROM students WHERE id = $1`, id).Scan(
		&s.ID, &s.Name, &s.Username, &s.PasswordHash, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// GetFacultyByEmail retrieves a faculty account by email. Returns (nil, nil)
// when absent.
func (r *UserRepository) GetFacultyByEmail(ctx context.Context, email string) (*model.Faculty, error) {
	var f model.Faculty
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at
		 FROM faculty WHERE email = $1`, email).Scan(
		&f.ID, &f.Name, &f.Email, &f.PasswordHash, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

// CreateFaculty inserts a faculty account (used by the provisioning CLI).
func (r *UserRepository) CreateFaculty(ctx context.Context, f *model.Faculty) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO faculty (name, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		f.Name, f.Email, f.PasswordHash).Scan(&f.ID, &f.CreatedAt)
}

// CreateStudent inserts a student account.
func (r *UserRepository) CreateStudent(ctx context.Context, s *model.Student) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO students (name, username, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		s.Name, s.Username, s.PasswordHash).Scan(&s.ID, &s.CreatedAt)
}
