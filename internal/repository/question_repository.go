package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/database"
)

// QuestionRepository Postgres quiz_questions 테이블
type QuestionRepository struct {
	db *database.DB
}

func NewQuestionRepository(db *database.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// Draw 토픽에서 무작위로 최대 count 개 선택
func (r *QuestionRepository) Draw(ctx context.Context, topic models.Topic, count int) ([]*models.Question, error) {
	query := `
		SELECT id, course, unit, career, text, options, correct_index, time_limit_seconds
		FROM quiz_questions
		WHERE course = $1 AND unit = $2 AND career = $3
		ORDER BY random()
		LIMIT $4
	`

	rows, err := r.db.QueryContext(ctx, query, topic.Course, topic.Unit, topic.Career, count)
	if err != nil {
		return nil, fmt.Errorf("failed to draw questions: %w", err)
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}

	return questions, nil
}

// FindQuestion ID로 조회
func (r *QuestionRepository) FindQuestion(ctx context.Context, id string) (*models.Question, error) {
	query := `
		SELECT id, course, unit, career, text, options, correct_index, time_limit_seconds
		FROM quiz_questions
		WHERE id = $1
	`

	q, err := scanQuestion(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Upsert 문제 등록 (seed 용)
func (r *QuestionRepository) Upsert(ctx context.Context, q *models.Question) error {
	query := `
		INSERT INTO quiz_questions (id, course, unit, career, text, options, correct_index, time_limit_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			course = EXCLUDED.course,
			unit = EXCLUDED.unit,
			career = EXCLUDED.career,
			text = EXCLUDED.text,
			options = EXCLUDED.options,
			correct_index = EXCLUDED.correct_index,
			time_limit_seconds = EXCLUDED.time_limit_seconds,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		q.ID,
		q.Topic.Course,
		q.Topic.Unit,
		q.Topic.Career,
		q.Text,
		pq.Array(q.Options),
		q.CorrectIndex,
		q.TimeLimitSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert question: %w", err)
	}
	return nil
}

// EnsureSchema 테이블이 없으면 생성
func (r *QuestionRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS quiz_questions (
			id VARCHAR(64) PRIMARY KEY,
			course VARCHAR(128) NOT NULL,
			unit VARCHAR(128) NOT NULL,
			career VARCHAR(128) NOT NULL,
			text TEXT NOT NULL,
			options TEXT[] NOT NULL,
			correct_index INTEGER NOT NULL,
			time_limit_seconds INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_quiz_questions_topic ON quiz_questions (course, unit, career);
	`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*models.Question, error) {
	q := &models.Question{}
	err := row.Scan(
		&q.ID,
		&q.Topic.Course,
		&q.Topic.Unit,
		&q.Topic.Career,
		&q.Text,
		pq.Array(&q.Options),
		&q.CorrectIndex,
		&q.TimeLimitSeconds,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan question: %w", err)
	}
	return q, nil
}
