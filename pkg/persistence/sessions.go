// Package persistence implements the three repositories backing the
// orchestrator's durable state: sessions, story_executions, and
// checkpoints. Every mutation happens inside a caller-supplied transaction
// so a state transition and its checkpoint write commit atomically
// (SPEC_FULL.md §4.1).
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
	"github.com/wavehq/orchestrator/pkg/domain"
)

var validSessionStatuses = map[domain.SessionStatus]bool{
	domain.SessionPending:    true,
	domain.SessionInProgress: true,
	domain.SessionCompleted:  true,
	domain.SessionFailed:     true,
	domain.SessionCancelled:  true,
}

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx, letting repositories
// accept either a pooled connection or an in-flight transaction.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// SessionRepository persists Session entities.
type SessionRepository struct {
	db Querier
}

func NewSessionRepository(db Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

type sessionRow struct {
	ID               uuid.UUID      `db:"id"`
	ProjectName      string         `db:"project_name"`
	WaveNumber       int            `db:"wave_number"`
	Status           string         `db:"status"`
	BudgetUSD        float64        `db:"budget_usd"`
	ActualCostUSD    float64        `db:"actual_cost_usd"`
	TokenCount       int64          `db:"token_count"`
	StoryCount       int            `db:"story_count"`
	StoriesCompleted int            `db:"stories_completed"`
	StoriesFailed    int            `db:"stories_failed"`
	MetaData         []byte         `db:"meta_data"`
	CreatedAt        sql.NullTime   `db:"created_at"`
	StartedAt        sql.NullTime   `db:"started_at"`
	CompletedAt      sql.NullTime   `db:"completed_at"`
	FailedAt         sql.NullTime   `db:"failed_at"`
}

func toSessionRow(s *domain.Session) (*sessionRow, error) {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to marshal session metadata")
	}
	row := &sessionRow{
		ID:               s.ID,
		ProjectName:      s.ProjectName,
		WaveNumber:       s.WaveNumber,
		Status:           string(s.Status),
		BudgetUSD:        s.BudgetUSD,
		ActualCostUSD:    s.ActualCostUSD,
		TokenCount:       s.TokenCount,
		StoryCount:       s.StoryCount,
		StoriesCompleted: s.StoriesCompleted,
		StoriesFailed:    s.StoriesFailed,
		MetaData:         meta,
		CreatedAt:        toNullTime(&s.CreatedAt),
		StartedAt:        toNullTime(s.StartedAt),
		CompletedAt:      toNullTime(s.CompletedAt),
		FailedAt:         toNullTime(s.FailedAt),
	}
	return row, nil
}

func (r *sessionRow) toDomain() (*domain.Session, error) {
	meta := map[string]interface{}{}
	if len(r.MetaData) > 0 {
		if err := json.Unmarshal(r.MetaData, &meta); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "failed to unmarshal session metadata")
		}
	}
	return &domain.Session{
		ID:               r.ID,
		ProjectName:      r.ProjectName,
		WaveNumber:       r.WaveNumber,
		Status:           domain.SessionStatus(r.Status),
		BudgetUSD:        r.BudgetUSD,
		ActualCostUSD:    r.ActualCostUSD,
		TokenCount:       r.TokenCount,
		StoryCount:       r.StoryCount,
		StoriesCompleted: r.StoriesCompleted,
		StoriesFailed:    r.StoriesFailed,
		Metadata:         meta,
		CreatedAt:        r.CreatedAt.Time,
		StartedAt:        fromNullTime(r.StartedAt),
		CompletedAt:      fromNullTime(r.CompletedAt),
		FailedAt:         fromNullTime(r.FailedAt),
	}, nil
}

// Create validates and inserts s.
func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	if err := validateSession(s); err != nil {
		return err
	}
	row, err := toSessionRow(s)
	if err != nil {
		return err
	}
	const q = `INSERT INTO sessions
		(id, project_name, wave_number, status, budget_usd, actual_cost_usd, token_count,
		 story_count, stories_completed, stories_failed, meta_data, created_at, started_at, completed_at, failed_at)
		VALUES (:id, :project_name, :wave_number, :status, :budget_usd, :actual_cost_usd, :token_count,
		 :story_count, :stories_completed, :stories_failed, :meta_data, :created_at, :started_at, :completed_at, :failed_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, row); err != nil {
		return apperrors.NewDatabaseError("create session", err)
	}
	return nil
}

// Update persists every mutable field of s, validating first.
func (r *SessionRepository) Update(ctx context.Context, s *domain.Session) error {
	if err := validateSession(s); err != nil {
		return err
	}
	if !s.InvariantHolds() {
		return apperrors.NewValidationError("stories_completed + stories_failed must not exceed story_count")
	}
	row, err := toSessionRow(s)
	if err != nil {
		return err
	}
	const q = `UPDATE sessions SET
		status = :status, budget_usd = :budget_usd, actual_cost_usd = :actual_cost_usd,
		token_count = :token_count, story_count = :story_count, stories_completed = :stories_completed,
		stories_failed = :stories_failed, meta_data = :meta_data, started_at = :started_at,
		completed_at = :completed_at, failed_at = :failed_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, row)
	if err != nil {
		return apperrors.NewDatabaseError("update session", err)
	}
	return requireOneRow(res, "session")
}

// GetByID fetches a session by id.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	var row sessionRow
	const q = `SELECT * FROM sessions WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError("session")
		}
		return nil, apperrors.NewDatabaseError("get session", err)
	}
	return row.toDomain()
}

// ListByProject returns every session for a project, most recent first.
func (r *SessionRepository) ListByProject(ctx context.Context, project string) ([]*domain.Session, error) {
	var rows []sessionRow
	const q = `SELECT * FROM sessions WHERE project_name = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &rows, q, project); err != nil {
		return nil, apperrors.NewDatabaseError("list sessions by project", err)
	}
	return toSessions(rows)
}

func toSessions(rows []sessionRow) ([]*domain.Session, error) {
	out := make([]*domain.Session, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func validateSession(s *domain.Session) error {
	if s.WaveNumber < 0 {
		return apperrors.NewValidationError("wave_number must be >= 0")
	}
	if s.BudgetUSD < 0 {
		return apperrors.NewValidationError("budget must be >= 0")
	}
	if !validSessionStatuses[s.Status] {
		return apperrors.NewValidationError(fmt.Sprintf("invalid session status: %s", s.Status))
	}
	return nil
}

func requireOneRow(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewDatabaseError("rows affected", err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(resource)
	}
	return nil
}
