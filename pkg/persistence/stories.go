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

var validStoryStatuses = map[domain.StoryStatus]bool{
	domain.StoryPending:    true,
	domain.StoryInProgress: true,
	domain.StoryReview:     true,
	domain.StoryComplete:   true,
	domain.StoryFailed:     true,
	domain.StoryCancelled:  true,
}

// StoryRepository persists StoryExecution entities.
type StoryRepository struct {
	db Querier
}

func NewStoryRepository(db Querier) *StoryRepository {
	return &StoryRepository{db: db}
}

type storyRow struct {
	ID                       uuid.UUID    `db:"id"`
	SessionID                uuid.UUID    `db:"session_id"`
	StoryID                  string       `db:"story_id"`
	Title                    string       `db:"title"`
	Domain                   string       `db:"domain"`
	Agent                    string       `db:"agent"`
	Priority                 int          `db:"priority"`
	StoryPoints              int          `db:"story_points"`
	Status                   string       `db:"status"`
	CurrentGate              int          `db:"current_gate"`
	AcceptanceCriteriaPassed int          `db:"acceptance_criteria_passed"`
	AcceptanceCriteriaTotal  int          `db:"acceptance_criteria_total"`
	RetryCount               int          `db:"retry_count"`
	FilesCreated             []byte       `db:"files_created"`
	FilesModified            []byte       `db:"files_modified"`
	BranchName               sql.NullString `db:"branch_name"`
	CommitSHA                sql.NullString `db:"commit_sha"`
	PRURL                    sql.NullString `db:"pr_url"`
	TestsPassing             sql.NullBool   `db:"tests_passing"`
	CoverageAchieved         float64        `db:"coverage_achieved"`
	ErrorMessage             sql.NullString `db:"error_message"`
	MetaData                 []byte         `db:"meta_data"`
	CreatedAt                sql.NullTime   `db:"created_at"`
	StartedAt                sql.NullTime   `db:"started_at"`
	CompletedAt              sql.NullTime   `db:"completed_at"`
	FailedAt                 sql.NullTime   `db:"failed_at"`
}

func toStoryRow(s *domain.StoryExecution) (*storyRow, error) {
	files, err := json.Marshal(s.FilesCreated)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to marshal files_created")
	}
	modified, err := json.Marshal(s.FilesModified)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to marshal files_modified")
	}
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to marshal metadata")
	}
	row := &storyRow{
		ID: s.ID, SessionID: s.SessionID, StoryID: s.StoryID, Title: s.Title,
		Domain: s.Domain, Agent: s.Agent, Priority: s.Priority, StoryPoints: s.StoryPoints,
		Status: string(s.Status), CurrentGate: s.CurrentGate,
		AcceptanceCriteriaPassed: s.AcceptanceCriteriaPassed, AcceptanceCriteriaTotal: s.AcceptanceCriteriaTotal,
		RetryCount: s.RetryCount, FilesCreated: files, FilesModified: modified,
		BranchName:       sql.NullString{String: s.BranchName, Valid: s.BranchName != ""},
		CommitSHA:        sql.NullString{String: s.CommitSHA, Valid: s.CommitSHA != ""},
		PRURL:            sql.NullString{String: s.PRURL, Valid: s.PRURL != ""},
		CoverageAchieved: s.CoverageAchieved,
		ErrorMessage:     sql.NullString{String: s.ErrorMessage, Valid: s.ErrorMessage != ""},
		MetaData:         meta,
		CreatedAt:        toNullTime(&s.CreatedAt),
		StartedAt:        toNullTime(s.StartedAt),
		CompletedAt:      toNullTime(s.CompletedAt),
		FailedAt:         toNullTime(s.FailedAt),
	}
	if s.TestsPassing != nil {
		row.TestsPassing = sql.NullBool{Bool: *s.TestsPassing, Valid: true}
	}
	return row, nil
}

func (r *storyRow) toDomain() (*domain.StoryExecution, error) {
	var filesCreated, filesModified []string
	if len(r.FilesCreated) > 0 {
		if err := json.Unmarshal(r.FilesCreated, &filesCreated); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "failed to unmarshal files_created")
		}
	}
	if len(r.FilesModified) > 0 {
		if err := json.Unmarshal(r.FilesModified, &filesModified); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "failed to unmarshal files_modified")
		}
	}
	meta := map[string]interface{}{}
	if len(r.MetaData) > 0 {
		if err := json.Unmarshal(r.MetaData, &meta); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "failed to unmarshal metadata")
		}
	}
	s := &domain.StoryExecution{
		ID: r.ID, SessionID: r.SessionID, StoryID: r.StoryID, Title: r.Title,
		Domain: r.Domain, Agent: r.Agent, Priority: r.Priority, StoryPoints: r.StoryPoints,
		Status: domain.StoryStatus(r.Status), CurrentGate: r.CurrentGate,
		AcceptanceCriteriaPassed: r.AcceptanceCriteriaPassed, AcceptanceCriteriaTotal: r.AcceptanceCriteriaTotal,
		RetryCount: r.RetryCount, FilesCreated: filesCreated, FilesModified: filesModified,
		BranchName: r.BranchName.String, CommitSHA: r.CommitSHA.String, PRURL: r.PRURL.String,
		CoverageAchieved: r.CoverageAchieved, ErrorMessage: r.ErrorMessage.String,
		Metadata:    meta,
		CreatedAt:   r.CreatedAt.Time,
		StartedAt:   fromNullTime(r.StartedAt),
		CompletedAt: fromNullTime(r.CompletedAt),
		FailedAt:    fromNullTime(r.FailedAt),
	}
	if r.TestsPassing.Valid {
		v := r.TestsPassing.Bool
		s.TestsPassing = &v
	}
	return s, nil
}

func validateStory(s *domain.StoryExecution) error {
	if s.StoryID == "" {
		return apperrors.NewValidationError("story_id is required")
	}
	if !validStoryStatuses[s.Status] {
		return apperrors.NewValidationError(fmt.Sprintf("invalid story status: %s", s.Status))
	}
	if s.RetryCount > 3 {
		return apperrors.NewValidationError("retry_count must not exceed 3 before escalation")
	}
	return nil
}

// Create validates and inserts s. The (session_id, story_id) uniqueness
// constraint is enforced by the database schema; a violation surfaces as a
// database error from the caller's driver.
func (r *StoryRepository) Create(ctx context.Context, s *domain.StoryExecution) error {
	if err := validateStory(s); err != nil {
		return err
	}
	row, err := toStoryRow(s)
	if err != nil {
		return err
	}
	const q = `INSERT INTO story_executions
		(id, session_id, story_id, title, domain, agent, priority, story_points, status, current_gate,
		 acceptance_criteria_passed, acceptance_criteria_total, retry_count, files_created, files_modified,
		 branch_name, commit_sha, pr_url, tests_passing, coverage_achieved, error_message, meta_data,
		 created_at, started_at, completed_at, failed_at)
		VALUES (:id, :session_id, :story_id, :title, :domain, :agent, :priority, :story_points, :status, :current_gate,
		 :acceptance_criteria_passed, :acceptance_criteria_total, :retry_count, :files_created, :files_modified,
		 :branch_name, :commit_sha, :pr_url, :tests_passing, :coverage_achieved, :error_message, :meta_data,
		 :created_at, :started_at, :completed_at, :failed_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, row); err != nil {
		return apperrors.NewDatabaseError("create story execution", err)
	}
	return nil
}

// Update persists every mutable field of s.
func (r *StoryRepository) Update(ctx context.Context, s *domain.StoryExecution) error {
	if err := validateStory(s); err != nil {
		return err
	}
	row, err := toStoryRow(s)
	if err != nil {
		return err
	}
	const q = `UPDATE story_executions SET
		title = :title, status = :status, current_gate = :current_gate,
		acceptance_criteria_passed = :acceptance_criteria_passed, acceptance_criteria_total = :acceptance_criteria_total,
		retry_count = :retry_count, files_created = :files_created, files_modified = :files_modified,
		branch_name = :branch_name, commit_sha = :commit_sha, pr_url = :pr_url, tests_passing = :tests_passing,
		coverage_achieved = :coverage_achieved, error_message = :error_message, meta_data = :meta_data,
		started_at = :started_at, completed_at = :completed_at, failed_at = :failed_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, row)
	if err != nil {
		return apperrors.NewDatabaseError("update story execution", err)
	}
	return requireOneRow(res, "story execution")
}

// GetByID fetches a story execution by its primary key.
func (r *StoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.StoryExecution, error) {
	var row storyRow
	const q = `SELECT * FROM story_executions WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError("story execution")
		}
		return nil, apperrors.NewDatabaseError("get story execution", err)
	}
	return row.toDomain()
}

// GetBySessionAndStoryID enforces the (session_id, story_id) uniqueness
// lookup used by start_execution's duplicate check.
func (r *StoryRepository) GetBySessionAndStoryID(ctx context.Context, sessionID uuid.UUID, storyID string) (*domain.StoryExecution, error) {
	var row storyRow
	const q = `SELECT * FROM story_executions WHERE session_id = $1 AND story_id = $2`
	if err := r.db.GetContext(ctx, &row, q, sessionID, storyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError("story execution")
		}
		return nil, apperrors.NewDatabaseError("get story execution by session and story id", err)
	}
	return row.toDomain()
}

// ListBySession returns every story execution for a session.
func (r *StoryRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.StoryExecution, error) {
	var rows []storyRow
	const q = `SELECT * FROM story_executions WHERE session_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, q, sessionID); err != nil {
		return nil, apperrors.NewDatabaseError("list story executions by session", err)
	}
	return toStories(rows)
}

// ListByGate returns every story execution currently sitting at gate g
// across all sessions.
func (r *StoryRepository) ListByGate(ctx context.Context, g int) ([]*domain.StoryExecution, error) {
	var rows []storyRow
	const q = `SELECT * FROM story_executions WHERE current_gate = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, q, g); err != nil {
		return nil, apperrors.NewDatabaseError("list story executions by gate", err)
	}
	return toStories(rows)
}

func toStories(rows []storyRow) ([]*domain.StoryExecution, error) {
	out := make([]*domain.StoryExecution, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
