package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
	"github.com/wavehq/orchestrator/pkg/domain"
)

// CheckpointRepository persists Checkpoint entities and assigns the
// per-session monotonic Sequence number at insert time.
type CheckpointRepository struct {
	db Querier
}

func NewCheckpointRepository(db Querier) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

type checkpointRow struct {
	ID                 uuid.UUID      `db:"id"`
	SessionID          uuid.UUID      `db:"session_id"`
	ParentCheckpointID uuid.NullUUID  `db:"parent_checkpoint_id"`
	CheckpointType     string         `db:"checkpoint_type"`
	CheckpointName     string         `db:"checkpoint_name"`
	State              []byte         `db:"state"`
	StoryID            sql.NullString `db:"story_id"`
	Gate               sql.NullString `db:"gate"`
	AgentID            sql.NullString `db:"agent_id"`
	Sequence           int64          `db:"sequence"`
	CreatedAt          sql.NullTime   `db:"created_at"`
}

func (r *checkpointRow) toDomain() (*domain.Checkpoint, error) {
	state := map[string]interface{}{}
	if len(r.State) > 0 {
		if err := json.Unmarshal(r.State, &state); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "failed to unmarshal checkpoint state")
		}
	}
	cp := &domain.Checkpoint{
		ID: r.ID, SessionID: r.SessionID, StoryID: r.StoryID.String,
		Type: domain.CheckpointType(r.CheckpointType), Name: r.CheckpointName,
		State: state, AgentID: r.AgentID.String, Sequence: r.Sequence,
		CreatedAt: r.CreatedAt.Time,
	}
	if r.ParentCheckpointID.Valid {
		id := r.ParentCheckpointID.UUID
		cp.ParentCheckpointID = &id
	}
	if r.Gate.Valid {
		g := gateNameToIndex[r.Gate.String]
		cp.Gate = &g
	}
	return cp, nil
}

// gateNameToIndex maps the persisted "gate-N" tag back to its integer index.
var gateNameToIndex = func() map[string]int {
	m := map[string]int{}
	for i := 0; i <= 9; i++ {
		m[fmt.Sprintf("gate-%d", i)] = i
	}
	return m
}()

func gateTag(g *int) sql.NullString {
	if g == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmt.Sprintf("gate-%d", *g), Valid: true}
}

// Create validates, assigns the next per-session sequence number inside the
// same statement, and inserts cp. The caller's transaction controls whether
// this commits atomically with a state-transition write.
func (r *CheckpointRepository) Create(ctx context.Context, cp *domain.Checkpoint) error {
	if !domain.IsValidCheckpointType(cp.Type) {
		return apperrors.NewValidationError(fmt.Sprintf("invalid checkpoint type: %s", cp.Type))
	}
	if cp.Gate != nil && (*cp.Gate < 0 || *cp.Gate > 9) {
		return apperrors.NewValidationError("gate must be between 0 and 9")
	}
	state, err := json.Marshal(cp.State)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to marshal checkpoint state")
	}

	const seqQ = `SELECT COALESCE(MAX(sequence), 0) + 1 FROM checkpoints WHERE session_id = $1`
	if err := r.db.GetContext(ctx, &cp.Sequence, seqQ, cp.SessionID); err != nil {
		return apperrors.NewDatabaseError("assign checkpoint sequence", err)
	}

	var parent interface{}
	if cp.ParentCheckpointID != nil {
		parent = *cp.ParentCheckpointID
	}

	const q = `INSERT INTO checkpoints
		(id, session_id, parent_checkpoint_id, checkpoint_type, checkpoint_name, state, story_id, gate, agent_id, sequence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	storyID := sql.NullString{String: cp.StoryID, Valid: cp.StoryID != ""}
	agentID := sql.NullString{String: cp.AgentID, Valid: cp.AgentID != ""}
	if _, err := r.db.ExecContext(ctx, q, cp.ID, cp.SessionID, parent, string(cp.Type), cp.Name, state,
		storyID, gateTag(cp.Gate), agentID, cp.Sequence, cp.CreatedAt); err != nil {
		return apperrors.NewDatabaseError("create checkpoint", err)
	}
	return nil
}

// ListBySession returns every checkpoint for a session, ordered by sequence
// descending (latest first).
func (r *CheckpointRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Checkpoint, error) {
	var rows []checkpointRow
	const q = `SELECT * FROM checkpoints WHERE session_id = $1 ORDER BY sequence DESC`
	if err := r.db.SelectContext(ctx, &rows, q, sessionID); err != nil {
		return nil, apperrors.NewDatabaseError("list checkpoints by session", err)
	}
	return toCheckpoints(rows)
}

// ListByStory returns every checkpoint for one story within a session,
// ordered by sequence ascending (chronological).
func (r *CheckpointRepository) ListByStory(ctx context.Context, sessionID uuid.UUID, storyID string) ([]*domain.Checkpoint, error) {
	var rows []checkpointRow
	const q = `SELECT * FROM checkpoints WHERE session_id = $1 AND story_id = $2 ORDER BY sequence ASC`
	if err := r.db.SelectContext(ctx, &rows, q, sessionID, storyID); err != nil {
		return nil, apperrors.NewDatabaseError("list checkpoints by story", err)
	}
	return toCheckpoints(rows)
}

// ListByType returns every checkpoint of type t for a session.
func (r *CheckpointRepository) ListByType(ctx context.Context, sessionID uuid.UUID, t domain.CheckpointType) ([]*domain.Checkpoint, error) {
	var rows []checkpointRow
	const q = `SELECT * FROM checkpoints WHERE session_id = $1 AND checkpoint_type = $2 ORDER BY sequence DESC`
	if err := r.db.SelectContext(ctx, &rows, q, sessionID, string(t)); err != nil {
		return nil, apperrors.NewDatabaseError("list checkpoints by type", err)
	}
	return toCheckpoints(rows)
}

// LatestBySession returns the single most recent checkpoint for a session
// (max sequence), or a not-found error if none exist.
func (r *CheckpointRepository) LatestBySession(ctx context.Context, sessionID uuid.UUID) (*domain.Checkpoint, error) {
	var row checkpointRow
	const q = `SELECT * FROM checkpoints WHERE session_id = $1 ORDER BY sequence DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &row, q, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError("checkpoint")
		}
		return nil, apperrors.NewDatabaseError("get latest checkpoint", err)
	}
	return row.toDomain()
}

// LatestByStory returns the most recent checkpoint for one story.
func (r *CheckpointRepository) LatestByStory(ctx context.Context, sessionID uuid.UUID, storyID string) (*domain.Checkpoint, error) {
	var row checkpointRow
	const q = `SELECT * FROM checkpoints WHERE session_id = $1 AND story_id = $2 ORDER BY sequence DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &row, q, sessionID, storyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError("checkpoint")
		}
		return nil, apperrors.NewDatabaseError("get latest checkpoint by story", err)
	}
	return row.toDomain()
}

// CleanupOldCheckpoints retains the `keep` most recent checkpoints for a
// session (by sequence) and deletes the rest. Property (SPEC_FULL.md §8
// invariant 4): after this call, count(session) == min(original_count, keep).
func (r *CheckpointRepository) CleanupOldCheckpoints(ctx context.Context, sessionID uuid.UUID, keep int) error {
	if keep < 0 {
		return apperrors.NewValidationError("keep must be >= 0")
	}
	const q = `DELETE FROM checkpoints WHERE session_id = $1 AND id NOT IN (
		SELECT id FROM checkpoints WHERE session_id = $1 ORDER BY sequence DESC LIMIT $2
	)`
	if _, err := r.db.ExecContext(ctx, q, sessionID, keep); err != nil {
		return apperrors.NewDatabaseError("cleanup old checkpoints", err)
	}
	return nil
}

// DefaultCheckpointRetention is the default `keep` value for
// CleanupOldCheckpoints.
const DefaultCheckpointRetention = 5

func toCheckpoints(rows []checkpointRow) ([]*domain.Checkpoint, error) {
	out := make([]*domain.Checkpoint, 0, len(rows))
	for i := range rows {
		cp, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}
