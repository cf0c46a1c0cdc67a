package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
	"github.com/wavehq/orchestrator/internal/validation"
	"github.com/wavehq/orchestrator/pkg/domain"
	"github.com/wavehq/orchestrator/pkg/execution"
	"github.com/wavehq/orchestrator/pkg/shared/logging"
)

// SessionStore is the subset of pkg/persistence.SessionRepository the API
// depends on.
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
}

// TaskClearer is the subset of pkg/queue.Queue the reset endpoint uses to
// honor clear_tasks/clear_results. Nil-able: a server without Redis
// configured simply treats both options as no-ops.
type TaskClearer interface {
	ClearTasks(ctx context.Context, taskIDs []string) error
	ClearResults(ctx context.Context, taskIDs []string) error
}

// Server wires the /workflow/* HTTP surface to the execution engine, the
// story repository (for reset_to_gate), and the in-memory thread registry.
type Server struct {
	engine   *execution.Engine
	stories  execution.StoryRepository
	sessions SessionStore
	queue    TaskClearer
	registry *Registry
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer constructs a Server. queue may be nil if Redis-backed task
// queues are not configured; clear_tasks/clear_results then become no-ops.
func NewServer(engine *execution.Engine, stories execution.StoryRepository, sessions SessionStore, q TaskClearer, logger *zap.Logger) *Server {
	return &Server{
		engine:   engine,
		stories:  stories,
		sessions: sessions,
		queue:    q,
		registry: NewRegistry(),
		validate: validator.New(),
		logger:   logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperrors.GetStatusCode(err), Envelope{
		Success: false,
		Message: apperrors.SafeErrorMessage(err),
		Error:   string(apperrors.GetType(err)),
	})
}

// handleStart implements POST /workflow/start.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewValidationError("malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, apperrors.NewValidationError(err.Error()))
		return
	}
	if err := validation.ValidateStringInput("story_id", req.StoryID, 128); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	session := domain.NewSession(req.ProjectPath, req.WaveNumber, req.CostLimitUSD)
	session.StoryCount = 1
	session.Status = domain.SessionInProgress
	now := time.Now()
	session.StartedAt = &now

	if err := s.sessions.Create(ctx, session); err != nil {
		writeError(w, err)
		return
	}

	execID, err := s.engine.StartExecution(ctx, session.ID, req.StoryID, req.Requirements, "", "")
	if err != nil {
		writeError(w, err)
		return
	}

	threadID := session.ID.String()
	s.registry.put(&workflowEntry{
		ThreadID:    threadID,
		SessionID:   session.ID,
		ExecutionID: execID,
		StoryID:     req.StoryID,
		ProjectPath: req.ProjectPath,
		Status:      workflowRunning,
		CreatedAt:   now,
	})

	s.logger.Info("workflow started", logging.WorkflowFields("start", threadID).ToZapFields()...)
	writeJSON(w, http.StatusOK, StartResponse{Success: true, ThreadID: threadID, Message: "workflow started"})
}

// handleStatus implements GET /workflow/{thread_id}/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	entry, ok := s.registry.get(threadID)
	if !ok {
		writeError(w, apperrors.NewNotFoundError("workflow thread"))
		return
	}

	state, err := s.engine.GetCurrentState(r.Context(), entry.ExecutionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Success:     true,
		ThreadID:    threadID,
		StoryID:     entry.StoryID,
		ProjectPath: entry.ProjectPath,
		Status:      string(state.Status),
		CurrentGate: state.CurrentGate,
		ACPassed:    state.ACPassed,
		ACTotal:     state.ACTotal,
		CreatedAt:   entry.CreatedAt.Format(time.RFC3339),
	})
}

// handleStop implements POST /workflow/{thread_id}/stop: a graceful
// termination that transitions the story to cancelled and marks the thread
// stopped in the registry without forgetting it (status remains queryable).
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	entry, ok := s.registry.get(threadID)
	if !ok {
		writeError(w, apperrors.NewNotFoundError("workflow thread"))
		return
	}

	if err := s.engine.TransitionState(r.Context(), entry.ExecutionID, domain.StoryCancelled, "stopped via API"); err != nil {
		writeError(w, err)
		return
	}

	entry.Status = workflowStopped
	s.registry.put(entry)

	s.logger.Info("workflow stopped", logging.WorkflowFields("stop", threadID).ToZapFields()...)
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "workflow stopped"})
}

// handleReset implements POST /workflow/{thread_id}/reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	entry, ok := s.registry.get(threadID)
	if !ok {
		writeError(w, apperrors.NewNotFoundError("workflow thread"))
		return
	}

	var req ResetRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ctx := r.Context()

	if req.ResetToGate != nil {
		story, err := s.stories.GetByID(ctx, entry.ExecutionID)
		if err != nil {
			writeError(w, err)
			return
		}
		story.CurrentGate = *req.ResetToGate
		if err := s.stories.Update(ctx, story); err != nil {
			writeError(w, err)
			return
		}
	}

	if s.queue != nil {
		if req.ClearTasks {
			if err := s.queue.ClearTasks(ctx, entry.TaskIDs); err != nil {
				writeError(w, err)
				return
			}
		}
		if req.ClearResults {
			if err := s.queue.ClearResults(ctx, entry.TaskIDs); err != nil {
				writeError(w, err)
				return
			}
		}
	}

	s.logger.Info("workflow reset", logging.WorkflowFields("reset", threadID).Custom("reason", req.Reason).ToZapFields()...)
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "workflow reset"})
}

// handleList implements GET /workflows.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entries := s.registry.list()
	out := make([]StatusResponse, 0, len(entries))

	for _, entry := range entries {
		state, err := s.engine.GetCurrentState(r.Context(), entry.ExecutionID)
		if err != nil {
			continue
		}
		out = append(out, StatusResponse{
			Success:     true,
			ThreadID:    entry.ThreadID,
			StoryID:     entry.StoryID,
			ProjectPath: entry.ProjectPath,
			Status:      string(state.Status),
			CurrentGate: state.CurrentGate,
			ACPassed:    state.ACPassed,
			ACTotal:     state.ACTotal,
			CreatedAt:   entry.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, WorkflowListResponse{Success: true, Workflows: out})
}
