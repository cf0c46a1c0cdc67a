// Command workflow-lock guards a story's gate progression against
// concurrent operators: --lock acquires a Postgres advisory lock keyed by
// story id, --check reports whether it is currently held, --advance moves
// the story to its next gate, --reset rewinds it to gate 0, and --history
// lists its checkpoints (SPEC_FULL.md §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wavehq/orchestrator/internal/database"
	"github.com/wavehq/orchestrator/pkg/domain"
	"github.com/wavehq/orchestrator/pkg/execution"
	"github.com/wavehq/orchestrator/pkg/persistence"
)

func main() {
	lock := flag.Bool("lock", false, "acquire the advisory lock for --story")
	check := flag.Bool("check", false, "report whether --story is currently locked")
	advance := flag.Bool("advance", false, "advance --story to its next gate as passed")
	reset := flag.Bool("reset", false, "reset --story to gate 0")
	confirm := flag.Bool("confirm", false, "required alongside --reset to actually perform it")
	history := flag.Bool("history", false, "print --story's checkpoint history")
	sessionID := flag.String("session", "", "session UUID owning --story")
	storyID := flag.String("story", "", "story id to operate on")
	flag.Parse()

	if *storyID == "" {
		fmt.Fprintln(os.Stderr, "workflow-lock: --story is required")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	dbCfg := database.DefaultConfig()
	dbCfg.LoadFromEnv()
	db, err := database.Connect(dbCfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflow-lock: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	code := run(ctx, db, *storyID, *sessionID, *lock, *check, *advance, *reset, *confirm, *history)
	os.Exit(code)
}

func run(ctx context.Context, db persistence.Querier, storyID, sessionIDStr string, lock, check, advance, reset, confirm, history bool) int {
	switch {
	case lock:
		return doLock(ctx, db, storyID)
	case check:
		return doCheck(ctx, db, storyID)
	case advance:
		return doAdvance(ctx, db, sessionIDStr, storyID)
	case reset:
		if !confirm {
			fmt.Fprintln(os.Stderr, "workflow-lock: --reset requires --confirm")
			return 2
		}
		return doReset(ctx, db, sessionIDStr, storyID)
	case history:
		return doHistory(ctx, db, sessionIDStr, storyID)
	default:
		fmt.Fprintln(os.Stderr, "workflow-lock: one of --lock/--check/--advance/--reset/--history is required")
		return 2
	}
}

func doLock(ctx context.Context, db persistence.Querier, storyID string) int {
	var acquired bool
	if err := db.QueryRowxContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", storyID).Scan(&acquired); err != nil {
		fmt.Fprintf(os.Stderr, "workflow-lock: lock query failed: %v\n", err)
		return 1
	}
	if !acquired {
		fmt.Printf("story %s is already locked\n", storyID)
		return 1
	}
	fmt.Printf("story %s locked\n", storyID)
	return 0
}

func doCheck(ctx context.Context, db persistence.Querier, storyID string) int {
	var locked bool
	query := `SELECT EXISTS (
		SELECT 1 FROM pg_locks l JOIN pg_stat_activity a ON l.pid = a.pid
		WHERE l.locktype = 'advisory' AND l.objid = hashtext($1)::bigint
	)`
	if err := db.QueryRowxContext(ctx, query, storyID).Scan(&locked); err != nil {
		fmt.Fprintf(os.Stderr, "workflow-lock: check query failed: %v\n", err)
		return 1
	}
	fmt.Printf("story %s locked=%v\n", storyID, locked)
	return 0
}

func doAdvance(ctx context.Context, db persistence.Querier, sessionIDStr, storyID string) int {
	sessionID, execID, story, code := resolveStory(ctx, db, sessionIDStr, storyID)
	if code != 0 {
		return code
	}
	stories := persistence.NewStoryRepository(db)
	checkpoints := persistence.NewCheckpointRepository(db)
	engine := execution.NewEngine(stories, checkpoints)

	err := engine.ExecuteGate(ctx, execID, execution.GateResult{
		Gate: story.CurrentGate, Status: execution.GatePassed,
		ACPassed: story.AcceptanceCriteriaTotal, ACTotal: story.AcceptanceCriteriaTotal,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflow-lock: advance failed: %v\n", err)
		return 1
	}
	fmt.Printf("story %s (session %s) advanced past gate %d\n", storyID, sessionID, story.CurrentGate)
	return 0
}

func doReset(ctx context.Context, db persistence.Querier, sessionIDStr, storyID string) int {
	_, execID, story, code := resolveStory(ctx, db, sessionIDStr, storyID)
	if code != 0 {
		return code
	}
	stories := persistence.NewStoryRepository(db)
	story.CurrentGate = 0
	story.Status = domain.StoryInProgress
	story.RetryCount = 0
	if err := stories.Update(ctx, story); err != nil {
		fmt.Fprintf(os.Stderr, "workflow-lock: reset failed: %v\n", err)
		return 1
	}
	fmt.Printf("story %s (execution %s) reset to gate 0\n", storyID, execID)
	return 0
}

func doHistory(ctx context.Context, db persistence.Querier, sessionIDStr, storyID string) int {
	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflow-lock: --session must be a valid UUID: %v\n", err)
		return 2
	}
	checkpoints := persistence.NewCheckpointRepository(db)
	history, err := checkpoints.ListByStory(ctx, sessionID, storyID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflow-lock: history query failed: %v\n", err)
		return 1
	}
	for _, cp := range history {
		fmt.Printf("%s  %-16s  %s  gate=%v\n", cp.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), cp.Type, cp.Name, cp.Gate)
	}
	return 0
}

func resolveStory(ctx context.Context, db persistence.Querier, sessionIDStr, storyID string) (uuid.UUID, uuid.UUID, *domain.StoryExecution, int) {
	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflow-lock: --session must be a valid UUID: %v\n", err)
		return uuid.Nil, uuid.Nil, nil, 2
	}
	stories := persistence.NewStoryRepository(db)
	story, err := stories.GetBySessionAndStoryID(ctx, sessionID, storyID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflow-lock: %v\n", err)
		return uuid.Nil, uuid.Nil, nil, 1
	}
	if story == nil {
		fmt.Fprintf(os.Stderr, "workflow-lock: story %s not found in session %s\n", storyID, sessionID)
		return uuid.Nil, uuid.Nil, nil, 1
	}
	return sessionID, story.ID, story, 0
}
