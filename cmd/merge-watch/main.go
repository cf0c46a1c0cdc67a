// Command merge-watch consumes wave:results:qa completion events and, for
// each passed QA gate, records a merge outcome on wave:events:merge
// (SPEC_FULL.md §6). It never shells out to git itself — the actual merge
// is performed by the agent that owns the worktree; this process only
// observes QA results and narrates the merge decision.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wavehq/orchestrator/pkg/domain"
	"github.com/wavehq/orchestrator/pkg/pubsub"
)

const (
	qaResultsChannel = "wave:results:qa"
	mergeEventsGroup = "merge-watch"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "log merge decisions without publishing to wave:events:merge")
	redisURL := flag.String("redis-url", "redis://localhost:6379", "Redis connection URL")
	consumer := flag.String("consumer", "merge-watch-1", "consumer name within the merge-watch group")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	opts, err := redis.ParseURL(*redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --redis-url: %v\n", err)
		os.Exit(2)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	sub := pubsub.NewChannelSubscriber(rdb, qaResultsChannel, mergeEventsGroup, *consumer)
	pub := pubsub.NewPublisher(rdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("merge-watch starting", zap.String("channel", qaResultsChannel), zap.Bool("dry_run", *dryRun))

	err = sub.Listen(ctx, func(ctx context.Context, entry pubsub.Entry) error {
		return handleQAResult(ctx, entry.Message, pub, *dryRun, logger)
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "merge-watch exited: %v\n", err)
		os.Exit(1)
	}
}

func handleQAResult(ctx context.Context, msg domain.WaveMessage, pub *pubsub.Publisher, dryRun bool, logger *zap.Logger) error {
	if msg.EventType != domain.EventGatePassed {
		return nil
	}

	storyID := msg.StoryID
	fields := []zap.Field{zap.String("story_id", storyID), zap.String("project", msg.Project)}

	if dryRun {
		logger.Info("would record merge outcome", fields...)
		return nil
	}

	payload := map[string]interface{}{
		"story_id": storyID,
		"decision": "merge_eligible",
	}
	if _, err := pub.Publish(ctx, msg.Project, domain.EventWorkflowComplete, payload, "merge-watch"); err != nil {
		logger.Warn("failed to publish merge outcome", append(fields, zap.Error(err))...)
		return err
	}

	logger.Info("recorded merge outcome", fields...)
	return nil
}
