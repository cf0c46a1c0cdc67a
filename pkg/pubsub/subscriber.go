package pubsub

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
	"github.com/wavehq/orchestrator/pkg/domain"
	"github.com/wavehq/orchestrator/pkg/metrics"
)

// Entry is one delivered stream record: its Redis Stream ID (needed for
// Ack) plus the decoded WaveMessage.
type Entry struct {
	ID      string
	Message domain.WaveMessage
}

// Subscriber reads a single stream through a named consumer group so that
// multiple instances of the same worker share load without duplicate
// delivery (SPEC_FULL.md §5 shared-resource policy).
type Subscriber struct {
	rdb      *redis.Client
	project  string
	channel  string
	group    string
	consumer string

	groupReady bool
}

// NewSubscriber opens a subscriber on project's general signal stream.
func NewSubscriber(rdb *redis.Client, project, group, consumer string) *Subscriber {
	return &Subscriber{rdb: rdb, project: project, channel: signalsChannel(project), group: group, consumer: consumer}
}

// NewAgentSubscriber opens a subscriber on one agent's direct-message
// stream.
func NewAgentSubscriber(rdb *redis.Client, project, agentID, group, consumer string) *Subscriber {
	return &Subscriber{rdb: rdb, project: project, channel: agentChannel(project, agentID), group: group, consumer: consumer}
}

// NewGateSubscriber opens a subscriber on one gate's stream.
func NewGateSubscriber(rdb *redis.Client, project, gateName, group, consumer string) *Subscriber {
	return &Subscriber{rdb: rdb, project: project, channel: gateChannel(project, gateName), group: group, consumer: consumer}
}

// NewDeadLetterSubscriber opens a subscriber on a project's dead-letter
// stream, for audit tooling and tests.
func NewDeadLetterSubscriber(rdb *redis.Client, project, group, consumer string) *Subscriber {
	return &Subscriber{rdb: rdb, project: project, channel: deadLetterChannel(project), group: group, consumer: consumer}
}

// NewChannelSubscriber opens a subscriber on an explicit, non-per-project
// stream name — the merge watcher's wave:results:qa and wave:events:merge
// channels are fixed names rather than the {project}-templated ones above.
func NewChannelSubscriber(rdb *redis.Client, channel, group, consumer string) *Subscriber {
	return &Subscriber{rdb: rdb, channel: channel, group: group, consumer: consumer}
}

func (s *Subscriber) ensureGroup(ctx context.Context) error {
	if s.groupReady {
		return nil
	}
	err := s.rdb.XGroupCreateMkStream(ctx, s.channel, s.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to create consumer group")
	}
	s.groupReady = true
	return nil
}

// Read blocks up to block (0 means indefinitely, bounded by ctx) waiting
// for up to count new entries via XReadGroup.
func (s *Subscriber) Read(ctx context.Context, block time.Duration, count int64) ([]Entry, error) {
	if err := s.ensureGroup(ctx); err != nil {
		return nil, err
	}

	res, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.channel, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to read from stream")
	}

	var entries []Entry
	for _, stream := range res {
		for _, msg := range stream.Messages {
			wm, err := fromStreamFields(msg.Values)
			if err != nil {
				continue
			}
			entries = append(entries, Entry{ID: msg.ID, Message: wm})
		}
	}
	return entries, nil
}

// Ack acknowledges a delivered entry, removing it from the group's
// pending-entries list.
func (s *Subscriber) Ack(ctx context.Context, streamID string) error {
	if err := s.rdb.XAck(ctx, s.channel, s.group, streamID).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to ack stream entry")
	}
	return nil
}

// Handler processes one delivered entry. Returning an error leaves the
// entry unacked and routes a copy to the project's dead-letter stream.
type Handler func(ctx context.Context, entry Entry) error

// Listen drives handler over every entry read from the stream until ctx
// is cancelled. A handler error (including a recovered panic) is never
// fatal to the loop: the entry is copied to the dead-letter channel with
// an error tag and the loop continues.
func (s *Subscriber) Listen(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := s.Read(ctx, 2*time.Second, 10)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		for _, entry := range entries {
			if err := s.dispatchSafely(ctx, handler, entry); err != nil {
				s.deadLetter(ctx, entry, err)
				continue
			}
			_ = s.Ack(ctx, entry.ID)
		}
	}
}

func (s *Subscriber) dispatchSafely(ctx context.Context, handler Handler, entry Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.ErrorTypeInternal, "handler panicked").WithDetails(panicMessage(r))
		}
	}()
	return handler(ctx, entry)
}

func (s *Subscriber) deadLetter(ctx context.Context, entry Entry, cause error) {
	metrics.RecordDeadLetter()
	fields := map[string]interface{}{
		"original_channel": s.channel,
		"original_id":      entry.ID,
		"error":            cause.Error(),
	}
	_, _ = (&Publisher{rdb: s.rdb}).append(ctx, deadLetterChannel(s.project), domain.NewWaveMessage(entry.Message.EventType, s.project, entry.Message.Source, fields))
}

func panicMessage(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "panic"
}
