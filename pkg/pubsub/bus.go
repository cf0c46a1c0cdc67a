// Package pubsub implements the Redis-Streams-backed signal bus
// (SPEC_FULL.md §4.8): project-namespaced publish/subscribe channels, a
// typed event dispatcher, and a handler-notified ResultWaiter that
// replaces poll loops elsewhere in the orchestrator.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
	"github.com/wavehq/orchestrator/pkg/domain"
)

// Channel name helpers. Every channel is namespaced by project so a
// subscriber on project A structurally cannot read project B's stream
// (SPEC_FULL.md §4.8 isolation invariant) — there is no cross-project key
// to even subscribe to by mistake.
func signalsChannel(project string) string {
	return fmt.Sprintf("wave:signals:%s", strings.ToLower(project))
}

func agentChannel(project, agent string) string {
	return fmt.Sprintf("wave:agent:%s:%s", strings.ToLower(project), agent)
}

func gateChannel(project, gate string) string {
	return fmt.Sprintf("wave:gate:%s:%s", strings.ToLower(project), gate)
}

func deadLetterChannel(project string) string {
	return fmt.Sprintf("wave:dead_letter:%s", strings.ToLower(project))
}

// Publisher appends WaveMessages to Redis Streams.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Option customizes a published WaveMessage before it's appended.
type Option func(*domain.WaveMessage)

func WithSessionID(id string) Option        { return func(m *domain.WaveMessage) { m.SessionID = id } }
func WithStoryID(id string) Option          { return func(m *domain.WaveMessage) { m.StoryID = id } }
func WithCorrelationID(id string) Option    { return func(m *domain.WaveMessage) { m.CorrelationID = id } }
func WithPriority(p domain.Priority) Option { return func(m *domain.WaveMessage) { m.Priority = p } }

// Publish appends one event to the project's general signal stream.
func (p *Publisher) Publish(ctx context.Context, project string, eventType domain.EventType, payload map[string]interface{}, source string, opts ...Option) (string, error) {
	msg := domain.NewWaveMessage(eventType, project, source, payload)
	for _, opt := range opts {
		opt(&msg)
	}
	return p.append(ctx, signalsChannel(project), msg)
}

// PublishBatch appends several messages in one pipelined round-trip.
func (p *Publisher) PublishBatch(ctx context.Context, messages []domain.WaveMessage) ([]string, error) {
	pipe := p.rdb.TxPipeline()
	cmds := make([]*redis.StringCmd, len(messages))
	for i, msg := range messages {
		fields, err := toStreamFields(msg)
		if err != nil {
			return nil, err
		}
		cmds[i] = pipe.XAdd(ctx, &redis.XAddArgs{Stream: signalsChannel(msg.Project), Values: fields})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to publish message batch")
	}
	ids := make([]string, len(cmds))
	for i, cmd := range cmds {
		ids[i] = cmd.Val()
	}
	return ids, nil
}

// PublishToAgent appends to an agent's direct-message stream.
func (p *Publisher) PublishToAgent(ctx context.Context, project, agentID string, eventType domain.EventType, payload map[string]interface{}, source string) (string, error) {
	msg := domain.NewWaveMessage(eventType, project, source, payload)
	return p.append(ctx, agentChannel(project, agentID), msg)
}

// PublishGateEvent appends to a gate-specific stream.
func (p *Publisher) PublishGateEvent(ctx context.Context, project, gateName string, eventType domain.EventType, payload map[string]interface{}, source string) (string, error) {
	msg := domain.NewWaveMessage(eventType, project, source, payload)
	return p.append(ctx, gateChannel(project, gateName), msg)
}

func (p *Publisher) append(ctx context.Context, stream string, msg domain.WaveMessage) (string, error) {
	fields, err := toStreamFields(msg)
	if err != nil {
		return "", err
	}
	id, err := p.rdb.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: fields}).Result()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to publish wave message")
	}
	return id, nil
}

// toStreamFields flattens a WaveMessage into the string-valued field map
// Redis Streams require, JSON-encoding the payload with go-faster/jx on
// this hot path (every publish) to avoid the allocation overhead of
// encoding/json's reflection-based marshal for the envelope fields.
func toStreamFields(msg domain.WaveMessage) (map[string]interface{}, error) {
	payloadJSON, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to marshal wave message payload")
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event_type")
	e.Str(string(msg.EventType))
	e.FieldStart("source")
	e.Str(msg.Source)
	e.FieldStart("project")
	e.Str(msg.Project)
	e.FieldStart("timestamp")
	e.Str(msg.Timestamp.Format(time.RFC3339Nano))
	e.FieldStart("priority")
	e.Str(string(msg.Priority))
	e.FieldStart("session_id")
	e.Str(msg.SessionID)
	e.FieldStart("story_id")
	e.Str(msg.StoryID)
	e.FieldStart("correlation_id")
	e.Str(msg.CorrelationID)
	e.ObjEnd()

	var envelope map[string]interface{}
	if err := json.Unmarshal(e.Bytes(), &envelope); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to encode wave message envelope")
	}
	envelope["payload"] = string(payloadJSON)
	return envelope, nil
}

// fromStreamFields reconstructs a WaveMessage from a Redis Stream entry's
// string-valued field map, decoding the envelope with jx and the payload
// with encoding/json.
func fromStreamFields(values map[string]interface{}) (domain.WaveMessage, error) {
	var msg domain.WaveMessage
	str := func(key string) string {
		if v, ok := values[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}

	msg.EventType = domain.EventType(str("event_type"))
	msg.Source = str("source")
	msg.Project = str("project")
	msg.Priority = domain.Priority(str("priority"))
	msg.SessionID = str("session_id")
	msg.StoryID = str("story_id")
	msg.CorrelationID = str("correlation_id")

	if ts := str("timestamp"); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return msg, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to parse wave message timestamp")
		}
		msg.Timestamp = t
	}

	msg.Payload = map[string]interface{}{}
	if raw := str("payload"); raw != "" {
		d := jx.DecodeBytes([]byte(raw))
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			val, err := decodeJXValue(d)
			if err != nil {
				return err
			}
			msg.Payload[key] = val
			return nil
		}); err != nil {
			return msg, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to decode wave message payload")
		}
	}
	return msg, nil
}

// decodeJXValue decodes one JSON value under the decoder's current cursor
// into a plain Go value, falling back to encoding/json for nested
// structures jx's low-level decoder would otherwise require a second
// traversal to materialize.
func decodeJXValue(d *jx.Decoder) (interface{}, error) {
	raw, err := d.Raw()
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
