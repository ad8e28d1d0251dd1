package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-quake/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// PubSubTransformerConfig holds configuration for the Pub/Sub transform trigger.
type PubSubTransformerConfig struct {
	TopicID        string
	PublishTimeout time.Duration
}

// PubSubTransformer hands the transformation off to a subscriber by publishing
// one JSON trigger message per run.
type PubSubTransformer struct {
	topic          *pubsub.Topic
	clock          clockwork.Clock
	publishTimeout time.Duration
	logger         zerolog.Logger
}

// NewPubSubTransformer checks that the topic exists before returning.
// The client's lifecycle is managed by the caller.
func NewPubSubTransformer(ctx context.Context, client *pubsub.Client, cfg PubSubTransformerConfig, clock clockwork.Clock, logger zerolog.Logger) (*PubSubTransformer, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil for transformer")
	}
	if cfg.TopicID == "" {
		return nil, errors.New("pubsub topic id is required for transformer")
	}
	topic := client.Topic(cfg.TopicID)

	maxRetries := 3
	retryDelay := 100 * time.Millisecond
	var exists bool
	var existsErr error
	for i := 0; i < maxRetries; i++ {
		topicCtx, topicCancel := context.WithTimeout(ctx, 5*time.Second)
		exists, existsErr = topic.Exists(topicCtx)
		topicCancel()
		if existsErr == nil && exists {
			break
		}
		logger.Warn().Err(existsErr).Str("topic_id", cfg.TopicID).Int("attempt", i+1).Msg("Transform topic not confirmed, retrying...")
		time.Sleep(retryDelay)
		retryDelay *= 2
	}
	if existsErr != nil {
		return nil, fmt.Errorf("failed to check existence of topic %s after %d retries: %w", cfg.TopicID, maxRetries, existsErr)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	return NewPubSubTransformerWithTopic(topic, cfg, clock, logger), nil
}

// NewPubSubTransformerWithTopic accepts a topic whose existence is managed externally.
func NewPubSubTransformerWithTopic(topic *pubsub.Topic, cfg PubSubTransformerConfig, clock clockwork.Clock, logger zerolog.Logger) *PubSubTransformer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PubSubTransformer{
		topic:          topic,
		clock:          clock,
		publishTimeout: timeout,
		logger:         logger.With().Str("component", "PubSubTransformer").Str("topic_id", topic.ID()).Logger(),
	}
}

// Transform publishes the trigger and waits for the server-assigned message id.
func (p *PubSubTransformer) Transform(ctx context.Context, trigger Trigger) types.TransformResult {
	if trigger.TriggeredAt.IsZero() {
		trigger.TriggeredAt = p.clock.Now().UTC()
	}
	payload, err := json.Marshal(trigger)
	if err != nil {
		return types.TransformResult{Failure: types.NewFailure(types.TransformFailure, fmt.Errorf("marshal trigger: %w", err))}
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	res := p.topic.Publish(publishCtx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"run_id": trigger.RunID},
	})
	msgID, err := res.Get(publishCtx)
	if err != nil {
		p.logger.Error().Err(err).Str("run_id", trigger.RunID).Msg("Failed to publish transform trigger")
		return types.TransformResult{Failure: types.NewFailure(types.TransformFailure, fmt.Errorf("publish transform trigger: %w", err))}
	}
	p.logger.Info().Str("run_id", trigger.RunID).Str("pubsub_msg_id", msgID).Msg("Transform trigger published")
	return types.TransformResult{Detail: "message " + msgID}
}

// Stop flushes outstanding publishes. It does not close the injected client.
func (p *PubSubTransformer) Stop() {
	p.topic.Stop()
}
