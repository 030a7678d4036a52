package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"ecomap-navigation/internal/cache"
	"ecomap-navigation/internal/ws"
)

// Broadcaster pushes a notice to every connected client.
type Broadcaster interface {
	Broadcast(msg ws.Message)
}

type Subscriber struct {
	logger       *slog.Logger
	client       *redis.Client
	orchestrator *cache.Orchestrator
	broadcaster  Broadcaster
	topic        string
}

func NewSubscriber(logger *slog.Logger, client *redis.Client, orchestrator *cache.Orchestrator, broadcaster Broadcaster, topic string) *Subscriber {
	return &Subscriber{
		logger:       logger,
		client:       client,
		orchestrator: orchestrator,
		broadcaster:  broadcaster,
		topic:        topic,
	}
}

func (s *Subscriber) Start(ctx context.Context) error {
	s.logger.Info("Redis subscriber is running", "topic", s.topic)
	pubsub := s.client.Subscribe(ctx, s.topic)
	defer func() {
		if err := pubsub.Close(); err != nil {
			s.logger.Warn("failed to close pubsub", "error", err)
		}
	}()

	msgCh := pubsub.Channel()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				s.logger.Warn("pubsub channel closed by Redis")
				return nil
			}
			if err := s.handleMessage(ctx, msg); err != nil {
				s.logger.Error("error handling message", "error", err)
			}
		case <-ctx.Done():
			s.logger.Info("shutting down Redis subscriber")
			return nil
		}
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, msg *redis.Message) error {
	var control ControlMessage
	if err := json.Unmarshal([]byte(msg.Payload), &control); err != nil {
		return fmt.Errorf("failed to unmarshal control message: %w", err)
	}
	if !control.Action.IsValid() {
		return fmt.Errorf("unknown action %q", control.Action)
	}

	switch control.Action {
	case VersionBump:
		if control.Version == "" {
			return fmt.Errorf("version-bump without a version")
		}
		s.logger.Info("bumping cache version",
			"from", s.orchestrator.Version(), "to", control.Version)
		s.orchestrator.SetVersion(control.Version)
	case Purge:
		s.logger.Info("purging stale cache buckets")
	}

	if err := s.orchestrator.Activate(ctx); err != nil {
		return fmt.Errorf("failed to activate cache generation: %w", err)
	}

	notice, err := json.Marshal(ControlMessage{Action: control.Action, Version: s.orchestrator.Version()})
	if err != nil {
		return fmt.Errorf("failed to marshal cache notice: %w", err)
	}
	s.broadcaster.Broadcast(ws.Message{Type: "cache-updated", Data: notice})
	return nil
}
