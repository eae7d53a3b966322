// Package redis provides a source that subscribes to a Redis pub/sub channel
// and a sink that publishes or pushes events to Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/specialistvlad/eventgrid/internal/ctxlog"
	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/specialistvlad/eventgrid/internal/handlers"
)

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Sink modes.
const (
	ModePublish = "publish"
	ModeRPush   = "rpush"
)

// Config defines the arguments shared by the redis source and sink.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	// Key is the list the sink pushes onto in rpush mode.
	Key  string `yaml:"key"`
	Mode string `yaml:"mode"`
	// Envelope makes the sink write the whole event instead of the payload.
	Envelope bool `yaml:"envelope"`
}

func (c *Config) options() *redis.Options {
	addr := c.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	return &redis.Options{Addr: addr, Password: c.Password, DB: c.DB}
}

// Source forwards every message published on a channel.
type Source struct {
	rdb    *redis.Client
	pubsub *redis.PubSub
}

// NewSource connects and subscribes. The subscription is confirmed before it
// returns, so no message published afterwards is missed.
func NewSource(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.Channel == "" {
		return nil, errors.New("channel is required")
	}
	rdb := redis.NewClient(cfg.options())
	pubsub := rdb.Subscribe(ctx, cfg.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		rdb.Close()
		return nil, fmt.Errorf("failed to subscribe to %q: %w", cfg.Channel, err)
	}
	return &Source{rdb: rdb, pubsub: pubsub}, nil
}

// Run implements handlers.Source. JSON messages are decoded, anything else
// is forwarded as a string.
func (s *Source) Run(ctx context.Context, out handlers.Output) error {
	logger := ctxlog.FromContext(ctx)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			var payload any
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				payload = msg.Payload
			}
			if err := out.Emit(ctx, payload); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("Failed to forward redis message.", "channel", msg.Channel, "error", err)
			}
		}
	}
}

// Close implements handlers.Source.
func (s *Source) Close() error {
	return errors.Join(s.pubsub.Close(), s.rdb.Close())
}

// Sink writes events to a channel or a list.
type Sink struct {
	rdb *redis.Client
	cfg Config
}

// NewSink validates cfg and checks the server is reachable.
func NewSink(ctx context.Context, cfg Config) (*Sink, error) {
	switch cfg.Mode {
	case "", ModePublish:
		cfg.Mode = ModePublish
		if cfg.Channel == "" {
			return nil, errors.New("channel is required in publish mode")
		}
	case ModeRPush:
		if cfg.Key == "" {
			return nil, errors.New("key is required in rpush mode")
		}
	default:
		return nil, fmt.Errorf("unknown mode %q, expected %q or %q", cfg.Mode, ModePublish, ModeRPush)
	}

	rdb := redis.NewClient(cfg.options())
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis at %s is not reachable: %w", rdb.Options().Addr, err)
	}
	return &Sink{rdb: rdb, cfg: cfg}, nil
}

// Write implements handlers.Sink.
func (s *Sink) Write(ctx context.Context, ev event.Event) error {
	var v any = ev.Payload
	if s.cfg.Envelope {
		v = ev
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}
	if s.cfg.Mode == ModeRPush {
		return s.rdb.RPush(ctx, s.cfg.Key, data).Err()
	}
	return s.rdb.Publish(ctx, s.cfg.Channel, data).Err()
}

// Close implements handlers.Sink.
func (s *Sink) Close() error {
	return s.rdb.Close()
}

// Register registers the connector with the engine.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterConnector("redis", &handlers.RegisteredConnector{
		Description: "redis pub/sub source, pub/sub or list sink",
		NewSource: func(ctx context.Context, config map[string]any) (handlers.Source, error) {
			var cfg Config
			if err := handlers.Decode(config, &cfg); err != nil {
				return nil, err
			}
			return NewSource(ctx, cfg)
		},
		NewSink: func(ctx context.Context, config map[string]any) (handlers.Sink, error) {
			var cfg Config
			if err := handlers.Decode(config, &cfg); err != nil {
				return nil, err
			}
			return NewSink(ctx, cfg)
		},
	})
}
