// Package http provides a sink that POSTs every event as JSON.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/specialistvlad/eventgrid/internal/handlers"
)

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Config defines the arguments of the http sink.
type Config struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Timeout string            `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
	// Envelope sends the whole event instead of the payload.
	Envelope bool `yaml:"envelope"`
}

// Sink sends events to an HTTP endpoint.
type Sink struct {
	client *http.Client
	cfg    Config
}

// NewSink validates cfg and creates the client.
func NewSink(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, errors.New("url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.Timeout == "" {
		cfg.Timeout = "10s"
	}
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout %q: %w", cfg.Timeout, err)
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return &Sink{client: client, cfg: cfg}, nil
}

// Write implements handlers.Sink. Any non-2xx response is an error.
func (s *Sink) Write(ctx context.Context, ev event.Event) error {
	var v any = ev.Payload
	if s.cfg.Envelope {
		v = ev
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, s.cfg.Method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", ev.ID)
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s returned %s", s.cfg.Method, s.cfg.URL, resp.Status)
	}
	return nil
}

// Close implements handlers.Sink. Only idle connections need releasing.
func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Register registers the connector with the engine.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterConnector("http", &handlers.RegisteredConnector{
		Description: "sends each event as a JSON request",
		NewSink: func(_ context.Context, config map[string]any) (handlers.Sink, error) {
			var cfg Config
			if err := handlers.Decode(config, &cfg); err != nil {
				return nil, err
			}
			return NewSink(cfg)
		},
	})
}
