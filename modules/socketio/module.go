// Package socketio provides a source that listens for a Socket.IO event and a
// sink that emits one per received event.
package socketio

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/eventgrid/internal/ctxlog"
	"github.com/specialistvlad/eventgrid/internal/event"
	"github.com/specialistvlad/eventgrid/internal/handlers"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Config defines the arguments of the socketio source and sink.
type Config struct {
	URL                string `yaml:"url"`
	Namespace          string `yaml:"namespace"`
	OnEvent            string `yaml:"on_event"`
	EmitEvent          string `yaml:"emit_event"`
	Timeout            string `yaml:"timeout"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	// Envelope makes the sink emit the whole event instead of the payload.
	Envelope bool `yaml:"envelope"`
}

func (c *Config) timeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

// dial creates a socket for cfg without connecting it.
func dial(cfg Config) (*socket.Socket, error) {
	if cfg.URL == "" {
		return nil, errors.New("url is required")
	}
	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("url %q must be absolute", cfg.URL)
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "/"
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	return manager.Socket(namespace, opts), nil
}

// Source forwards the first argument of every `on_event` message.
type Source struct {
	cfg      Config
	io       *socket.Socket
	messages chan any
	failures chan error
	closed   chan struct{}
	once     sync.Once
}

// NewSource validates cfg and prepares the socket.
func NewSource(cfg Config) (*Source, error) {
	if cfg.OnEvent == "" {
		return nil, errors.New("on_event is required")
	}
	if _, err := cfg.timeout(); err != nil {
		return nil, err
	}
	io, err := dial(cfg)
	if err != nil {
		return nil, err
	}

	s := &Source{
		cfg:      cfg,
		io:       io,
		messages: make(chan any, 64),
		failures: make(chan error, 1),
		closed:   make(chan struct{}),
	}
	io.On(types.EventName(cfg.OnEvent), func(data ...any) {
		var payload any
		if len(data) > 0 {
			payload = data[0]
		}
		select {
		case s.messages <- payload:
		case <-s.closed:
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("socket.io connection failed")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case s.failures <- err:
		default:
		}
	})
	return s, nil
}

// Run implements handlers.Source.
func (s *Source) Run(ctx context.Context, out handlers.Output) error {
	logger := ctxlog.FromContext(ctx).With("url", s.cfg.URL, "onEvent", s.cfg.OnEvent)
	s.io.On(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "namespace", s.cfg.Namespace, "sid", s.io.Id())
	})
	s.io.Connect()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-s.messages:
			if err := out.Emit(ctx, payload); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		case err := <-s.failures:
			logger.Warn("Socket.IO connection error.", "error", err)
			if ferr := out.Fail(ctx, err); ferr != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// Close implements handlers.Source.
func (s *Source) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.io.Disconnect()
	})
	return nil
}

// Sink emits `emit_event` with each event.
type Sink struct {
	cfg Config
	io  *socket.Socket
}

// NewSink connects and waits until the connection is established or the
// timeout elapses.
func NewSink(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.EmitEvent == "" {
		return nil, errors.New("emit_event is required")
	}
	timeout, err := cfg.timeout()
	if err != nil {
		return nil, err
	}
	io, err := dial(cfg)
	if err != nil {
		return nil, err
	}

	var isConnected atomic.Bool
	done := make(chan error, 1)
	io.On(types.EventName("connect"), func(...any) {
		if isConnected.CompareAndSwap(false, true) {
			done <- nil
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("socket.io connection failed")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case done <- err:
		default:
		}
	})
	io.Connect()

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case err := <-done:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.URL, err)
		}
	case <-opCtx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("timed out while waiting for initial connection to %s", cfg.URL)
	}
	return &Sink{cfg: cfg, io: io}, nil
}

// Write implements handlers.Sink.
func (s *Sink) Write(_ context.Context, ev event.Event) error {
	var v any = ev.Payload
	if s.cfg.Envelope {
		v = ev
	}
	s.io.Emit(s.cfg.EmitEvent, v)
	return nil
}

// Close implements handlers.Sink.
func (s *Sink) Close() error {
	s.io.Disconnect()
	return nil
}

// Register registers the connector with the engine.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterConnector("socketio", &handlers.RegisteredConnector{
		Description: "Socket.IO event source and sink",
		NewSource: func(_ context.Context, config map[string]any) (handlers.Source, error) {
			var cfg Config
			if err := handlers.Decode(config, &cfg); err != nil {
				return nil, err
			}
			return NewSource(cfg)
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
