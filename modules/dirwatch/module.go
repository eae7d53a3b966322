package dirwatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/specialistvlad/eventgrid/internal/ctxlog"
	"github.com/specialistvlad/eventgrid/internal/handlers"
)

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Config defines the arguments of the dirwatch source.
type Config struct {
	Path string `yaml:"path"`
	// Ops restricts the reported operations, e.g. ["create", "write"].
	Ops []string `yaml:"ops"`
}

var opNames = map[string]fsnotify.Op{
	"create": fsnotify.Create,
	"write":  fsnotify.Write,
	"remove": fsnotify.Remove,
	"rename": fsnotify.Rename,
	"chmod":  fsnotify.Chmod,
}

// Source reports file-system changes under one directory.
type Source struct {
	path    string
	mask    fsnotify.Op
	watcher *fsnotify.Watcher
}

// New starts watching cfg.Path.
func New(cfg Config) (*Source, error) {
	if cfg.Path == "" {
		return nil, errors.New("path is required")
	}
	info, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Path)
	}

	var mask fsnotify.Op
	for _, name := range cfg.Ops {
		op, ok := opNames[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown operation %q", name)
		}
		mask |= op
	}
	if mask == 0 {
		mask = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename | fsnotify.Chmod
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(cfg.Path); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", cfg.Path, err)
	}
	return &Source{path: cfg.Path, mask: mask, watcher: w}, nil
}

// Run implements handlers.Source.
func (s *Source) Run(ctx context.Context, out handlers.Output) error {
	logger := ctxlog.FromContext(ctx).With("path", s.path)
	logger.Debug("Watching directory.")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&s.mask == 0 {
				continue
			}
			if err := out.Emit(ctx, map[string]any{"path": ev.Name, "op": ev.Op.String()}); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher reported an error.", "error", err)
			if ferr := out.Fail(ctx, err); ferr != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// Close implements handlers.Source.
func (s *Source) Close() error {
	return s.watcher.Close()
}

// Register registers the connector with the engine.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterConnector("dirwatch", &handlers.RegisteredConnector{
		Description: "reports file-system changes in a directory",
		NewSource: func(_ context.Context, config map[string]any) (handlers.Source, error) {
			var cfg Config
			if err := handlers.Decode(config, &cfg); err != nil {
				return nil, err
			}
			return New(cfg)
		},
	})
}
