// Package loader applies startup files to a World. Dataflow files are
// applied before declarative ones, so bindings and mappings can refer to
// pipelines defined in either.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/binding"
	"github.com/specialistvlad/eventgrid/internal/config"
	"github.com/specialistvlad/eventgrid/internal/ctxlog"
	"github.com/specialistvlad/eventgrid/internal/fsutil"
	"github.com/specialistvlad/eventgrid/internal/pipeline"
)

// File dialects.
const (
	Dataflow    = "dataflow"
	Declarative = "declarative"
)

var dialects = map[string]string{
	".hcl":  Dataflow,
	".yaml": Declarative,
	".yml":  Declarative,
}

// World is the part of the orchestrator the loader drives.
type World interface {
	Publish(ctx context.Context, def artefact.Definition) error
	Link(ctx context.Context, bindingID, servantID string, params map[string]string) (*binding.Instance, error)
}

// Classify returns the dialect of path, judged by its extension.
func Classify(path string) (string, bool) {
	d, ok := dialects[strings.ToLower(filepath.Ext(path))]
	return d, ok
}

// Load expands paths into files and applies every dataflow file, then every
// declarative file. Directories contribute the files with a known extension,
// in lexical order, and log the rest as skipped; a file named explicitly must
// have one. The first failure
// aborts the load.
func Load(ctx context.Context, w World, paths ...string) error {
	logger := ctxlog.FromContext(ctx)

	var dataflow, declarative []string
	for _, p := range paths {
		files, err := expand(ctx, p)
		if err != nil {
			return err
		}
		for _, f := range files {
			switch d, _ := Classify(f); d {
			case Dataflow:
				dataflow = append(dataflow, f)
			case Declarative:
				declarative = append(declarative, f)
			}
		}
	}
	logger.Debug("Startup files collected.", "dataflow", len(dataflow), "declarative", len(declarative))

	for _, f := range dataflow {
		if err := LoadDataflowFile(ctx, w, f); err != nil {
			return err
		}
	}
	for _, f := range declarative {
		if err := LoadConfigFile(ctx, w, f); err != nil {
			return err
		}
	}
	logger.Info("Startup files loaded.", "files", len(dataflow)+len(declarative))
	return nil
}

func expand(ctx context.Context, path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &artefact.FileLoadError{Path: path, Kind: "startup", Err: err}
	}
	if !info.IsDir() {
		if _, ok := Classify(path); !ok {
			return nil, &artefact.UnsupportedFileTypeError{
				Path:     path,
				Kind:     describeExt(path),
				Expected: "dataflow (.hcl) or declarative (.yaml, .yml)",
			}
		}
		return []string{path}, nil
	}
	all, err := fsutil.FindFiles(path)
	if err != nil {
		return nil, &artefact.FileLoadError{Path: path, Kind: "startup", Err: err}
	}
	files := make([]string, 0, len(all))
	for _, f := range all {
		if _, ok := Classify(f); !ok {
			ctxlog.FromContext(ctx).Warn("Skipping file of unknown dialect.", "file", f, "dir", path)
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

func describeExt(path string) string {
	if ext := filepath.Ext(path); ext != "" {
		return strings.ToLower(ext)
	}
	return "(no extension)"
}

// LoadDataflowFile publishes every pipeline in a dataflow file.
func LoadDataflowFile(ctx context.Context, w World, path string) error {
	if d, ok := Classify(path); !ok || d != Dataflow {
		return &artefact.UnsupportedFileTypeError{Path: path, Kind: kindOf(path), Expected: Dataflow}
	}
	logger := ctxlog.FromContext(ctx).With("file", path)

	defs, err := pipeline.ParseFile(ctx, path)
	if err != nil {
		return &artefact.FileLoadError{Path: path, Kind: Dataflow, Err: err}
	}
	for _, def := range defs {
		if err := w.Publish(ctx, def); err != nil {
			return &artefact.FileLoadError{Path: path, Kind: Dataflow, Err: err}
		}
	}
	logger.Info("Dataflow file loaded.", "pipelines", len(defs))
	return nil
}

// LoadConfigFile publishes the artefacts of a declarative file, then links
// each of its mappings.
func LoadConfigFile(ctx context.Context, w World, path string) error {
	if d, ok := Classify(path); !ok || d != Declarative {
		return &artefact.UnsupportedFileTypeError{Path: path, Kind: kindOf(path), Expected: Declarative}
	}
	logger := ctxlog.FromContext(ctx).With("file", path)

	doc, err := config.ParseFile(ctx, path)
	if err != nil {
		return &artefact.FileLoadError{Path: path, Kind: Declarative, Err: err}
	}
	defs := doc.Definitions()
	for _, def := range defs {
		if err := w.Publish(ctx, def); err != nil {
			return &artefact.FileLoadError{Path: path, Kind: Declarative, Err: err}
		}
	}
	for _, m := range doc.Mappings {
		if _, err := w.Link(ctx, m.Binding, m.Servant, m.Params); err != nil {
			return &artefact.FileLoadError{Path: path, Kind: Declarative, Err: fmt.Errorf("mapping %s: %w", m.URL(), err)}
		}
	}
	logger.Info("Declarative file loaded.", "artefacts", len(defs), "mappings", len(doc.Mappings))
	return nil
}

func kindOf(path string) string {
	if d, ok := Classify(path); ok {
		return d
	}
	return describeExt(path)
}
