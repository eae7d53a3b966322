package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/specialistvlad/eventgrid/internal/artefact"
	"github.com/specialistvlad/eventgrid/internal/binding"
	"github.com/specialistvlad/eventgrid/internal/config"
	"github.com/specialistvlad/eventgrid/internal/ctxlog"
	"github.com/specialistvlad/eventgrid/internal/world"
	"gopkg.in/yaml.v3"
)

// maxBodyBytes bounds publish and link request bodies.
const maxBodyBytes = 1 << 20

// World is the set of orchestrator operations the API serves.
type World interface {
	Publish(ctx context.Context, def artefact.Definition) error
	Unpublish(ctx context.Context, kind artefact.Kind, id string) (artefact.Definition, error)
	Get(ctx context.Context, kind artefact.Kind, id string) (artefact.Definition, error)
	List(ctx context.Context, kind artefact.Kind) ([]artefact.Definition, error)
	Link(ctx context.Context, bindingID, servantID string, params map[string]string) (*binding.Instance, error)
	Unlink(ctx context.Context, bindingID, servantID string) (*binding.UnlinkReport, error)
	Instance(ctx context.Context, bindingID, servantID string) (*binding.Instance, error)
	Linked(ctx context.Context) ([]*binding.Instance, error)
	Servants(ctx context.Context, kind artefact.Kind, id string) ([]string, error)
	Stats(ctx context.Context) (world.Stats, error)
}

// Server routes HTTP requests to a World.
type Server struct {
	world   World
	version string
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates a server. logger is attached to every request context.
func New(w World, version string, logger *slog.Logger) *Server {
	s := &Server{world: w, version: version, logger: logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /health", s.health)
	s.mux.HandleFunc("GET /version", s.getVersion)
	s.mux.HandleFunc("GET /stats", s.getStats)
	s.mux.HandleFunc("GET /instances", s.listInstances)
	s.mux.HandleFunc("GET /servants/{kind}/{id}", s.listServants)

	s.mux.HandleFunc("GET /{kind}", s.listArtefacts)
	s.mux.HandleFunc("POST /{kind}", s.publish)
	s.mux.HandleFunc("GET /{kind}/{id}", s.getArtefact)
	s.mux.HandleFunc("DELETE /{kind}/{id}", s.unpublish)

	s.mux.HandleFunc("GET /binding/{id}/{servant}", s.getInstance)
	s.mux.HandleFunc("POST /binding/{id}/{servant}", s.link)
	s.mux.HandleFunc("DELETE /binding/{id}/{servant}", s.unlink)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := s.logger.With("method", r.Method, "path", r.URL.Path)
	r = r.WithContext(ctxlog.WithLogger(r.Context(), logger))

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	logger.Debug("Request served.", "status", rec.status, "duration", time.Since(start))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.world.Stats(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, stats)
}

func (s *Server) listArtefacts(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	defs, err := s.world.List(r.Context(), kind)
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]artefactView, 0, len(defs))
	for _, d := range defs {
		out = append(out, newArtefactView(d))
	}
	respond(w, r, http.StatusOK, out)
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		failStatus(w, r, http.StatusRequestEntityTooLarge, err)
		return
	}
	def, err := config.ParseArtefact(r.Context(), kind, body)
	if err != nil {
		failStatus(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.world.Publish(r.Context(), def); err != nil {
		fail(w, r, err)
		return
	}
	view := newArtefactView(def)
	w.Header().Set("Location", view.URL)
	respond(w, r, http.StatusCreated, view)
}

// getArtefact writes the definition back exactly as it was published.
func (s *Server) getArtefact(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	def, err := s.world.Get(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", rawContentType(kind))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(def.Raw)
}

func (s *Server) unpublish(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	def, err := s.world.Unpublish(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, newArtefactView(def))
}

func (s *Server) listServants(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	ids, err := s.world.Servants(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respond(w, r, http.StatusOK, ids)
}

func (s *Server) listInstances(w http.ResponseWriter, r *http.Request) {
	insts, err := s.world.Linked(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]instanceView, 0, len(insts))
	for _, inst := range insts {
		out = append(out, newInstanceView(inst))
	}
	respond(w, r, http.StatusOK, out)
}

func (s *Server) getInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := s.world.Instance(r.Context(), r.PathValue("id"), r.PathValue("servant"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, newInstanceView(inst))
}

// link takes an optional body of parameters, e.g. {"region": "eu"}.
func (s *Server) link(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		failStatus(w, r, http.StatusRequestEntityTooLarge, err)
		return
	}
	var params map[string]string
	if len(body) > 0 {
		if err := yaml.Unmarshal(body, &params); err != nil {
			failStatus(w, r, http.StatusBadRequest, fmt.Errorf("invalid link parameters: %w", err))
			return
		}
	}
	inst, err := s.world.Link(r.Context(), r.PathValue("id"), r.PathValue("servant"), params)
	if err != nil {
		fail(w, r, err)
		return
	}
	view := newInstanceView(inst)
	w.Header().Set("Location", view.URL)
	respond(w, r, http.StatusCreated, view)
}

func (s *Server) unlink(w http.ResponseWriter, r *http.Request) {
	report, err := s.world.Unlink(r.Context(), r.PathValue("id"), r.PathValue("servant"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, newUnlinkView(report))
}

func pathKind(w http.ResponseWriter, r *http.Request) (artefact.Kind, bool) {
	kind, err := artefact.ParseKind(r.PathValue("kind"))
	if err != nil {
		failStatus(w, r, http.StatusNotFound, err)
		return 0, false
	}
	return kind, true
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, artefact.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, artefact.ErrConflict), errors.Is(err, artefact.ErrInUse):
		return http.StatusConflict
	case errors.Is(err, artefact.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, artefact.ErrStopping), errors.Is(err, artefact.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	failStatus(w, r, statusFor(err), err)
}

func failStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	logger := ctxlog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed.", "status", status, "error", err)
	} else {
		logger.Debug("Request rejected.", "status", status, "error", err)
	}
	respond(w, r, status, errorView{Error: err.Error()})
}
