package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/ZennPost/internal/account"
	"github.com/TobiSchelling/ZennPost/internal/collect"
	"github.com/TobiSchelling/ZennPost/internal/pipeline"
	"github.com/TobiSchelling/ZennPost/internal/post"
	"github.com/TobiSchelling/ZennPost/internal/prompt"
)

//go:embed templates/*.html
var templateFS embed.FS

var md = goldmark.New()

// MaxLimit caps the number of articles a web request may ask for.
const MaxLimit = 20

// Runner is the part of the pipeline the server drives.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
	RunStreaming(ctx context.Context, in pipeline.Input) (*pipeline.Prepared, *post.Stream, error)
	Provider() string
}

// Server is the local web front-end.
type Server struct {
	runner   Runner
	gatherer prometheus.Gatherer
	pages    map[string]*template.Template
	router   chi.Router
}

// New creates a new Server. gatherer backs /metrics and may be nil.
func New(runner Runner, gatherer prometheus.Gatherer) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "result.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{runner: runner, gatherer: gatherer, pages: pages}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/generate", s.handleGenerate)
	r.Get("/api/stream", s.handleStream)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.router = r
}

// form mirrors the index form so it can be re-rendered after an error.
type form struct {
	Account  string
	Tone     string
	Limit    string
	Seed     string
	Template string
}

func readForm(r *http.Request) form {
	return form{
		Account:  strings.TrimSpace(r.FormValue("account")),
		Tone:     strings.TrimSpace(r.FormValue("tone")),
		Limit:    strings.TrimSpace(r.FormValue("limit")),
		Seed:     strings.TrimSpace(r.FormValue("seed")),
		Template: r.FormValue("template"),
	}
}

var errBadRequest = errors.New("bad request")

func (f form) input() (pipeline.Input, error) {
	in := pipeline.Input{Account: f.Account, Template: f.Template}
	if f.Account == "" {
		return in, fmt.Errorf("%w: enter a Zenn account", errBadRequest)
	}
	if f.Tone != "" && f.Tone != "auto" {
		tone, err := prompt.ParseTone(f.Tone)
		if err != nil {
			return in, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		in.Tone = &tone
	}
	if f.Limit != "" {
		n, err := strconv.Atoi(f.Limit)
		if err != nil || n < 1 || n > MaxLimit {
			return in, fmt.Errorf("%w: the number of articles must be between 1 and %d", errBadRequest, MaxLimit)
		}
		in.Limit = n
	}
	if f.Seed != "" {
		seed, err := strconv.ParseInt(f.Seed, 10, 64)
		if err != nil {
			return in, fmt.Errorf("%w: seed must be an integer", errBadRequest)
		}
		in.Seed = &seed
	}
	return in, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index.html", map[string]any{
		"Form": form{Account: r.URL.Query().Get("account")},
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	f := readForm(r)
	in, err := f.input()
	if err != nil {
		s.render(w, http.StatusBadRequest, "index.html", map[string]any{"Form": f, "Error": message(err)})
		return
	}

	res, err := s.runner.Run(r.Context(), in)
	if err != nil {
		log.Warn().Err(err).Str("account", f.Account).Msg("Generation request failed")
		s.render(w, statusFor(err), "index.html", map[string]any{"Form": f, "Error": message(err)})
		return
	}

	s.render(w, http.StatusOK, "result.html", map[string]any{
		"Account":   res.Account.String(),
		"Post":      res.Post,
		"Selection": res.Selection,
		"Fetched":   res.Fetched,
		"RunID":     res.RunID,
	})
}

// handleStream writes the post as chunked plain text while it is generated.
// Failures before the first byte get a proper status; later ones are
// appended to the body.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	in, err := readForm(r).input()
	if err != nil {
		http.Error(w, message(err), http.StatusBadRequest)
		return
	}

	_, stream, err := s.runner.RunStreaming(r.Context(), in)
	if err != nil {
		http.Error(w, message(err), statusFor(err))
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for stream.Next() {
		if _, err := w.Write([]byte(stream.Text())); err != nil {
			// Client went away; Close releases the backend.
			return
		}
		_ = rc.Flush()
	}
	if err := stream.Err(); err != nil {
		fmt.Fprintf(w, "\n\n[error] %s\n", message(err))
	}
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data map[string]any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Error().Str("template", name).Msg("Template not found")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	data["Provider"] = s.runner.Provider()
	data["MaxLimit"] = MaxLimit

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("Error rendering template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func message(err error) string {
	if errors.Is(err, errBadRequest) {
		return strings.TrimPrefix(err.Error(), errBadRequest.Error()+": ")
	}
	return pipeline.UserMessage(err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, account.ErrInvalidFormat):
		return http.StatusBadRequest
	case collect.IsKind(err, collect.NotFound):
		return http.StatusNotFound
	case collect.IsKind(err, collect.EmptyFeed), errors.Is(err, post.ErrNoArticles):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	})
}

// Serve starts the HTTP server on the given port and shuts it down when ctx
// is cancelled.
func Serve(ctx context.Context, runner Runner, gatherer prometheus.Gatherer, port int) error {
	s, err := New(runner, gatherer)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", "http://"+addr).Msg("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
		return err
	}
	return nil
}
