package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"subtitler/internal/config"
	"subtitler/internal/language"
	"subtitler/internal/logging"
	"subtitler/internal/metrics"
	"subtitler/internal/pipeline"
	"subtitler/internal/subtitles"
)

// Runner generates subtitles for one video.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Translator translates a rendered subtitle document.
type Translator interface {
	Translate(ctx context.Context, content, target string, progress pipeline.ProgressFunc) (pipeline.TranslateResult, error)
}

// Muxer combines a subtitle file with a video.
type Muxer interface {
	Mux(ctx context.Context, req subtitles.MuxRequest) (subtitles.MuxResult, error)
}

// Dependencies are the collaborators behind the HTTP handlers. Translation
// and Muxer may be nil, in which case their routes answer 503.
type Dependencies struct {
	Runner      Runner
	Translation Translator
	Muxer       Muxer
	Metrics     *metrics.Metrics
}

// Server serves the subtitle API. Requests are handled synchronously and each
// one owns its own run directory.
type Server struct {
	cfg       *config.Config
	deps      Dependencies
	languages *language.Supported
	logger    *slog.Logger
	now       func() time.Time
	router    chi.Router

	listener net.Listener
	server   *http.Server
}

// New builds the router. Call Start to listen on server.listen.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		languages: language.NewSupported(cfg.Translation.Languages),
		logger:    logging.NewComponentLogger(logger, "api-server"),
		now:       time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(metrics.RequestMiddleware(deps.Metrics))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(cfg.Server.Token))
		r.Get("/languages", s.handleLanguages)
		r.Post("/subtitles", s.handleSubtitles)
		r.Post("/translate", s.handleTranslate)
		r.Post("/burn", s.handleBurn)
	})
	s.router = r

	// Transcription requests run for minutes, so only headers and idle
	// connections are bounded.
	s.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on server.listen and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Server.Listen)
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that server.listen is free"),
			)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_server_start"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}
