package http

import (
	"context"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
	"github.com/secmon-lab/syllabus/pkg/utils/safe"
)

// UseCase is the part of the application the HTTP surface needs.
type UseCase interface {
	AnswerQuery(ctx context.Context, query string, sessionID string) (*model.Answer, error)
	GetStats(ctx context.Context) (*model.Stats, error)
}

type Server struct {
	router   *chi.Mux
	uc       UseCase
	staticFS fs.FS
}

type Options func(*Server)

// WithStaticFiles serves a browser frontend from fsys for every non-API path.
func WithStaticFiles(fsys fs.FS) Options {
	return func(s *Server) {
		s.staticFS = fsys
	}
}

func New(uc UseCase, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", queryHandler(s.uc))
		r.Get("/courses", coursesHandler(s.uc))
	})

	if s.staticFS != nil {
		r.Get("/*", spaHandler(s.staticFS))
	} else {
		r.Get("/", rootHandler)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger puts a logger carrying the request ID into the request context.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.From(r.Context()).With("request_id", middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(logging.With(r.Context(), logger)))
	})
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.From(r.Context()).Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// spaHandler serves static files and falls back to index.html for unknown paths
func spaHandler(staticFS fs.FS) http.HandlerFunc {
	fileServer := http.FileServer(http.FS(staticFS))

	return func(w http.ResponseWriter, r *http.Request) {
		urlPath := strings.TrimPrefix(r.URL.Path, "/")
		if urlPath == "" {
			urlPath = "index.html"
		}

		file, err := staticFS.Open(urlPath)
		if err != nil {
			indexFile, err := staticFS.Open("index.html")
			if err != nil {
				http.NotFound(w, r)
				return
			}
			defer safe.Close(r.Context(), indexFile)
			w.Header().Set("Content-Type", "text/html")
			safe.Copy(r.Context(), w, indexFile)
			return
		}
		safe.Close(r.Context(), file)

		fileServer.ServeHTTP(w, r)
	}
}
