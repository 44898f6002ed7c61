// Package contentsrv serves a local, SQLite-backed implementation of the
// two repository contents API routes the config sync uses, so the sync can
// be exercised end to end without a hosted repository.
package contentsrv

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/sktools/idgen"
	"github.com/hazyhaar/sktools/kit"
)

// maxBody bounds PUT bodies.
const maxBody = 4 << 20

// Server is the contents API over one database.
type Server struct {
	db            *sql.DB
	token         string
	defaultBranch string
	logger        *slog.Logger
	now           func() time.Time
	reqIDs        idgen.Generator
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on API routes.
func WithToken(tok string) Option { return func(s *Server) { s.token = tok } }

// WithDefaultBranch sets the branch used when none is given. Default: main.
func WithDefaultBranch(b string) Option { return func(s *Server) { s.defaultBranch = b } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// New applies the schema to db and returns a Server.
func New(db *sql.DB, opts ...Option) (*Server, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("contentsrv: apply schema: %w", err)
	}
	s := &Server{
		db:            db,
		defaultBranch: "main",
		logger:        slog.Default(),
		now:           time.Now,
		reqIDs:        idgen.Prefixed("req_", idgen.UUIDv7()),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Handler returns the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Route("/repos/{owner}/{repo}/contents", func(r chi.Router) {
			r.Get("/*", s.handleGet)
			r.Put("/*", s.handlePut)
		})
		r.Get("/repos/{owner}/{repo}/commits", s.handleCommits)
	})
	return r
}

type fileResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int    `json:"size"`
	Content  string `json:"content"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

type putResponse struct {
	Content struct {
		Name string `json:"name"`
		Path string `json:"path"`
		SHA  string `json:"sha"`
		Size int    `json:"size"`
	} `json:"content"`
	Commit struct {
		SHA     string `json:"sha"`
		Message string `json:"message"`
	} `json:"commit"`
}

func (s *Server) key(r *http.Request, branch string) (fileKey, bool) {
	p, err := url.PathUnescape(chi.URLParam(r, "*"))
	p = strings.Trim(p, "/")
	if err != nil || p == "" {
		return fileKey{}, false
	}
	if branch == "" {
		branch = s.defaultBranch
	}
	return fileKey{
		owner:  chi.URLParam(r, "owner"),
		repo:   chi.URLParam(r, "repo"),
		branch: branch,
		path:   p,
	}, true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	k, ok := s.key(r, r.URL.Query().Get("ref"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}
	f, err := s.getFile(r.Context(), k)
	if errors.Is(err, errNotFound) {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileResponse{
		Type:     "file",
		Encoding: "base64",
		Name:     path.Base(k.path),
		Path:     k.path,
		SHA:      f.SHA,
		Size:     len(f.Content),
		Content:  wrap60(base64.StdEncoding.EncodeToString(f.Content)),
	})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	var req putRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	if req.Message == "" {
		writeMessage(w, http.StatusUnprocessableEntity, `Invalid request. "message" wasn't supplied.`)
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, "content is not valid Base64")
		return
	}
	k, ok := s.key(r, req.Branch)
	if !ok {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}

	c, created, err := s.putFile(r.Context(), k, content, req.SHA, req.Message)
	switch {
	case errors.Is(err, errStale):
		writeMessage(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", k.path, req.SHA))
		return
	case errors.Is(err, errSHARequired):
		writeMessage(w, http.StatusUnprocessableEntity, `Invalid request. "sha" wasn't supplied.`)
		return
	case err != nil:
		s.internal(w, r, err)
		return
	}

	s.logger.Info("contentsrv: file written",
		"request_id", kit.GetRequestID(r.Context()),
		"owner", k.owner, "repo", k.repo, "branch", k.branch, "path", k.path,
		"sha", c.BlobSHA, "created", created)

	var resp putResponse
	resp.Content.Name = path.Base(k.path)
	resp.Content.Path = k.path
	resp.Content.SHA = c.BlobSHA
	resp.Content.Size = len(content)
	resp.Commit.SHA = c.SHA
	resp.Commit.Message = c.Message
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCommits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	commits, err := s.Commits(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "repo"), q.Get("sha"), q.Get("path"))
	if err != nil {
		s.internal(w, r, err)
		return
	}
	if commits == nil {
		commits = []Commit{}
	}
	writeJSON(w, http.StatusOK, commits)
}

func (s *Server) internal(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("contentsrv: request failed",
		"request_id", kit.GetRequestID(r.Context()), "method", r.Method, "path", r.URL.Path, "error", err)
	writeMessage(w, http.StatusInternalServerError, "internal error")
}

// requestID tags each request with an id in the context and X-Request-ID.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = s.reqIDs()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := kit.WithTransport(kit.WithRequestID(r.Context(), id), "http")
		s.logger.Debug("contentsrv: request", "request_id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeMessage(w, http.StatusUnauthorized, "Bad credentials")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down with a
// five second grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("contentsrv: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("contentsrv: shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

// wrap60 breaks base64 text into 60-column lines as the hosted API does.
func wrap60(s string) string {
	var b strings.Builder
	for len(s) > 60 {
		b.WriteString(s[:60])
		b.WriteByte('\n')
		s = s[60:]
	}
	b.WriteString(s)
	b.WriteByte('\n')
	return b.String()
}
