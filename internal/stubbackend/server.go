// Package stubbackend is a local stand-in for the image generation service.
// It speaks the same HTTP contract and renders small procedural images.
package stubbackend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/basel-ax/imagestudio/internal/domain"
	"github.com/basel-ax/imagestudio/internal/infrastructure/backend"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	userKey       contextKey = "user"
	requestIDKey  contextKey = "request_id"
	defaultTile              = 64
	maxUploadSize            = 10 << 20
)

// Options configures the stub. A nil Users map accepts any non-empty credentials.
type Options struct {
	Users  map[string]string
	Tile   int
	Logger *zerolog.Logger
}

type failure struct {
	status int
	detail string
}

// Server holds issued tokens and per-user history in memory.
type Server struct {
	users  map[string]string
	tile   int
	logger zerolog.Logger

	mu       sync.Mutex
	tokens   map[string]string
	history  map[string][]domain.HistoryEntry
	nextID   int
	failures map[string]failure
	calls    map[string]int
}

func New(opts Options) *Server {
	tile := opts.Tile
	if tile <= 0 {
		tile = defaultTile
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Server{
		users:    opts.Users,
		tile:     tile,
		logger:   logger.With().Str("component", "stub-backend").Logger(),
		tokens:   make(map[string]string),
		history:  make(map[string][]domain.HistoryEntry),
		failures: make(map[string]failure),
		calls:    make(map[string]int),
	}
}

// Router builds the chi router serving the API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Post(backend.PathToken, s.handleToken)
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post(backend.PathTextToImage, s.handleTextToImage)
		r.Post(backend.PathImageToImage, s.handleImageToImage)
		r.Get(backend.PathHistory, s.handleHistory)
	})
	return r
}

// FailWith makes every later request to path answer with status and detail.
// A zero status clears the failure.
func (s *Server) FailWith(path string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, path)
		return
	}
	s.failures[path] = failure{status: status, detail: detail}
}

// Calls reports how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *Server) record(path string) (failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[path]++
	f, ok := s.failures[path]
	return f, ok
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.record(r.URL.Path); ok {
		writeDetail(w, f.status, f.detail)
		return
	}

	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		creds.Username = r.FormValue("username")
		creds.Password = r.FormValue("password")
	} else if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	if !s.authenticate(creds.Username, creds.Password) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = creds.Username
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

func (s *Server) authenticate(username, password string) bool {
	if username == "" || password == "" {
		return false
	}
	if s.users == nil {
		return true
	}
	want, ok := s.users[username]
	return ok && want == password
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		user, known := s.tokens[strings.TrimSpace(token)]
		s.mu.Unlock()
		if !ok || !known {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.record(r.URL.Path); ok {
		writeDetail(w, f.status, f.detail)
		return
	}
	user := userFromContext(r.Context())

	s.mu.Lock()
	entries := append([]domain.HistoryEntry{}, s.history[user]...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) remember(user, prompt string, variation bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.history[user] = append(s.history[user], domain.HistoryEntry{
		ID:          s.nextID,
		UserID:      userID(user),
		Prompt:      prompt,
		ImageURL:    "/static/images/" + uuid.NewString() + ".png",
		IsVariation: variation,
		CreatedAt:   domain.Timestamp{Time: time.Now().UTC()},
	})
}

func userID(user string) int {
	id := 0
	for _, c := range user {
		id = (id*31 + int(c)) % 100000
	}
	return id
}

func userFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userKey).(string); ok {
		return v
	}
	return ""
}

type validationItem struct {
	Loc []string `json:"loc"`
	Msg string   `json:"msg"`
}

func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []validationItem{{Loc: []string{"body", field}, Msg: msg}},
	})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, rid)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		rid, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Info().
			Str("request_id", rid).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	})
}
