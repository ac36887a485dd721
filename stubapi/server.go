// Package stubapi provides a minimal cookie-session API server.
//
// It is not a product: it exists so the transport client can be exercised
// end to end over real HTTP, both in package tests and in the demo command.
// Login verifies a password and establishes a session cookie, the refresh
// endpoint exchanges that cookie for a fresh access token, and the protected
// resource rejects missing or expired tokens with 401.
package stubapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/docker/libtrust"
	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/maps"
)

// Set a Decoder instance as a package global, because it caches
// meta-data about structs, and an instance can be shared safely.
var decoder = schema.NewDecoder()

// SessionCookieName is the name of the cookie carrying the session proof.
const SessionCookieName = "stub_session"

const defaultTokenExpiration = 5 * time.Minute

// Server is the stub API.
type Server struct {
	users  map[string]string
	issuer TokenIssuer

	clock  clockwork.Clock
	logger *zap.Logger

	expiration time.Duration

	mu           sync.Mutex
	sessions     map[string]string
	refreshCalls int
}

// NewServer returns a new Server authenticating the given users
// (a username to bcrypt password hash map) with a freshly generated
// signing key.
func NewServer(users map[string]string, opts ...ServerOption) (*Server, error) {
	s := &Server{
		users:    maps.Clone(users),
		sessions: make(map[string]string),
	}

	for _, opt := range opts {
		opt.applyServer(s)
	}

	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}

	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	if s.expiration == 0 {
		s.expiration = defaultTokenExpiration
	}

	signingKey, err := libtrust.GenerateECP256PrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}

	s.issuer = NewTokenIssuer("stubapi", signingKey, s.expiration, s.clock)

	return s, nil
}

// ServerOption configures a Server.
type ServerOption interface {
	applyServer(s *Server)
}

// WithClock sets the clock tokens are issued and verified against.
func WithClock(clock clockwork.Clock) ServerOption {
	return serverClockOption{clock}
}

type serverClockOption struct {
	clock clockwork.Clock
}

func (o serverClockOption) applyServer(s *Server) { s.clock = o.clock }

// WithLogger sets the logger of the Server.
func WithLogger(logger *zap.Logger) ServerOption {
	return serverLoggerOption{logger}
}

type serverLoggerOption struct {
	logger *zap.Logger
}

func (o serverLoggerOption) applyServer(s *Server) { s.logger = o.logger }

// WithTokenExpiration sets the lifetime of issued access tokens.
func WithTokenExpiration(expiration time.Duration) ServerOption {
	return serverExpirationOption{expiration}
}

type serverExpirationOption struct {
	expiration time.Duration
}

func (o serverExpirationOption) applyServer(s *Server) { s.expiration = o.expiration }

// Handler returns the HTTP handler of the stub API.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Path("/session/login").Methods("POST").HandlerFunc(s.loginHandler)
	router.Path("/session/refresh").Methods("POST").HandlerFunc(s.refreshHandler)
	router.Path("/api/profile").Methods("GET").HandlerFunc(s.profileHandler)

	return router
}

// RefreshCalls returns how many times the refresh endpoint has been called.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refreshCalls
}

// RevokeSessions invalidates every active session.
// Subsequent refresh calls fail until a new login.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]string)
}

type loginRequest struct {
	Username string `schema:"username"`
	Password string `schema:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type profileResponse struct {
	Subject string `json:"subject"`
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)

		return
	}

	var login loginRequest

	err = decoder.Decode(&login, r.PostForm)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)

		return
	}

	passwordHash, ok := s.users[login.Username]
	if !ok {
		// timing attack paranoia
		bcrypt.CompareHashAndPassword([]byte{}, []byte(login.Password))

		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

		return
	}

	err = bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(login.Password))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

		return
	}

	sessionID := uuid.Must(uuid.NewV4()).String()

	s.mu.Lock()
	s.sessions[sessionID] = login.Username
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
	})

	s.logger.Debug("session established", zap.String("username", login.Username))

	s.writeToken(w, login.Username)
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.refreshCalls++
	s.mu.Unlock()

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

		return
	}

	s.mu.Lock()
	username, ok := s.sessions[cookie.Value]
	s.mu.Unlock()

	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

		return
	}

	s.logger.Debug("access token refreshed", zap.String("username", username))

	s.writeToken(w, username)
}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	const prefix = "Bearer "

	authorization := r.Header.Get("Authorization")
	if !strings.HasPrefix(authorization, prefix) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

		return
	}

	subject, err := s.issuer.Verify(strings.TrimPrefix(authorization, prefix))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profileResponse{Subject: subject})
}

func (s *Server) writeToken(w http.ResponseWriter, username string) {
	token, err := s.issuer.Issue(username)
	if err != nil {
		s.logger.Error("issuing token", zap.Error(err))

		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokenResponse{AccessToken: token})
}
