// Package httpapi wires the engine's HTTP surface: POST /_api/auth, GET
// /_api/ws, and static asset serving, per §6.
//
// Grounded on sovereign/cmd/sovereign/main.go's http.ServeMux wiring
// (mux.Handle per route, no framework) and sovereign/web/embed.go's
// embed-and-serve pattern, adapted to serve an embedded login page
// instead of an embedded SPA build, plus a <root>/public/ file server for
// the user's own static assets.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/temochka/lantern/internal/authdb"
	"github.com/temochka/lantern/internal/config"
	"github.com/temochka/lantern/internal/logging"
	"github.com/temochka/lantern/internal/migrate"
	"github.com/temochka/lantern/internal/password"
	"github.com/temochka/lantern/internal/sessiongate"
	"github.com/temochka/lantern/internal/userdb"
	"github.com/temochka/lantern/internal/wsconn"
	"github.com/temochka/lantern/web"
)

const (
	sessionCookieName = "lantern_session"
	sessionLifetime   = 365 * 24 * time.Hour
)

// Server owns the dependencies every HTTP handler needs.
type Server struct {
	cfg      *config.Config
	authDB   *authdb.Actor
	userDB   *userdb.Actor
	paths    migrate.Paths
	log      *logging.Logger
	publicFS string
}

// New constructs the HTTP surface described by §6.
func New(cfg *config.Config, authDB *authdb.Actor, userDB *userdb.Actor, paths migrate.Paths, log *logging.Logger) *Server {
	return &Server{
		cfg:      cfg,
		authDB:   authDB,
		userDB:   userDB,
		paths:    paths,
		log:      log,
		publicFS: filepath.Join(cfg.Root, "public"),
	}
}

// Mux builds the request router.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/_api/auth", s.handleAuth)
	mux.HandleFunc("/_api/ws", s.handleWebSocket)
	mux.HandleFunc("/", s.handleStatic)
	return mux
}

type authRequest struct {
	Password string `json:"password"`
}

type authResponse struct {
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	valid := s.cfg.SkipAuth
	if !valid {
		ok, err := password.Verify(s.cfg.PasswordSalt, req.Password, s.cfg.PasswordHash)
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		valid = ok
	}
	if !valid {
		http.Error(w, "Invalid password.", http.StatusUnprocessableEntity)
		return
	}

	token, err := password.RandomAlphanumeric(password.SessionTokenLength)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	expiresAt := now.Add(sessionLifetime)
	if err := s.authDB.CreateSession(r.Context(), token, now, expiresAt); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Expires:  expiresAt,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(authResponse{ExpiresAt: expiresAt.Format(time.RFC3339)})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, err := sessiongate.Resolve(r.Context(), r, s.authDB, s.cfg.SkipAuth)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	conn := wsconn.New(ws, s.userDB, s.paths, s.log, session != nil)
	conn.Run(context.Background())
}

// handleStatic implements §6's fallthrough routes: / and /index.html(.htm)
// serve the user's public/index.html if the session is valid, else the
// embedded login page; any other path not starting with /. is served
// from <root>/public/.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/.") {
		http.NotFound(w, r)
		return
	}

	if isIndexPath(r.URL.Path) {
		session, err := sessiongate.Resolve(r.Context(), r, s.authDB, s.cfg.SkipAuth)
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if session == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write(web.LoginPage())
			return
		}
		s.serveUserIndex(w, r)
		return
	}

	http.FileServer(http.Dir(s.publicFS)).ServeHTTP(w, r)
}

func isIndexPath(p string) bool {
	return p == "/" || p == "/index.html" || p == "/index.htm"
}

func (s *Server) serveUserIndex(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{"index.html", "index.htm"} {
		path := filepath.Join(s.publicFS, name)
		if _, err := os.Stat(path); err == nil {
			http.ServeFile(w, r, path)
			return
		}
	}
	http.NotFound(w, r)
}
