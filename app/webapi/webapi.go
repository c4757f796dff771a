// Package webapi provides a web API for the scoring service.
package webapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	"github.com/forPelevin/gomoji"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/tl-spam/app/scan"
	"github.com/umputun/tl-spam/app/storage"
	"github.com/umputun/tl-spam/app/verify"
	"github.com/umputun/tl-spam/lib/lang"
	"github.com/umputun/tl-spam/lib/lexicon"
	"github.com/umputun/tl-spam/lib/spamcheck"
)

// Server is a web API server.
type Server struct {
	Config
}

// Config defines server parameters
type Config struct {
	Version    string          // version to show in /ping
	ListenAddr string          // listen address
	Scanner    Scanner         // session scanner
	Lexicon    Lexicon         // lexicon matcher
	Reloader   LexiconReloader // lexicon files, optional
	Flagged    FlaggedReader   // flagged posts storage, optional
	Verifier   Verifier        // verification lookup, optional
	Table      lang.Table      // script table for /detect, lang.DefaultTable if empty
	AuthPasswd string          // basic auth password for user "tl-spam"
	RateLimit  float64         // requests per second per client, 50 if not set
	Dbg        bool            // debug mode
}

// Scanner scores posts.
type Scanner interface {
	Scan(ctx context.Context, req scan.Request) (scan.Response, error)
	Check(post spamcheck.Post) (scan.Verdict, error)
	Reset(id string) bool
	History(n int) []spamcheck.Scored
}

// Lexicon finds the first lexicon entry matching a text.
type Lexicon interface {
	Find(text string) (lexicon.Entry, bool)
}

// LexiconReloader reloads lexicon entries from files.
type LexiconReloader interface {
	Reload() (lexicon.LoadResult, error)
}

// FlaggedReader reads stored flagged posts.
type FlaggedReader interface {
	Read(ctx context.Context, limit int) ([]storage.FlaggedPost, error)
}

// Verifier looks up verification timestamps.
type Verifier interface {
	VerifiedSince(ctx context.Context, screenName string) (time.Time, error)
}

// NewServer creates a new web API server.
func NewServer(config Config) *Server {
	if len(config.Table) == 0 {
		config.Table = lang.DefaultTable
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 50
	}
	return &Server{Config: config}
}

// Run starts server and accepts scoring requests.
func (s *Server) Run(ctx context.Context) error {
	if s.AuthPasswd != "" {
		log.Printf("[INFO] basic auth enabled for webapi server")
	} else {
		log.Printf("[WARN] basic auth disabled, access to webapi is not protected")
	}

	srv := &http.Server{Addr: s.ListenAddr, Handler: s.routes(), ReadTimeout: 5 * time.Second,
		WriteTimeout: 30 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown webapi server: %v", err)
		} else {
			log.Printf("[INFO] webapi server stopped")
		}
	}()

	log.Printf("[INFO] start webapi server on %s", s.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to run server: %w", err)
	}
	return nil
}

func (s *Server) routes() http.Handler {
	lmt := tollbooth.NewLimiter(s.RateLimit, nil)
	lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr", IndexFromRight: 0})

	router := routegroup.New(http.NewServeMux())
	router.Use(rest.Recoverer(lgr.Default()))
	router.Use(rest.Throttle(1000))
	router.Use(rest.AppInfo("tl-spam", "umputun", s.Version), rest.Ping)
	router.Use(tollbooth.HTTPMiddleware(lmt))
	router.Use(rest.SizeLimit(1024 * 1024)) // 1M max request size

	router.Group().Route(func(api *routegroup.Bundle) {
		api.Use(s.authMiddleware(rest.BasicAuthWithPrompt("tl-spam", s.AuthPasswd)))
		api.HandleFunc("POST /scan", s.scanHandler)                      // score a batch of posts in a session
		api.HandleFunc("DELETE /session/{id}", s.resetSessionHandler)    // drop session thread state
		api.HandleFunc("POST /check", s.checkHandler)                    // score a single post, no thread
		api.HandleFunc("POST /detect", s.detectHandler)                  // language and script shares of a text
		api.HandleFunc("POST /lexicon/match", s.lexiconMatchHandler)     // match a text against the lexicon
		api.HandleFunc("PUT /lexicon", s.lexiconReloadHandler)           // reload lexicon files
		api.HandleFunc("GET /flagged", s.flaggedHandler)                 // stored flagged posts
		api.HandleFunc("GET /history", s.historyHandler)                 // recent verdicts
		api.HandleFunc("GET /verified/{screen_name}", s.verifiedHandler) // verification timestamp
	})
	return router
}

// scanHandler handles POST /scan request. It scores posts of the session not scored before.
func (s *Server) scanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Session string        `json:"session"`
		View    viewRequest   `json:"view"`
		Posts   []postRequest `json:"posts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, http.StatusBadRequest, "can't decode request", err)
		return
	}

	posts, err := toPosts(req.Posts)
	if err != nil {
		s.renderError(w, http.StatusBadRequest, "invalid posts", err)
		return
	}

	resp, err := s.Scanner.Scan(r.Context(), scan.Request{Session: req.Session, View: req.View.toView(), Posts: posts})
	if err != nil {
		s.renderError(w, http.StatusBadRequest, "can't scan posts", err)
		return
	}
	rest.RenderJSON(w, resp)
}

// resetSessionHandler handles DELETE /session/{id} request.
func (s *Server) resetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.Scanner.Reset(id) {
		s.renderError(w, http.StatusNotFound, "session not found", fmt.Errorf("no session %q", id))
		return
	}
	rest.RenderJSON(w, rest.JSON{"reset": true, "session": id})
}

// checkHandler handles POST /check request. It scores a single post without thread context.
func (s *Server) checkHandler(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, http.StatusBadRequest, "can't decode request", err)
		return
	}
	post, err := req.toPost()
	if err != nil {
		s.renderError(w, http.StatusBadRequest, "invalid post", err)
		return
	}
	verdict, err := s.Scanner.Check(post)
	if err != nil {
		s.renderError(w, http.StatusBadRequest, "can't check post", err)
		return
	}
	rest.RenderJSON(w, verdict)
}

// detectHandler handles POST /detect request. It returns detected labels, script ratios and emoji count.
func (s *Server) detectHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, http.StatusBadRequest, "can't decode request", err)
		return
	}
	guess := s.Table.Detect(req.Text)
	rest.RenderJSON(w, rest.JSON{
		"primary":     guess.Primary,
		"secondary":   guess.Secondary,
		"ratios":      s.Table.Ratios(req.Text),
		"emoji_count": len(gomoji.CollectAll(req.Text)),
	})
}

// lexiconMatchHandler handles POST /lexicon/match request.
func (s *Server) lexiconMatchHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, http.StatusBadRequest, "can't decode request", err)
		return
	}
	entry, ok := s.Lexicon.Find(req.Text)
	if !ok {
		rest.RenderJSON(w, rest.JSON{"match": false})
		return
	}
	rest.RenderJSON(w, rest.JSON{"match": true, "entry": entry.String()})
}

// lexiconReloadHandler handles PUT /lexicon request. It reloads lexicon files.
func (s *Server) lexiconReloadHandler(w http.ResponseWriter, _ *http.Request) {
	if s.Reloader == nil {
		s.renderError(w, http.StatusNotImplemented, "lexicon files not configured", errors.New("no lexicon files"))
		return
	}
	lr, err := s.Reloader.Reload()
	if err != nil {
		s.renderError(w, http.StatusInternalServerError, "can't reload lexicon", err)
		return
	}
	rest.RenderJSON(w, rest.JSON{"reloaded": true, "literals": lr.Literals, "patterns": lr.Patterns})
}

// flaggedHandler handles GET /flagged?limit=N request.
func (s *Server) flaggedHandler(w http.ResponseWriter, r *http.Request) {
	if s.Flagged == nil {
		s.renderError(w, http.StatusNotImplemented, "storage not configured", errors.New("no storage"))
		return
	}
	limit, err := limitParam(r, 100)
	if err != nil {
		s.renderError(w, http.StatusBadRequest, "invalid limit", err)
		return
	}
	recs, err := s.Flagged.Read(r.Context(), limit)
	if err != nil {
		s.renderError(w, http.StatusInternalServerError, "can't read flagged posts", err)
		return
	}
	rest.RenderJSON(w, rest.JSON{"flagged": recs, "count": len(recs)})
}

// historyHandler handles GET /history?limit=N request. It returns recent verdicts, oldest first.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 100)
	if err != nil {
		s.renderError(w, http.StatusBadRequest, "invalid limit", err)
		return
	}
	hist := s.Scanner.History(limit)
	rest.RenderJSON(w, rest.JSON{"history": hist, "count": len(hist)})
}

// verifiedHandler handles GET /verified/{screen_name} request.
func (s *Server) verifiedHandler(w http.ResponseWriter, r *http.Request) {
	if s.Verifier == nil {
		s.renderError(w, http.StatusNotImplemented, "verification lookup not configured", errors.New("no verifier"))
		return
	}
	name := strings.TrimPrefix(r.PathValue("screen_name"), "@")
	ts, err := s.Verifier.VerifiedSince(r.Context(), name)
	switch {
	case errors.Is(err, verify.ErrNotVerified):
		rest.RenderJSON(w, rest.JSON{"screen_name": name, "verified": false})
	case err != nil:
		s.renderError(w, http.StatusBadGateway, "can't look up verification", err)
	default:
		rest.RenderJSON(w, rest.JSON{"screen_name": name, "verified": true, "verified_since": ts})
	}
}

func (s *Server) renderError(w http.ResponseWriter, status int, msg string, err error) {
	log.Printf("[WARN] %s: %v", msg, err)
	w.WriteHeader(status)
	rest.RenderJSON(w, rest.JSON{"error": msg, "details": err.Error()})
}

func (s *Server) authMiddleware(mw func(next http.Handler) http.Handler) func(next http.Handler) http.Handler {
	if s.AuthPasswd == "" {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return func(next http.Handler) http.Handler {
		return mw(next)
	}
}

func limitParam(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit should be a positive number, got %q", v)
	}
	return limit, nil
}

// GenerateRandomPassword generates a random password of a given length
func GenerateRandomPassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()_+"

	var password strings.Builder
	charsetSize := big.NewInt(int64(len(charset)))

	for i := 0; i < length; i++ {
		randomNumber, err := rand.Int(rand.Reader, charsetSize)
		if err != nil {
			return "", err
		}

		password.WriteByte(charset[randomNumber.Int64()])
	}

	return password.String(), nil
}
