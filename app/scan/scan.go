// Package scan runs the scoring engine over batches of posts seen by a viewer. Every session keeps
// its own thread context and the set of already scored posts, so each post is scored once per view.
// Sessions expire after a period of inactivity.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/tl-spam/lib/scorer"
	"github.com/umputun/tl-spam/lib/spamcheck"
	"github.com/umputun/tl-spam/lib/thread"
)

// Scorer scores a post in the thread context
type Scorer interface {
	CalcSpamScore(post spamcheck.Post, th scorer.Thread) (spamcheck.Result, error)
}

// Store persists flagged posts
type Store interface {
	Save(ctx context.Context, s spamcheck.Scored) error
}

// Config defines scanner parameters
type Config struct {
	Threshold   int           // score to flag a post
	SessionTTL  time.Duration // session expiration after last scan
	MaxSessions int           // max number of active sessions
	HistorySize int           // number of recent verdicts kept in memory
}

// Scanner scores posts per session, thread-safe
type Scanner struct {
	Config
	scorer   Scorer
	store    Store     // optional
	spamLog  io.Writer // optional, flagged verdicts as json lines
	history  *spamcheck.History
	sessions cache.Cache[string, *session]
	lock     sync.Mutex // guards session creation
	logLock  sync.Mutex
	now      func() time.Time
}

type session struct {
	sync.Mutex
	thread    *thread.Context
	processed map[string]struct{}
}

// Request is a batch of posts visible in a view of the session
type Request struct {
	Session string           `json:"session"`
	View    thread.View      `json:"view"`
	Posts   []spamcheck.Post `json:"posts"`
}

// Verdict is a scoring result of a single post
type Verdict struct {
	PostID  string               `json:"post_id"`
	Score   int                  `json:"score"`
	Reasons []string             `json:"reasons"`
	Checks  []spamcheck.Response `json:"checks,omitempty"`
	Flagged bool                 `json:"flagged"`
}

// Response is a result of a scan
type Response struct {
	Session  string    `json:"session"`
	Reset    bool      `json:"reset"` // true if the view changed and the thread was reset
	Stale    bool      `json:"stale"` // true if the session was reset by another scan, verdicts discarded
	Verdicts []Verdict `json:"verdicts"`
}

// ErrNoSession is returned for a request without session id
var ErrNoSession = errors.New("session id is required")

// defaults for Config
const (
	DefaultThreshold   = 50
	DefaultSessionTTL  = 30 * time.Minute
	DefaultMaxSessions = 1000
	DefaultHistorySize = 100
)

// New makes a Scanner. Zero config values are replaced by defaults.
func New(sc Scorer, cfg Config) *Scanner {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	return &Scanner{
		Config:   cfg,
		scorer:   sc,
		history:  spamcheck.NewHistory(cfg.HistorySize),
		sessions: cache.NewCache[string, *session]().WithMaxKeys(cfg.MaxSessions).WithTTL(cfg.SessionTTL).WithLRU(),
		now:      time.Now,
	}
}

// WithStore sets storage for flagged posts
func (s *Scanner) WithStore(store Store) *Scanner {
	s.store = store
	return s
}

// WithSpamLog sets a writer for flagged verdicts
func (s *Scanner) WithSpamLog(w io.Writer) *Scanner {
	s.spamLog = w
	return s
}

// Scan adds posts to the session thread and scores posts not scored before in this view.
// Posts are scored in thread order, so the root post is always scored first. Invalid posts reject
// the whole request before any state change.
func (s *Scanner) Scan(ctx context.Context, req Request) (Response, error) {
	if req.Session == "" {
		return Response{}, ErrNoSession
	}
	if err := validate(req.Posts); err != nil {
		return Response{}, err
	}

	sess := s.session(req.Session, req.View)
	resp := Response{Session: req.Session, Verdicts: []Verdict{}}

	scored, gen, reset, err := s.score(sess, req)
	if err != nil {
		return Response{}, err
	}
	resp.Reset = reset

	// state may change while flagged verdicts are stored, stale results are dropped
	sess.Lock()
	stale := sess.thread.Generation() != gen
	sess.Unlock()
	if stale {
		log.Printf("[DEBUG] session %s was reset during scan, %d verdicts discarded", req.Session, len(scored))
		resp.Stale = true
		return resp, nil
	}

	for _, sc := range scored {
		s.history.Push(sc)
		if sc.Flagged {
			s.flag(ctx, sc)
		}
		resp.Verdicts = append(resp.Verdicts, Verdict{
			PostID: sc.Post.ID, Score: sc.Result.Score, Reasons: sc.Result.Reasons, Checks: sc.Result.Checks, Flagged: sc.Flagged,
		})
	}
	return resp, nil
}

// Check scores a single post without thread context
func (s *Scanner) Check(post spamcheck.Post) (Verdict, error) {
	res, err := s.scorer.CalcSpamScore(post, nil)
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{PostID: post.ID, Score: res.Score, Reasons: res.Reasons, Checks: res.Checks,
		Flagged: res.Flagged(s.Threshold)}, nil
}

// Reset drops thread state of the session, returns false if the session doesn't exist
func (s *Scanner) Reset(id string) bool {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return false
	}
	sess.Lock()
	defer sess.Unlock()
	sess.thread.Reset()
	sess.processed = map[string]struct{}{}
	return true
}

// Sessions returns the number of active sessions
func (s *Scanner) Sessions() int {
	s.sessions.DeleteExpired()
	return s.sessions.Len()
}

// History returns up to n recent verdicts, oldest first
func (s *Scanner) History(n int) []spamcheck.Scored {
	return s.history.Last(n)
}

// score runs the scorer under the session lock and returns scored posts with the thread generation
func (s *Scanner) score(sess *session, req Request) (res []spamcheck.Scored, gen uint64, reset bool, err error) {
	sess.Lock()
	defer sess.Unlock()

	if sess.thread.Switch(req.View) {
		sess.processed = map[string]struct{}{}
		reset = true
		log.Printf("[DEBUG] session %s switched to view %q", req.Session, req.View.ID)
	}
	for _, p := range req.Posts {
		sess.thread.Add(p)
	}

	ts := s.now()
	for _, p := range sess.thread.Posts() {
		if _, ok := sess.processed[p.ID]; ok {
			continue
		}
		result, err := s.scorer.CalcSpamScore(p, sess.thread)
		if err != nil {
			return nil, 0, reset, fmt.Errorf("failed to score post %s: %w", p.ID, err)
		}
		sess.processed[p.ID] = struct{}{}
		res = append(res, spamcheck.Scored{Post: p, Result: result, Session: req.Session,
			Flagged: result.Flagged(s.Threshold), Time: ts})
	}
	return res, sess.thread.Generation(), reset, nil
}

// session returns existing session or makes a new one for the view, sliding its expiration
func (s *Scanner) session(id string, view thread.View) *session {
	s.lock.Lock()
	defer s.lock.Unlock()
	sess, ok := s.sessions.Get(id)
	if !ok {
		sess = &session{thread: thread.New(view), processed: map[string]struct{}{}}
		log.Printf("[DEBUG] new scan session %s", id)
	}
	s.sessions.Set(id, sess, 0)
	return sess
}

// flag logs and stores a flagged verdict, errors are logged only
func (s *Scanner) flag(ctx context.Context, sc spamcheck.Scored) {
	log.Printf("[INFO] post %s flagged, score %d, reasons: %v", sc.Post.ID, sc.Result.Score, sc.Result.Reasons)
	if s.spamLog != nil {
		s.writeSpamLog(sc)
	}
	if s.store != nil {
		if err := s.store.Save(ctx, sc); err != nil {
			log.Printf("[WARN] failed to store flagged post %s: %v", sc.Post.ID, err)
		}
	}
}

func (s *Scanner) writeSpamLog(sc spamcheck.Scored) {
	line, err := json.Marshal(struct {
		TimeStamp  string   `json:"timestamp"`
		Session    string   `json:"session"`
		PostID     string   `json:"post_id"`
		AuthorID   string   `json:"author_id"`
		ScreenName string   `json:"screen_name"`
		Content    string   `json:"content"`
		Score      int      `json:"score"`
		Reasons    []string `json:"reasons"`
	}{
		TimeStamp: sc.Time.Format(time.RFC3339), Session: sc.Session, PostID: sc.Post.ID, AuthorID: sc.Post.AuthorID(),
		ScreenName: sc.Post.Author.ScreenName, Content: sc.Post.Content, Score: sc.Result.Score, Reasons: sc.Result.Reasons,
	})
	if err != nil {
		log.Printf("[WARN] can't marshal spam log entry: %v", err)
		return
	}
	s.logLock.Lock()
	defer s.logLock.Unlock()
	if _, err := s.spamLog.Write(append(line, '\n')); err != nil {
		log.Printf("[WARN] can't write to spam log: %v", err)
	}
}

// validate checks all posts and reports all invalid ones
func validate(posts []spamcheck.Post) error {
	var errs *multierror.Error
	for i := range posts {
		if err := posts[i].Validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("post %d: %w", i, err))
		}
	}
	return errs.ErrorOrNil()
}
