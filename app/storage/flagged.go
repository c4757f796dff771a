package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/umputun/tl-spam/app/storage/engine"
	"github.com/umputun/tl-spam/lib/spamcheck"
)

// ErrNotFound is returned when a flagged post doesn't exist
var ErrNotFound = errors.New("not found")

// FlaggedPosts is a storage for posts flagged as spam. Records are audit only, scoring never reads them.
type FlaggedPosts struct {
	*engine.SQL
	engine.RWLocker
}

// FlaggedPost is a stored verdict of a flagged post
type FlaggedPost struct {
	ID          int64                `db:"id" json:"-"`
	GID         string               `db:"gid" json:"-"`
	PostID      string               `db:"post_id" json:"post_id"`
	AuthorID    string               `db:"author_id" json:"author_id"`
	ScreenName  string               `db:"screen_name" json:"screen_name"`
	Language    string               `db:"language" json:"language,omitempty"`
	Content     string               `db:"content" json:"content"`
	Score       int                  `db:"score" json:"score"`
	Session     string               `db:"session" json:"session,omitempty"`
	Timestamp   time.Time            `db:"created_at" json:"timestamp"`
	ReasonsJSON string               `db:"reasons" json:"-"`
	ChecksJSON  string               `db:"checks" json:"-"`
	Reasons     []string             `db:"-" json:"reasons"`
	Checks      []spamcheck.Response `db:"-" json:"checks,omitempty"`
}

// NewFlaggedPost makes a record from a scored post
func NewFlaggedPost(s spamcheck.Scored) FlaggedPost {
	return FlaggedPost{
		PostID:     s.Post.ID,
		AuthorID:   s.Post.AuthorID(),
		ScreenName: s.Post.Author.ScreenName,
		Language:   s.Post.Language,
		Content:    s.Post.Content,
		Score:      s.Result.Score,
		Reasons:    s.Result.Reasons,
		Checks:     s.Result.Checks,
		Session:    s.Session,
		Timestamp:  s.Time,
	}
}

// flagged posts command constants
const (
	CmdCreateFlaggedTable engine.DBCmd = iota + 100
	CmdCreateFlaggedIndexes
	CmdUpsertFlagged
	CmdReadFlagged
	CmdGetFlagged
	CmdCountFlagged
	CmdDeleteFlagged
	CmdCountFlaggedByAuthor
)

var flaggedQueries = engine.NewQueryMap().
	Add(CmdCreateFlaggedTable, engine.Query{
		Sqlite: `CREATE TABLE IF NOT EXISTS flagged_posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			gid TEXT NOT NULL DEFAULT '',
			post_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			screen_name TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			score INTEGER NOT NULL DEFAULT 0,
			session TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			reasons TEXT NOT NULL DEFAULT '[]',
			checks TEXT NOT NULL DEFAULT '[]',
			UNIQUE(gid, post_id)
		)`,
		Postgres: `CREATE TABLE IF NOT EXISTS flagged_posts (
			id SERIAL PRIMARY KEY,
			gid TEXT NOT NULL DEFAULT '',
			post_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			screen_name TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			score INTEGER NOT NULL DEFAULT 0,
			session TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			reasons TEXT NOT NULL DEFAULT '[]',
			checks TEXT NOT NULL DEFAULT '[]',
			UNIQUE(gid, post_id)
		)`,
	}).
	AddSame(CmdCreateFlaggedIndexes, "CREATE INDEX IF NOT EXISTS idx_flagged_gid_time ON flagged_posts(gid, created_at)").
	AddSame(CmdUpsertFlagged, `INSERT INTO flagged_posts
			(gid, post_id, author_id, screen_name, language, content, score, session, created_at, reasons, checks)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (gid, post_id) DO UPDATE SET
			score = excluded.score, session = excluded.session, created_at = excluded.created_at,
			reasons = excluded.reasons, checks = excluded.checks`).
	AddSame(CmdReadFlagged, "SELECT * FROM flagged_posts WHERE gid = ? ORDER BY created_at DESC, id DESC LIMIT ?").
	AddSame(CmdGetFlagged, "SELECT * FROM flagged_posts WHERE gid = ? AND post_id = ?").
	AddSame(CmdCountFlagged, "SELECT COUNT(*) FROM flagged_posts WHERE gid = ?").
	AddSame(CmdDeleteFlagged, "DELETE FROM flagged_posts WHERE gid = ? AND post_id = ?").
	AddSame(CmdCountFlaggedByAuthor, "SELECT COUNT(*) FROM flagged_posts WHERE gid = ? AND author_id = ?")

// NewFlaggedPosts makes a FlaggedPosts storage and creates the table if needed
func NewFlaggedPosts(ctx context.Context, db *engine.SQL) (*FlaggedPosts, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}
	cfg := engine.TableConfig{
		Name:          "flagged_posts",
		CreateTable:   CmdCreateFlaggedTable,
		CreateIndexes: CmdCreateFlaggedIndexes,
		QueriesMap:    flaggedQueries,
	}
	if err := engine.InitTable(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("failed to init flagged posts storage: %w", err)
	}
	return &FlaggedPosts{SQL: db, RWLocker: db.MakeLock()}, nil
}

// Write stores a flagged post. A post flagged again replaces the previous verdict.
func (f *FlaggedPosts) Write(ctx context.Context, rec FlaggedPost) error {
	if rec.PostID == "" || rec.AuthorID == "" {
		return fmt.Errorf("flagged post requires post and author ids")
	}
	if rec.Reasons == nil {
		rec.Reasons = []string{}
	}
	reasons, err := json.Marshal(rec.Reasons)
	if err != nil {
		return fmt.Errorf("failed to marshal reasons: %w", err)
	}
	checks, err := json.Marshal(rec.Checks)
	if err != nil {
		return fmt.Errorf("failed to marshal checks: %w", err)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	query, err := flaggedQueries.Pick(f.Type(), CmdUpsertFlagged)
	if err != nil {
		return fmt.Errorf("failed to get upsert query: %w", err)
	}

	f.Lock()
	defer f.Unlock()
	_, err = f.ExecContext(ctx, query, f.GID(), rec.PostID, rec.AuthorID, rec.ScreenName, rec.Language, rec.Content,
		rec.Score, rec.Session, rec.Timestamp.UTC(), string(reasons), string(checks))
	if err != nil {
		return fmt.Errorf("failed to write flagged post %s: %w", rec.PostID, err)
	}
	log.Printf("[INFO] flagged post %s by %s stored, score %d", rec.PostID, rec.AuthorID, rec.Score)
	return nil
}

// Save stores a scored post as flagged
func (f *FlaggedPosts) Save(ctx context.Context, s spamcheck.Scored) error {
	return f.Write(ctx, NewFlaggedPost(s))
}

// Read returns up to limit most recent flagged posts, newest first
func (f *FlaggedPosts) Read(ctx context.Context, limit int) ([]FlaggedPost, error) {
	query, err := flaggedQueries.Pick(f.Type(), CmdReadFlagged)
	if err != nil {
		return nil, fmt.Errorf("failed to get read query: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}

	f.RLock()
	defer f.RUnlock()
	var recs []FlaggedPost
	if err := f.SelectContext(ctx, &recs, query, f.GID(), limit); err != nil {
		return nil, fmt.Errorf("failed to read flagged posts: %w", err)
	}
	for i := range recs {
		if err := recs[i].decode(); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// Get returns a flagged post by post id, ErrNotFound if absent
func (f *FlaggedPosts) Get(ctx context.Context, postID string) (FlaggedPost, error) {
	query, err := flaggedQueries.Pick(f.Type(), CmdGetFlagged)
	if err != nil {
		return FlaggedPost{}, fmt.Errorf("failed to get query: %w", err)
	}

	f.RLock()
	defer f.RUnlock()
	var recs []FlaggedPost
	if err := f.SelectContext(ctx, &recs, query, f.GID(), postID); err != nil {
		return FlaggedPost{}, fmt.Errorf("failed to get flagged post %s: %w", postID, err)
	}
	if len(recs) == 0 {
		return FlaggedPost{}, fmt.Errorf("flagged post %s: %w", postID, ErrNotFound)
	}
	rec := recs[0]
	return rec, rec.decode()
}

// Count returns the number of flagged posts
func (f *FlaggedPosts) Count(ctx context.Context) (int, error) {
	return f.count(ctx, CmdCountFlagged, f.GID())
}

// CountByAuthor returns the number of flagged posts of the author
func (f *FlaggedPosts) CountByAuthor(ctx context.Context, authorID string) (int, error) {
	return f.count(ctx, CmdCountFlaggedByAuthor, f.GID(), authorID)
}

// Delete removes a flagged post, ErrNotFound if absent
func (f *FlaggedPosts) Delete(ctx context.Context, postID string) error {
	query, err := flaggedQueries.Pick(f.Type(), CmdDeleteFlagged)
	if err != nil {
		return fmt.Errorf("failed to get delete query: %w", err)
	}

	f.Lock()
	defer f.Unlock()
	res, err := f.ExecContext(ctx, query, f.GID(), postID)
	if err != nil {
		return fmt.Errorf("failed to delete flagged post %s: %w", postID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("flagged post %s: %w", postID, ErrNotFound)
	}
	return nil
}

func (f *FlaggedPosts) count(ctx context.Context, cmd engine.DBCmd, args ...any) (int, error) {
	query, err := flaggedQueries.Pick(f.Type(), cmd)
	if err != nil {
		return 0, fmt.Errorf("failed to get count query: %w", err)
	}

	f.RLock()
	defer f.RUnlock()
	var count int
	if err := f.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count flagged posts: %w", err)
	}
	return count, nil
}

func (r *FlaggedPost) decode() error {
	if err := json.Unmarshal([]byte(r.ReasonsJSON), &r.Reasons); err != nil {
		return fmt.Errorf("failed to unmarshal reasons of %s: %w", r.PostID, err)
	}
	if err := json.Unmarshal([]byte(r.ChecksJSON), &r.Checks); err != nil {
		return fmt.Errorf("failed to unmarshal checks of %s: %w", r.PostID, err)
	}
	r.Timestamp = r.Timestamp.Local()
	return nil
}
