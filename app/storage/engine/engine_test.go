package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-pkgz/testutils/containers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	temp := t.TempDir()

	tests := []struct {
		name    string
		url     string
		want    Type
		wantErr bool
	}{
		{name: "in-memory sqlite", url: ":memory:", want: Sqlite},
		{name: "file:// prefix", url: "file://" + filepath.Join(temp, "file1.db"), want: Sqlite},
		{name: "file: prefix", url: "file:" + filepath.Join(temp, "file2.db"), want: Sqlite},
		{name: "sqlite:// prefix", url: "sqlite://" + filepath.Join(temp, "file3.db"), want: Sqlite},
		{name: "plain path", url: filepath.Join(temp, "file4.sqlite"), want: Sqlite},
		{name: "empty url", url: "", wantErr: true},
		{name: "bad directory", url: "/nonexistent-dir/sub/file.db", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := New(context.Background(), tt.url, "gr1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer db.Close()
			assert.Equal(t, tt.want, db.Type())
			assert.Equal(t, "gr1", db.GID())
		})
	}
}

func TestSQL_MakeLock(t *testing.T) {
	db, err := NewSqlite(":memory:", "gr1")
	require.NoError(t, err)
	defer db.Close()
	_, ok := db.MakeLock().(*sync.RWMutex)
	assert.True(t, ok, "sqlite uses a real lock")

	pg := &SQL{dbType: Postgres}
	lock := pg.MakeLock()
	_, ok = lock.(*NoopLocker)
	assert.True(t, ok, "postgres uses noop lock")
	lock.Lock()
	lock.RLock()
	lock.RUnlock()
	lock.Unlock()
}

func TestInitTable(t *testing.T) {
	ctx := context.Background()
	db, err := NewSqlite(":memory:", "gr1")
	require.NoError(t, err)
	defer db.Close()

	queries := NewQueryMap().
		AddSame(1, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)").
		AddSame(2, "CREATE INDEX IF NOT EXISTS idx_items_name ON items(name)").
		AddSame(3, "CREATE TABLE broken (")
	cfg := TableConfig{Name: "items", CreateTable: 1, CreateIndexes: 2, QueriesMap: queries}

	require.NoError(t, InitTable(ctx, db, cfg))
	_, err = db.Exec("INSERT INTO items (name) VALUES ('one')")
	require.NoError(t, err)
	var idx int
	require.NoError(t, db.Get(&idx, "SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_items_name'"))
	assert.Equal(t, 1, idx)

	// second call keeps the existing table and data
	require.NoError(t, InitTable(ctx, db, cfg))
	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM items"))
	assert.Equal(t, 1, count)

	assert.Error(t, InitTable(ctx, db, TableConfig{Name: "broken", CreateTable: 3, QueriesMap: queries}))
	assert.Error(t, InitTable(ctx, db, TableConfig{Name: "other", CreateTable: 99, QueriesMap: queries}))
	assert.Error(t, InitTable(ctx, db, TableConfig{Name: "other", CreateTable: 1, CreateIndexes: 98, QueriesMap: queries}))
	assert.Error(t, InitTable(ctx, nil, cfg))
}

func TestPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()
	pg := containers.NewPostgresTestContainerWithDB(ctx, t, "tl_spam_test")
	defer pg.Close(ctx)

	db, err := New(ctx, pg.ConnectionString(), "gr1")
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, Postgres, db.Type())
	_, ok := db.MakeLock().(*NoopLocker)
	assert.True(t, ok)

	queries := NewQueryMap().
		AddSame(1, "CREATE TABLE items (id SERIAL PRIMARY KEY, gid TEXT, name TEXT)").
		AddSame(2, "CREATE INDEX IF NOT EXISTS idx_items_gid ON items(gid)").
		AddSame(3, "INSERT INTO items (gid, name) VALUES (?, ?)").
		AddSame(4, "SELECT name FROM items WHERE gid = ? AND name = ?")
	cfg := TableConfig{Name: "items", CreateTable: 1, CreateIndexes: 2, QueriesMap: queries}
	require.NoError(t, InitTable(ctx, db, cfg))
	require.NoError(t, InitTable(ctx, db, cfg), "existing table is kept")

	insert, err := queries.Pick(db.Type(), 3)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, insert, db.GID(), "one")
	require.NoError(t, err)

	sel, err := queries.Pick(db.Type(), 4)
	require.NoError(t, err)
	var name string
	require.NoError(t, db.GetContext(ctx, &name, sel, db.GID(), "one"))
	assert.Equal(t, "one", name)
}
