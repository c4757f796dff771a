package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryMap_Pick(t *testing.T) {
	qmap := NewQueryMap().
		Add(1, Query{
			Sqlite:   "CREATE TABLE t (id INTEGER PRIMARY KEY AUTOINCREMENT)",
			Postgres: "CREATE TABLE t (id SERIAL PRIMARY KEY)",
		}).
		AddSame(2, "SELECT * FROM t WHERE gid = ? AND id = ?")

	tests := []struct {
		name    string
		dbType  Type
		cmd     DBCmd
		want    string
		wantErr bool
	}{
		{name: "sqlite schema", dbType: Sqlite, cmd: 1, want: "CREATE TABLE t (id INTEGER PRIMARY KEY AUTOINCREMENT)"},
		{name: "postgres schema", dbType: Postgres, cmd: 1, want: "CREATE TABLE t (id SERIAL PRIMARY KEY)"},
		{name: "sqlite placeholders kept", dbType: Sqlite, cmd: 2, want: "SELECT * FROM t WHERE gid = ? AND id = ?"},
		{name: "postgres placeholders rebound", dbType: Postgres, cmd: 2, want: "SELECT * FROM t WHERE gid = $1 AND id = $2"},
		{name: "unknown db type", dbType: Unknown, cmd: 1, wantErr: true},
		{name: "unknown command", dbType: Sqlite, cmd: 99, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := qmap.Pick(tt.dbType, tt.cmd)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
