package engine

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DBCmd is a database command, a key in QueryMap
type DBCmd int

// Query is a SQL query with dialect-specific variants. Placeholders are written as "?" for both
// dialects, Pick converts them to "$n" for postgres.
type Query struct {
	Sqlite   string
	Postgres string
}

// QueryMap maps commands to their queries
type QueryMap struct {
	queries map[DBCmd]Query
}

// NewQueryMap makes an empty QueryMap
func NewQueryMap() *QueryMap {
	return &QueryMap{queries: make(map[DBCmd]Query)}
}

// Add sets dialect-specific queries for a command
func (q *QueryMap) Add(cmd DBCmd, query Query) *QueryMap {
	q.queries[cmd] = query
	return q
}

// AddSame sets the same query for all dialects
func (q *QueryMap) AddSame(cmd DBCmd, query string) *QueryMap {
	return q.Add(cmd, Query{Sqlite: query, Postgres: query})
}

// Pick returns a query for the engine type and command, with placeholders bound for the engine
func (q *QueryMap) Pick(dbType Type, cmd DBCmd) (string, error) {
	query, ok := q.queries[cmd]
	if !ok {
		return "", fmt.Errorf("unsupported command %d", cmd)
	}
	switch dbType {
	case Sqlite:
		return query.Sqlite, nil
	case Postgres:
		return sqlx.Rebind(sqlx.DOLLAR, query.Postgres), nil
	default:
		return "", fmt.Errorf("unsupported database type %q", dbType)
	}
}
