// Package storage keeps audit records in sql databases. Each table is represented by a struct with
// methods implementing business logic for this data type. Queries are kept per dialect in
// engine.QueryMap, so the same storage works with sqlite and postgres.
package storage
