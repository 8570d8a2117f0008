// Package store persists poll records.
//
// This package is internal to labwatch. It defines the record schema and a
// two-tier read model: listing queries return a light projection, and the
// large response bodies are fetched separately by record ID.
//
// The main components are:
//
//   - [Record]: one poll attempt (table poll_entry)
//   - [Responses]: the deferred response bodies of a record
//   - [Store]: Interface combining [Recorder] and [Reader]
//   - [GormStore]: SQL implementation backed by SQLite or PostgreSQL
//   - [MemoryStore]: in-memory implementation, optionally bounded
//
// A [GormStore] holds a single connection. Poll cycles and exports never share
// one concurrently, so no extra locking is layered on top of the database.
package store
