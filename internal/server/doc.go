// Package server provides the optional status HTTP server for labwatch.
//
// This package is internal to labwatch. It serves recent poll records and
// Prometheus metrics while the poller runs. Records are read from a
// [store.Reader], normally an in-memory mirror of recently committed cycles,
// so requests never contend for the poller's database connection.
package server
