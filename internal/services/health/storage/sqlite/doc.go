// Package sqlite provides the SQLite-backed transaction manager for health
// records, medical resources and their change log.
//
// Every mutation runs in one transaction together with the change-log rows it
// produces, so readers either see a write and its log entries or neither.
package sqlite
