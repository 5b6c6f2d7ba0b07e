// Package store persists file, job, suggestion, and review records in
// SQLite. Job status changes are single atomic writes guarded by the current
// status, so the workflow never observes half-applied transitions.
package store
