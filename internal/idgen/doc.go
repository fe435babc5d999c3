// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// Subtask and session identifiers are always generated here, server-side -
// caller supplied ids are never trusted as primary keys.
package idgen
