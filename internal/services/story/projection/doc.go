// Package projection derives read models from a chat's event log.
//
// History keeps every entry ever created, with its soft-delete and
// hidden-by-chapter state, for human display and for commands that need a
// read oracle. Context keeps the same log shaped for a language model: the
// story pins first and older material collapses behind chapter summaries.
//
// Both projections are deterministic: replaying the same ordered events into
// fresh instances yields identical output. Events that target missing or
// deleted entries are no-ops.
package projection
