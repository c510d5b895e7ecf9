// Package app composes the story core: it opens the configured event store,
// builds the per-chat coordinator registry, and exposes named intents and
// projection reads keyed by chat id.
package app
