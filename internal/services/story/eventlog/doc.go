// Package eventlog coordinates one chat's durable event log with its two
// in-memory projections.
//
// A Coordinator replays the stored log once, then accepts new events by
// persisting them first and applying the stored copy to the Full-History and
// LLM-Context projections. A Registry owns one Coordinator per chat id.
package eventlog
