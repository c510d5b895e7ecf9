// Package event defines the chat event envelope, the closed set of chat
// event types, their payloads, and the registry that validates events before
// they are appended to a chat log.
//
// Events are immutable facts. The store assigns Seq on append; everything
// else is fixed when the event is built. Payloads decode into the sealed
// Payload interface so projections can switch over concrete types.
package event
