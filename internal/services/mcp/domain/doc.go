// Package domain translates MCP tool calls into story chat intents.
//
// Each tool pairs a schema constructor (XxxTool) with a handler constructor
// (XxxHandler) bound to a ChatService. Mutating handlers announce the chat
// resources they changed so subscribed clients can refresh.
package domain
