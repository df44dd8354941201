// Package events provides the typed progress channel for generation runs.
//
// A session publishes progress events (thinking, tool execution, content
// updates, status changes) to a Bus; callers that want live feedback subscribe
// and drain a channel. Publishing never blocks: each subscriber has a bounded
// buffer and events are dropped for subscribers that fall behind, so a slow
// observer can never stall the stream handler.
package events
