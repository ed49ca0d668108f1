// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data model for the conversation
// context engine.
//
// A conversation is an ordered slice of Message values. Order is
// chronological and is never reordered by the engine: components may
// truncate the slice or prepend synthetic system messages, nothing else.
package datatypes

// Message roles. The engine only ever produces RoleSystem messages itself;
// RoleUser and RoleAssistant arrive from the conversation surface.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn.
//
// Messages are treated as immutable once created. Components that need a
// modified history build a new slice rather than editing in place.
type Message struct {
	// Role is one of RoleSystem, RoleUser, RoleAssistant.
	Role string `json:"role" binding:"required,oneof=system user assistant"`

	// Content is the message text.
	Content string `json:"content"`

	// ToolCalls carries structured tool-call metadata emitted by the
	// assistant, if any. Nil for plain text turns.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is the structured metadata for a single tool invocation
// requested by the model.
type ToolCall struct {
	// ID is the call identifier assigned by the model boundary.
	ID string `json:"id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Arguments is the raw JSON argument payload.
	Arguments string `json:"arguments,omitempty"`
}

// SystemMessage builds a synthetic system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// LastUserText returns the content of the most recent user message, or ""
// if the history contains none.
//
// The retrieval orchestrator gates on this text: an empty result means
// there is nothing to retrieve against.
func LastUserText(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// CloneHistory returns a copy of the message slice. Messages are value
// types, so an element-wise copy fully decouples the two histories.
func CloneHistory(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
