// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "testing"

func TestLastUserText(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleUser, Content: "latest"},
		{Role: RoleSystem, Content: "note"},
	}
	if got := LastUserText(msgs); got != "latest" {
		t.Errorf("expected latest user message, got %q", got)
	}
	if got := LastUserText(nil); got != "" {
		t.Errorf("expected empty string for empty history, got %q", got)
	}
}

func TestCloneHistoryDecouples(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: "original"}}
	clone := CloneHistory(msgs)

	msgs[0].Content = "edited"
	if clone[0].Content != "original" {
		t.Errorf("clone must not share elements with the source, got %q", clone[0].Content)
	}
}
