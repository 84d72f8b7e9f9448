// ABOUTME: Pure merge of a tool-call record with an incoming partial update
// ABOUTME: Update-wins-if-present per field, supersede-on-diff for content

package transcript

// ToolCallUpdate is a partial update for a tool call. Nil pointer fields are
// absent and leave the existing value untouched; a non-nil pointer always
// overwrites, including with falsy values. Content is tri-state: nil means
// absent, a pointer to an empty slice means "explicitly no new items".
type ToolCallUpdate struct {
	ID         string
	Title      *string
	Status     *ToolCallStatus
	Kind       *ToolCallKind
	Content    *[]ToolContent
	Locations  *[]Location
	Permission *PermissionRequest
}

// MergeToolCall folds update into existing and returns the merged record.
// The result never aliases existing's slices, so callers can swap it into a
// transcript without copy hazards. The ID is always taken from the update;
// callers guarantee it matches existing.
//
// Content follows supersede-on-diff: when the update carries content and any
// new item is a diff, every prior diff item is dropped before the new items
// are appended. Non-diff items keep accumulating.
func MergeToolCall(existing ToolCall, update ToolCallUpdate) ToolCall {
	merged := existing.clone()
	merged.ID = update.ID

	if update.Title != nil {
		merged.Title = *update.Title
	}
	if update.Status != nil {
		merged.Status = *update.Status
	}
	if update.Kind != nil {
		merged.Kind = *update.Kind
	}
	if update.Locations != nil {
		merged.Locations = append([]Location(nil), (*update.Locations)...)
	}
	if update.Permission != nil {
		p := *update.Permission
		merged.Permission = &p
	}
	if update.Content != nil {
		newItems := cloneToolContent(*update.Content)
		kept := merged.Content
		if containsDiff(newItems) {
			kept = dropDiffs(kept)
		}
		merged.Content = append(kept, newItems...)
	}

	return merged
}

// ToolCall materializes the update as a fresh record, used when no existing
// tool call matches the ID.
func (u ToolCallUpdate) ToolCall() ToolCall {
	tc := ToolCall{ID: u.ID}
	if u.Title != nil {
		tc.Title = *u.Title
	}
	if u.Status != nil {
		tc.Status = *u.Status
	}
	if u.Kind != nil {
		tc.Kind = *u.Kind
	}
	if u.Content != nil {
		tc.Content = cloneToolContent(*u.Content)
	}
	if u.Locations != nil {
		tc.Locations = append([]Location(nil), (*u.Locations)...)
	}
	if u.Permission != nil {
		p := *u.Permission
		tc.Permission = &p
	}
	return tc
}

func containsDiff(items []ToolContent) bool {
	for _, item := range items {
		if item.Type == ToolContentDiff {
			return true
		}
	}
	return false
}

func dropDiffs(items []ToolContent) []ToolContent {
	var kept []ToolContent
	for _, item := range items {
		if item.Type != ToolContentDiff {
			kept = append(kept, item)
		}
	}
	return kept
}
