// ABOUTME: Core data model for the conversation transcript
// ABOUTME: Messages, typed content blocks, and tool-call records

package transcript

import "time"

// Role identifies the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates the variants of a content block.
type BlockType string

const (
	BlockText            BlockType = "text"
	BlockAgentThought    BlockType = "agent_thought"
	BlockTextWithContext BlockType = "text_with_context"
	BlockImage           BlockType = "image"
	BlockPlan            BlockType = "plan"
	BlockToolCall        BlockType = "tool_call"
)

// Block is one typed unit of a message's payload. Only the fields matching
// Type are meaningful; the rest stay zero. Streaming updates target the
// single block of a given non-tool-call type within a message, so a message
// never holds two text blocks or two plan blocks.
type Block struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	Mention   *MentionContext `json:"mention,omitempty"`
	ImageData []byte          `json:"image_data,omitempty"`
	MimeType  string          `json:"mime_type,omitempty"`
	Plan      []PlanEntry     `json:"plan,omitempty"`
	ToolCall  *ToolCall       `json:"tool_call,omitempty"`
}

// MentionContext is the display-only reference material attached to a user
// message by the prompt builder. The engine treats it as opaque payload.
type MentionContext struct {
	Path    string `json:"path"`
	Label   string `json:"label,omitempty"`
	Content string `json:"content,omitempty"`
}

// PlanEntry is one step of an agent-announced plan.
type PlanEntry struct {
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`
}

// ToolCallStatus tracks a tool call through its lifecycle.
type ToolCallStatus string

const (
	ToolStatusPending    ToolCallStatus = "pending"
	ToolStatusInProgress ToolCallStatus = "in_progress"
	ToolStatusCompleted  ToolCallStatus = "completed"
	ToolStatusFailed     ToolCallStatus = "failed"
)

// ToolCallKind categorizes what a tool call does, for display purposes.
type ToolCallKind string

const (
	ToolKindRead    ToolCallKind = "read"
	ToolKindEdit    ToolCallKind = "edit"
	ToolKindExecute ToolCallKind = "execute"
	ToolKindThink   ToolCallKind = "think"
	ToolKindFetch   ToolCallKind = "fetch"
	ToolKindOther   ToolCallKind = "other"
)

// ToolCall is a long-lived, identity-keyed record of an agent-initiated
// action. IDs are unique across the entire transcript; later updates may
// target a tool call that lives inside any historical message.
type ToolCall struct {
	ID         string             `json:"id"`
	Title      string             `json:"title,omitempty"`
	Status     ToolCallStatus     `json:"status,omitempty"`
	Kind       ToolCallKind       `json:"kind,omitempty"`
	Content    []ToolContent      `json:"content,omitempty"`
	Locations  []Location         `json:"locations,omitempty"`
	Permission *PermissionRequest `json:"permission,omitempty"`
}

// ToolContentType discriminates tool-call sub-items.
type ToolContentType string

const (
	ToolContentText  ToolContentType = "text"
	ToolContentDiff  ToolContentType = "diff"
	ToolContentOther ToolContentType = "other"
)

// ToolContent is one sub-item of a tool call's content. A diff sub-item is a
// full current-state snapshot of a file edit, not an incremental delta, which
// is why the merge engine keeps only the newest one.
type ToolContent struct {
	Type ToolContentType `json:"type"`
	Text string          `json:"text,omitempty"`
	Diff *Diff           `json:"diff,omitempty"`
}

// Diff describes a file edit as old and new text for a path.
type Diff struct {
	Path    string `json:"path"`
	OldText string `json:"old_text,omitempty"`
	NewText string `json:"new_text"`
}

// Location points at a file position a tool call touches.
type Location struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
}

// PermissionRequest blocks a tool call on a user decision.
type PermissionRequest struct {
	ID      string             `json:"id"`
	Title   string             `json:"title,omitempty"`
	Options []PermissionOption `json:"options,omitempty"`
}

// PermissionOption is one choice the user can take on a permission request.
type PermissionOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}

// Message is one entry of the transcript. Content blocks are mutated in
// place by later updates; the message itself is never deleted, only the
// transcript as a whole may be reset or replaced wholesale.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   []Block   `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// clone returns a deep copy of the message so snapshots never alias the
// store's internal state.
func (m Message) clone() Message {
	out := m
	out.Content = cloneBlocks(m.Content)
	return out
}

func cloneBlocks(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b.clone()
	}
	return out
}

func (b Block) clone() Block {
	out := b
	if b.Mention != nil {
		m := *b.Mention
		out.Mention = &m
	}
	if b.ImageData != nil {
		out.ImageData = append([]byte(nil), b.ImageData...)
	}
	if b.Plan != nil {
		out.Plan = append([]PlanEntry(nil), b.Plan...)
	}
	if b.ToolCall != nil {
		tc := b.ToolCall.clone()
		out.ToolCall = &tc
	}
	return out
}

func (t ToolCall) clone() ToolCall {
	out := t
	out.Content = cloneToolContent(t.Content)
	if t.Locations != nil {
		out.Locations = append([]Location(nil), t.Locations...)
	}
	if t.Permission != nil {
		p := *t.Permission
		if p.Options != nil {
			p.Options = append([]PermissionOption(nil), t.Permission.Options...)
		}
		out.Permission = &p
	}
	return out
}

func cloneToolContent(items []ToolContent) []ToolContent {
	if items == nil {
		return nil
	}
	out := make([]ToolContent, len(items))
	for i, item := range items {
		out[i] = item
		if item.Diff != nil {
			d := *item.Diff
			out[i].Diff = &d
		}
	}
	return out
}
