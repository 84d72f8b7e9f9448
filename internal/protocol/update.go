// ABOUTME: Inbound session-update protocol consumed by the dispatcher
// ABOUTME: Tagged JSON envelope, one case per update kind, symmetric codec

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/quill-console/internal/transcript"
)

// ErrUnknownUpdate is returned for update kinds this engine does not handle.
// Unknown kinds are rejected explicitly rather than silently mis-routed.
var ErrUnknownUpdate = errors.New("unknown session update")

// UpdateKind tags the variant of a SessionUpdate.
type UpdateKind string

const (
	KindAgentMessageChunk UpdateKind = "agent_message_chunk"
	KindAgentThoughtChunk UpdateKind = "agent_thought_chunk"
	KindUserMessageChunk  UpdateKind = "user_message_chunk"
	KindToolCall          UpdateKind = "tool_call"
	KindToolCallUpdate    UpdateKind = "tool_call_update"
	KindPlan              UpdateKind = "plan"
	KindAvailableCommands UpdateKind = "available_commands_update"
	KindCurrentMode       UpdateKind = "current_mode_update"
)

// SessionUpdate is one inbound update event. Only the fields matching Kind
// are set: Text for the chunk kinds, ToolCall for the tool-call kinds, Plan
// for plan updates.
type SessionUpdate struct {
	Kind     UpdateKind
	Text     string
	ToolCall *transcript.ToolCallUpdate
	Plan     []transcript.PlanEntry
}

// envelope is the wire shape: a flat JSON object tagged by "update".
// Tool-call fields are pointers so absent and present-but-falsy stay
// distinguishable, and content keeps its tri-state (absent / empty / items).
type envelope struct {
	Update string `json:"update"`

	Text string `json:"text,omitempty"`

	ToolCallID string                          `json:"toolCallId,omitempty"`
	Title      *string                         `json:"title,omitempty"`
	Status     *transcript.ToolCallStatus      `json:"status,omitempty"`
	Kind       *transcript.ToolCallKind        `json:"kind,omitempty"`
	Content    *[]toolContentPayload           `json:"content,omitempty"`
	Locations  *[]transcript.Location          `json:"locations,omitempty"`
	Permission *transcript.PermissionRequest   `json:"permissionRequest,omitempty"`

	Entries []transcript.PlanEntry `json:"entries,omitempty"`
}

// toolContentPayload mirrors transcript.ToolContent on the wire.
type toolContentPayload struct {
	Type string           `json:"type"`
	Text string           `json:"text,omitempty"`
	Diff *transcript.Diff `json:"diff,omitempty"`
}

// ParseUpdate decodes one JSON update line into a SessionUpdate.
// Unrecognized kinds return ErrUnknownUpdate wrapped with the kind, so
// callers can decide between logging and failing.
func ParseUpdate(data []byte) (SessionUpdate, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return SessionUpdate{}, fmt.Errorf("decoding session update: %w", err)
	}

	kind := UpdateKind(env.Update)
	switch kind {
	case KindAgentMessageChunk, KindAgentThoughtChunk, KindUserMessageChunk:
		return SessionUpdate{Kind: kind, Text: env.Text}, nil

	case KindToolCall, KindToolCallUpdate:
		return SessionUpdate{Kind: kind, ToolCall: env.toolCallUpdate()}, nil

	case KindPlan:
		return SessionUpdate{Kind: kind, Plan: env.Entries}, nil

	case KindAvailableCommands, KindCurrentMode:
		return SessionUpdate{Kind: kind}, nil

	default:
		return SessionUpdate{}, fmt.Errorf("%w: %q", ErrUnknownUpdate, env.Update)
	}
}

func (env *envelope) toolCallUpdate() *transcript.ToolCallUpdate {
	u := &transcript.ToolCallUpdate{
		ID:         env.ToolCallID,
		Title:      env.Title,
		Status:     env.Status,
		Kind:       env.Kind,
		Locations:  env.Locations,
		Permission: env.Permission,
	}
	if env.Content != nil {
		items := make([]transcript.ToolContent, len(*env.Content))
		for i, p := range *env.Content {
			items[i] = transcript.ToolContent{
				Type: transcript.ToolContentType(p.Type),
				Text: p.Text,
				Diff: p.Diff,
			}
		}
		u.Content = &items
	}
	return u
}

// Encode serializes the update back into its wire envelope. Used by the
// scripted agent and tests; ParseUpdate(u.Encode()) round-trips.
func (u SessionUpdate) Encode() ([]byte, error) {
	env := envelope{Update: string(u.Kind)}

	switch u.Kind {
	case KindAgentMessageChunk, KindAgentThoughtChunk, KindUserMessageChunk:
		env.Text = u.Text

	case KindToolCall, KindToolCallUpdate:
		if u.ToolCall == nil {
			return nil, fmt.Errorf("encoding %s: missing tool call payload", u.Kind)
		}
		env.ToolCallID = u.ToolCall.ID
		env.Title = u.ToolCall.Title
		env.Status = u.ToolCall.Status
		env.Kind = u.ToolCall.Kind
		env.Locations = u.ToolCall.Locations
		env.Permission = u.ToolCall.Permission
		if u.ToolCall.Content != nil {
			items := make([]toolContentPayload, len(*u.ToolCall.Content))
			for i, c := range *u.ToolCall.Content {
				items[i] = toolContentPayload{Type: string(c.Type), Text: c.Text, Diff: c.Diff}
			}
			env.Content = &items
		}

	case KindPlan:
		env.Entries = u.Plan

	case KindAvailableCommands, KindCurrentMode:
		// Advisory kinds carry no payload the engine reads.

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownUpdate, u.Kind)
	}

	return json.Marshal(env)
}

// Prompt is the outbound payload of the JSON-lines demo transport: the
// console writes one Prompt per line to the agent's stdin.
type Prompt struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}
