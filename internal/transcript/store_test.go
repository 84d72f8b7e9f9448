// ABOUTME: Tests for the observable transcript store
// ABOUTME: Streaming merges, tool-call upserts, reset/replace, snapshots

package transcript

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore returns a store with deterministic IDs and a fixed clock.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	var seq int
	return NewStore(Options{
		NewID: func() string {
			seq++
			return fmt.Sprintf("msg-%d", seq)
		},
		Now: func() time.Time {
			return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
		},
	})
}

func textBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

func TestUpdateTail_CreatesMessageOnEmptyTranscript(t *testing.T) {
	s := newTestStore(t)

	s.UpdateTail(RoleAssistant, textBlock("Hello"))

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, RoleAssistant, snap.Messages[0].Role)
	assert.Equal(t, "msg-1", snap.Messages[0].ID)
	require.Len(t, snap.Messages[0].Content, 1)
	assert.Equal(t, "Hello", snap.Messages[0].Content[0].Text)
}

func TestUpdateTail_ConcatenatesStreamingText(t *testing.T) {
	s := newTestStore(t)

	s.UpdateTail(RoleAssistant, textBlock("Hello "))
	s.UpdateTail(RoleAssistant, textBlock("world"))

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Len(t, snap.Messages[0].Content, 1)
	assert.Equal(t, "Hello world", snap.Messages[0].Content[0].Text)
}

func TestUpdateTail_ConcatenatesThoughtSeparatelyFromText(t *testing.T) {
	s := newTestStore(t)

	s.UpdateTail(RoleAssistant, Block{Type: BlockAgentThought, Text: "hmm, "})
	s.UpdateTail(RoleAssistant, textBlock("Answer"))
	s.UpdateTail(RoleAssistant, Block{Type: BlockAgentThought, Text: "let me check"})

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Len(t, snap.Messages[0].Content, 2)
	assert.Equal(t, "hmm, let me check", snap.Messages[0].Content[0].Text)
	assert.Equal(t, "Answer", snap.Messages[0].Content[1].Text)
}

func TestUpdateTail_RoleMismatchStartsNewMessage(t *testing.T) {
	s := newTestStore(t)

	s.UpdateTail(RoleUser, textBlock("question"))
	s.UpdateTail(RoleAssistant, textBlock("answer"))

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, RoleUser, snap.Messages[0].Role)
	assert.Equal(t, RoleAssistant, snap.Messages[1].Role)
}

func TestUpdateTail_PlanReplacesExistingPlan(t *testing.T) {
	s := newTestStore(t)

	s.UpdateTail(RoleAssistant, Block{Type: BlockPlan, Plan: []PlanEntry{{Content: "step 1"}}})
	s.UpdateTail(RoleAssistant, Block{Type: BlockPlan, Plan: []PlanEntry{
		{Content: "step 1", Status: "completed"},
		{Content: "step 2"},
	}})

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Len(t, snap.Messages[0].Content, 1)
	require.Len(t, snap.Messages[0].Content[0].Plan, 2)
	assert.Equal(t, "completed", snap.Messages[0].Content[0].Plan[0].Status)
}

func TestUpdateTail_IgnoresToolCallBlocks(t *testing.T) {
	s := newTestStore(t)

	s.UpdateTail(RoleAssistant, Block{Type: BlockToolCall, ToolCall: &ToolCall{ID: "tc-1"}})

	assert.Empty(t, s.Snapshot().Messages)
}

func TestUpsertToolCall_AppendsThenMerges(t *testing.T) {
	s := newTestStore(t)

	s.UpsertToolCall(ToolCallUpdate{
		ID:     "tc-1",
		Title:  strPtr("Edit note"),
		Status: statusPtr(ToolStatusPending),
	})
	s.UpsertToolCall(ToolCallUpdate{
		ID:     "tc-1",
		Status: statusPtr(ToolStatusCompleted),
	})

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Len(t, snap.Messages[0].Content, 1)
	tc := snap.Messages[0].Content[0].ToolCall
	require.NotNil(t, tc)
	assert.Equal(t, "Edit note", tc.Title)
	assert.Equal(t, ToolStatusCompleted, tc.Status)
}

func TestUpsertToolCall_NeverDuplicatesAcrossMessages(t *testing.T) {
	s := newTestStore(t)

	// Tool call lands in an early message, conversation moves on.
	s.UpsertToolCall(ToolCallUpdate{ID: "tc-1", Status: statusPtr(ToolStatusPending)})
	s.UpdateTail(RoleAssistant, textBlock("working on it"))
	s.UpdateTail(RoleUser, textBlock("ok"))
	s.UpdateTail(RoleAssistant, textBlock("done soon"))

	// A late update still targets the historical record.
	s.UpsertToolCall(ToolCallUpdate{ID: "tc-1", Status: statusPtr(ToolStatusCompleted)})

	snap := s.Snapshot()
	var count int
	var status ToolCallStatus
	for _, msg := range snap.Messages {
		for _, b := range msg.Content {
			if b.Type == BlockToolCall && b.ToolCall.ID == "tc-1" {
				count++
				status = b.ToolCall.Status
			}
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, ToolStatusCompleted, status)
}

func TestUpsertToolCall_EmptyIDIsNoOp(t *testing.T) {
	s := newTestStore(t)

	s.UpsertToolCall(ToolCallUpdate{Title: strPtr("orphan")})

	assert.Empty(t, s.Snapshot().Messages)
}

func TestMergeToolCall_ReportsMatch(t *testing.T) {
	s := newTestStore(t)

	assert.False(t, s.MergeToolCall(ToolCallUpdate{ID: "tc-1"}))

	s.UpsertToolCall(ToolCallUpdate{ID: "tc-1"})
	assert.True(t, s.MergeToolCall(ToolCallUpdate{ID: "tc-1", Title: strPtr("t")}))
}

func TestReset_ClearsEverything(t *testing.T) {
	s := newTestStore(t)

	s.UpdateTail(RoleUser, textBlock("hi"))
	s.BeginSend("hi")
	s.FinishSendFailure(&SendError{Title: "Message Failed", Message: "boom"})
	s.SetPhase(PhaseResponding)

	s.Reset()

	snap := s.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.False(t, snap.Sending)
	assert.Empty(t, snap.LastUserMessage)
	assert.Nil(t, snap.LastError)
}

func TestReplaceAll_SwapsTranscriptAndClearsDerivedState(t *testing.T) {
	s := newTestStore(t)

	s.UpdateTail(RoleUser, textBlock("old"))
	s.BeginSend("old")

	history := []Message{
		{ID: "h-1", Role: RoleUser, Content: []Block{textBlock("restored question")}},
		{ID: "h-2", Role: RoleAssistant, Content: []Block{textBlock("restored answer")}},
	}
	s.ReplaceAll(history)

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "h-1", snap.Messages[0].ID)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.False(t, snap.Sending)
	assert.Empty(t, snap.LastUserMessage)

	// The store owns deep copies: mutating the input must not leak in.
	history[0].Content[0].Text = "mutated"
	assert.Equal(t, "restored question", s.Snapshot().Messages[0].Content[0].Text)
}

func TestSnapshot_IsIsolatedFromLaterMutations(t *testing.T) {
	s := newTestStore(t)

	s.UpdateTail(RoleAssistant, textBlock("Hello "))
	snap := s.Snapshot()
	s.UpdateTail(RoleAssistant, textBlock("world"))

	assert.Equal(t, "Hello ", snap.Messages[0].Content[0].Text)
	assert.Equal(t, "Hello world", s.Snapshot().Messages[0].Content[0].Text)
}

func TestBeginAndFinishSend(t *testing.T) {
	s := newTestStore(t)

	s.BeginSend("try this")
	snap := s.Snapshot()
	assert.True(t, snap.Sending)
	assert.Equal(t, PhaseWaiting, snap.Phase)
	assert.Equal(t, "try this", snap.LastUserMessage)

	s.FinishSendFailure(&SendError{Title: "Message Failed", Message: "agent unavailable"})
	snap = s.Snapshot()
	assert.False(t, snap.Sending)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, "try this", snap.LastUserMessage, "failure retains the raw text for retry")
	require.NotNil(t, snap.LastError)
	assert.Equal(t, "agent unavailable", snap.LastError.Message)

	s.BeginSend("try this")
	s.FinishSendSuccess()
	snap = s.Snapshot()
	assert.Empty(t, snap.LastUserMessage)
	assert.Nil(t, snap.LastError)
}

func TestSubscribe_ReceivesSnapshotsAndCleansUpOnCancel(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, subID := s.Subscribe(ctx)
	require.NotEmpty(t, subID)

	s.UpdateTail(RoleAssistant, textBlock("hi"))

	select {
	case snap := <-ch:
		require.Len(t, snap.Messages, 1)
		assert.Equal(t, "hi", snap.Messages[0].Content[0].Text)
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
	}

	cancel()
	// Channel closes once the ctx-scoped cleanup runs.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancellation")
		}
	}
}
