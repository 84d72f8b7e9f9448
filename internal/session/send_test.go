// ABOUTME: Tests for the outbound send pipeline
// ABOUTME: Precondition, success, structured failure, and exception paths

package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/quill-console/internal/transcript"
)

// mockBuilder implements PromptBuilder for testing.
type mockBuilder struct {
	result  *PromptResult
	err     error
	lastReq *PromptRequest
}

func (m *mockBuilder) BuildPrompt(_ context.Context, req *PromptRequest) (*PromptResult, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &PromptResult{AgentContent: req.Message, DisplayContent: req.Message}, nil
}

// mockSubmitter implements Submitter for testing.
type mockSubmitter struct {
	result  *SubmitResult
	err     error
	lastReq *SubmitRequest
	calls   int
}

func (m *mockSubmitter) Submit(_ context.Context, req *SubmitRequest) (*SubmitResult, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &SubmitResult{Success: true}, nil
}

func newSendController(builder *mockBuilder, submitter *mockSubmitter, settings Settings) *Controller {
	store := transcript.NewStore(transcript.Options{})
	c := NewController(store, builder, submitter, settings, nil)
	c.SetSession("sess-1")
	return c
}

func TestSendMessage_NoActiveSession(t *testing.T) {
	builder := &mockBuilder{}
	submitter := &mockSubmitter{}
	c := newSendController(builder, submitter, Settings{})
	c.SetSession("")

	err := c.SendMessage(context.Background(), "hello", SendOptions{})
	require.ErrorIs(t, err, ErrNoActiveSession)

	snap := c.Store().Snapshot()
	assert.Empty(t, snap.Messages, "transcript must stay untouched")
	assert.False(t, snap.Sending)
	assert.Empty(t, snap.LastUserMessage)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, "Cannot Send Message", snap.LastError.Title)
	assert.Zero(t, submitter.calls, "no transport call on precondition failure")
}

func TestSendMessage_Success(t *testing.T) {
	builder := &mockBuilder{}
	submitter := &mockSubmitter{}
	c := newSendController(builder, submitter, Settings{AuthMethods: []string{"api-key"}})

	err := c.SendMessage(context.Background(), "hello agent", SendOptions{})
	require.NoError(t, err)

	snap := c.Store().Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, transcript.RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "hello agent", snap.Messages[0].Content[0].Text)
	assert.False(t, snap.Sending)
	assert.Equal(t, transcript.PhaseIdle, snap.Phase)
	assert.Empty(t, snap.LastUserMessage, "success clears the retained text")
	assert.Nil(t, snap.LastError)

	require.NotNil(t, submitter.lastReq)
	assert.Equal(t, "sess-1", submitter.lastReq.SessionID)
	assert.Equal(t, []string{"api-key"}, submitter.lastReq.AuthMethods)
}

func TestSendMessage_StructuredFailureRetainsMessage(t *testing.T) {
	builder := &mockBuilder{}
	submitter := &mockSubmitter{
		result: &SubmitResult{
			Success: false,
			Error: &transcript.SendError{
				Title:      "Agent Busy",
				Message:    "A turn is already in progress.",
				Suggestion: "Wait for the current response to finish.",
			},
		},
	}
	c := newSendController(builder, submitter, Settings{})

	err := c.SendMessage(context.Background(), "try again later", SendOptions{})
	require.Error(t, err)

	snap := c.Store().Snapshot()
	require.Len(t, snap.Messages, 1, "optimistic message is never rolled back")
	assert.Equal(t, "try again later", snap.LastUserMessage, "failure retains the raw text")
	assert.False(t, snap.Sending)
	assert.Equal(t, transcript.PhaseIdle, snap.Phase)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, "Agent Busy", snap.LastError.Title)
	assert.Equal(t, "Wait for the current response to finish.", snap.LastError.Suggestion)
}

func TestSendMessage_FailureWithoutPayloadGetsFallback(t *testing.T) {
	c := newSendController(&mockBuilder{}, &mockSubmitter{result: &SubmitResult{Success: false}}, Settings{})

	err := c.SendMessage(context.Background(), "hi", SendOptions{})
	require.Error(t, err)

	snap := c.Store().Snapshot()
	require.NotNil(t, snap.LastError)
	assert.Equal(t, "Message Failed", snap.LastError.Title)
	assert.NotEmpty(t, snap.LastError.Message)
}

func TestSendMessage_SubmitterException(t *testing.T) {
	submitter := &mockSubmitter{err: errors.New("pipe closed")}
	c := newSendController(&mockBuilder{}, submitter, Settings{})

	err := c.SendMessage(context.Background(), "hello", SendOptions{})
	require.Error(t, err)

	snap := c.Store().Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hello", snap.LastUserMessage)
	require.NotNil(t, snap.LastError)
	assert.Contains(t, snap.LastError.Message, "pipe closed")
	assert.Equal(t, transcript.PhaseIdle, snap.Phase)
	assert.False(t, snap.Sending)
}

func TestSendMessage_BuilderExceptionLeavesNoMessage(t *testing.T) {
	builder := &mockBuilder{err: errors.New("empty message")}
	submitter := &mockSubmitter{}
	c := newSendController(builder, submitter, Settings{})

	err := c.SendMessage(context.Background(), "   ", SendOptions{})
	require.Error(t, err)

	snap := c.Store().Snapshot()
	assert.Empty(t, snap.Messages, "nothing appended when preparation fails")
	assert.Equal(t, "   ", snap.LastUserMessage, "raw text still retained for retry")
	require.NotNil(t, snap.LastError)
	assert.Contains(t, snap.LastError.Message, "empty message")
	assert.Zero(t, submitter.calls)
}

func TestSendMessage_MentionBecomesTextWithContext(t *testing.T) {
	builder := &mockBuilder{
		result: &PromptResult{
			AgentContent:   "question plus embedded note",
			DisplayContent: "question",
			Mention: &transcript.MentionContext{
				Path:    "notes/daily.md",
				Label:   "daily.md",
				Content: "note body",
			},
		},
	}
	c := newSendController(builder, &mockSubmitter{}, Settings{})

	require.NoError(t, c.SendMessage(context.Background(), "question", SendOptions{}))

	snap := c.Store().Snapshot()
	require.Len(t, snap.Messages, 1)
	b := snap.Messages[0].Content[0]
	assert.Equal(t, transcript.BlockTextWithContext, b.Type)
	assert.Equal(t, "question", b.Text)
	require.NotNil(t, b.Mention)
	assert.Equal(t, "notes/daily.md", b.Mention.Path)
}

func TestSendMessage_ImagesAppendAfterTextInOrder(t *testing.T) {
	c := newSendController(&mockBuilder{}, &mockSubmitter{}, Settings{})

	err := c.SendMessage(context.Background(), "look at these", SendOptions{
		Images: []Image{
			{Data: []byte{1}, MimeType: "image/png"},
			{Data: []byte{2}, MimeType: "image/jpeg"},
		},
	})
	require.NoError(t, err)

	snap := c.Store().Snapshot()
	require.Len(t, snap.Messages, 1)
	content := snap.Messages[0].Content
	require.Len(t, content, 3)
	assert.Equal(t, transcript.BlockText, content[0].Type)
	assert.Equal(t, "image/png", content[1].MimeType)
	assert.Equal(t, "image/jpeg", content[2].MimeType)
}

func TestSendMessage_SettingsReachTheBuilder(t *testing.T) {
	builder := &mockBuilder{}
	c := newSendController(builder, &mockSubmitter{}, Settings{
		VaultBasePath:           "/vault",
		ConvertToWSL:            true,
		SupportsEmbeddedContext: true,
		MaxNoteLength:           1000,
		MaxSelectionLength:      200,
	})

	require.NoError(t, c.SendMessage(context.Background(), "hi", SendOptions{
		ActiveNote: &Note{Path: "a.md", Content: "body"},
	}))

	req := builder.lastReq
	require.NotNil(t, req)
	assert.Equal(t, "/vault", req.VaultBasePath)
	assert.True(t, req.ConvertToWSL)
	assert.True(t, req.SupportsEmbeddedContext)
	assert.Equal(t, 1000, req.MaxNoteLength)
	assert.Equal(t, 200, req.MaxSelectionLength)
	require.NotNil(t, req.ActiveNote)
	assert.Equal(t, "a.md", req.ActiveNote.Path)
}

func TestSendMessage_TerminalOutcomeOverridesInboundPhase(t *testing.T) {
	// A submitter that simulates inbound chunks arriving mid round trip.
	store := transcript.NewStore(transcript.Options{})
	c := NewController(store, &mockBuilder{}, submitterFunc(func(_ context.Context, _ *SubmitRequest) (*SubmitResult, error) {
		store.SetPhase(transcript.PhaseThinking)
		return &SubmitResult{Success: true}, nil
	}), Settings{}, nil)
	c.SetSession("sess-1")

	require.NoError(t, c.SendMessage(context.Background(), "hi", SendOptions{}))
	assert.Equal(t, transcript.PhaseIdle, store.Snapshot().Phase)
}

type submitterFunc func(ctx context.Context, req *SubmitRequest) (*SubmitResult, error)

func (f submitterFunc) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	return f(ctx, req)
}
