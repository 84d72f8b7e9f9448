// ABOUTME: Session controller routing inbound updates into the transcript
// ABOUTME: Owns the active session ID and derives the streaming phase

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/quill-console/internal/protocol"
	"github.com/2389/quill-console/internal/transcript"
)

// ErrNoActiveSession indicates an outbound send was attempted without an
// active session identifier.
var ErrNoActiveSession = errors.New("no active session")

// Image is a binary attachment for an outbound message.
type Image struct {
	Data     []byte
	MimeType string
}

// Note is the currently active note handed to the prompt builder.
type Note struct {
	Path      string
	Content   string
	Selection string
}

// PromptRequest is the input to the prompt-preparation collaborator.
type PromptRequest struct {
	Message                 string
	Images                  []Image
	ActiveNote              *Note
	VaultBasePath           string
	DisableAutoMention      bool
	ConvertToWSL            bool
	SupportsEmbeddedContext bool
	MaxNoteLength           int
	MaxSelectionLength      int
}

// PromptResult is the assembled outbound payload. Mention, when present, is
// used only for display on the appended user message.
type PromptResult struct {
	AgentContent   string
	DisplayContent string
	Mention        *transcript.MentionContext
}

// PromptBuilder assembles the outbound prompt from raw input and context.
// The engine treats the result as opaque beyond its three fields.
type PromptBuilder interface {
	BuildPrompt(ctx context.Context, req *PromptRequest) (*PromptResult, error)
}

// SubmitRequest carries a prepared prompt to the submission collaborator.
type SubmitRequest struct {
	SessionID      string
	AgentContent   string
	DisplayContent string
	AuthMethods    []string
}

// SubmitResult reports the outcome of a submission. A nil Error with
// Success=false still counts as a failure; the pipeline substitutes a
// generic fallback.
type SubmitResult struct {
	Success bool
	Error   *transcript.SendError
}

// Submitter delivers a prepared prompt to the agent.
type Submitter interface {
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error)
}

// Settings are the read-only pipeline inputs from configuration. The
// path-conversion flag is passed in explicitly rather than detected from the
// ambient OS.
type Settings struct {
	VaultBasePath           string
	DisableAutoMention      bool
	ConvertToWSL            bool
	SupportsEmbeddedContext bool
	MaxNoteLength           int
	MaxSelectionLength      int
	AuthMethods             []string
}

// Controller is the write path of the engine: inbound updates go through
// HandleUpdate, outbound messages through SendMessage. All conversation
// state lives in the transcript store; the controller itself only tracks
// the active session ID.
type Controller struct {
	store     *transcript.Store
	prompts   PromptBuilder
	submitter Submitter
	settings  Settings
	logger    *slog.Logger

	mu        sync.Mutex
	sessionID string
}

// NewController wires the collaborators together. Pass nil logger for the
// default.
func NewController(store *transcript.Store, prompts PromptBuilder, submitter Submitter, settings Settings, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:     store,
		prompts:   prompts,
		submitter: submitter,
		settings:  settings,
		logger:    logger.With("component", "session"),
	}
}

// Store exposes the transcript store for observers.
func (c *Controller) Store() *transcript.Store { return c.store }

// SetSession switches the active session identifier.
func (c *Controller) SetSession(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// SessionID returns the active session identifier, empty if none.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// HandleUpdate folds one inbound update event into the transcript and
// derives the streaming phase. Updates must be applied in arrival order;
// unknown kinds are rejected with ErrUnknownUpdate.
func (c *Controller) HandleUpdate(u protocol.SessionUpdate) error {
	switch u.Kind {
	case protocol.KindAgentMessageChunk:
		c.store.UpdateTail(transcript.RoleAssistant, transcript.Block{Type: transcript.BlockText, Text: u.Text})
		c.store.SetPhase(transcript.PhaseResponding)

	case protocol.KindAgentThoughtChunk:
		c.store.UpdateTail(transcript.RoleAssistant, transcript.Block{Type: transcript.BlockAgentThought, Text: u.Text})
		c.store.SetPhase(transcript.PhaseThinking)

	case protocol.KindUserMessageChunk:
		c.store.UpdateTail(transcript.RoleUser, transcript.Block{Type: transcript.BlockText, Text: u.Text})

	case protocol.KindToolCall, protocol.KindToolCallUpdate:
		if u.ToolCall == nil {
			// Malformed routing; the upsert paths are deliberate no-ops here.
			c.logger.Debug("tool call update without payload", "kind", u.Kind)
			return nil
		}
		c.store.UpsertToolCall(*u.ToolCall)
		if u.ToolCall.Permission != nil {
			c.store.SetPhase(transcript.PhaseAwaitingApproval)
		} else {
			c.store.SetPhase(transcript.PhaseResponding)
		}

	case protocol.KindPlan:
		c.store.UpdateTail(transcript.RoleAssistant, transcript.Block{Type: transcript.BlockPlan, Plan: u.Plan})

	case protocol.KindAvailableCommands, protocol.KindCurrentMode:
		// Advisory updates; nothing to fold into the transcript.
		c.logger.Debug("ignoring advisory update", "kind", u.Kind)

	default:
		return fmt.Errorf("%w: %q", protocol.ErrUnknownUpdate, u.Kind)
	}

	return nil
}
