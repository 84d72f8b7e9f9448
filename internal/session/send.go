// ABOUTME: Outbound send pipeline — prepare, optimistic append, submit
// ABOUTME: Folds success/failure into transcript, phase, and error state

package session

import (
	"context"
	"fmt"

	"github.com/2389/quill-console/internal/transcript"
)

// SendOptions carries per-message inputs that are not settings: attached
// images and the currently active note.
type SendOptions struct {
	Images     []Image
	ActiveNote *Note
}

// SendMessage runs the outbound pipeline for one user message.
//
// The user-facing message is appended optimistically before the submission
// starts and is never rolled back; the raw text is retained for retry on
// every failure path and cleared only on success. A terminal outcome always
// resets sending and forces the phase to idle, regardless of phases set by
// inbound chunks during the round trip.
func (c *Controller) SendMessage(ctx context.Context, text string, opts SendOptions) error {
	sessionID := c.SessionID()
	if sessionID == "" {
		c.store.SetLastError(&transcript.SendError{
			Title:      "Cannot Send Message",
			Message:    "No active session.",
			Suggestion: "Start a new session before sending a message.",
		})
		return ErrNoActiveSession
	}

	// Retain the raw text before the first collaborator call so a prepare
	// failure is just as retryable as a submit failure.
	c.store.SetLastUserMessage(text)

	prep, err := c.prompts.BuildPrompt(ctx, &PromptRequest{
		Message:                 text,
		Images:                  opts.Images,
		ActiveNote:              opts.ActiveNote,
		VaultBasePath:           c.settings.VaultBasePath,
		DisableAutoMention:      c.settings.DisableAutoMention,
		ConvertToWSL:            c.settings.ConvertToWSL,
		SupportsEmbeddedContext: c.settings.SupportsEmbeddedContext,
		MaxNoteLength:           c.settings.MaxNoteLength,
		MaxSelectionLength:      c.settings.MaxSelectionLength,
	})
	if err != nil {
		c.store.FinishSendFailure(&transcript.SendError{
			Title:   "Message Failed",
			Message: fmt.Sprintf("Preparing the prompt failed: %v", err),
		})
		return fmt.Errorf("preparing prompt: %w", err)
	}

	display := prep.DisplayContent
	if display == "" {
		display = text
	}

	blocks := make([]transcript.Block, 0, 1+len(opts.Images))
	if prep.Mention != nil {
		blocks = append(blocks, transcript.Block{
			Type:    transcript.BlockTextWithContext,
			Text:    display,
			Mention: prep.Mention,
		})
	} else {
		blocks = append(blocks, transcript.Block{Type: transcript.BlockText, Text: display})
	}
	for _, img := range opts.Images {
		blocks = append(blocks, transcript.Block{
			Type:      transcript.BlockImage,
			ImageData: img.Data,
			MimeType:  img.MimeType,
		})
	}
	c.store.Append(transcript.RoleUser, blocks...)

	c.store.BeginSend(text)
	c.logger.Debug("submitting message", "session_id", sessionID, "images", len(opts.Images))

	result, err := c.submitter.Submit(ctx, &SubmitRequest{
		SessionID:      sessionID,
		AgentContent:   prep.AgentContent,
		DisplayContent: display,
		AuthMethods:    c.settings.AuthMethods,
	})
	if err != nil {
		c.store.FinishSendFailure(&transcript.SendError{
			Title:   "Message Failed",
			Message: fmt.Sprintf("Sending the message failed: %v", err),
		})
		return fmt.Errorf("submitting message: %w", err)
	}

	if !result.Success {
		sendErr := result.Error
		if sendErr == nil {
			sendErr = &transcript.SendError{
				Title:   "Message Failed",
				Message: "The agent rejected the message without details.",
			}
		}
		c.store.FinishSendFailure(sendErr)
		return fmt.Errorf("submission failed: %s", sendErr.Message)
	}

	c.store.FinishSendSuccess()
	c.logger.Debug("message submitted", "session_id", sessionID)
	return nil
}
