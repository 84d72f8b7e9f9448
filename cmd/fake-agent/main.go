// ABOUTME: Minimal fake agent for demos and E2E testing — scripted replies over stdio.
// ABOUTME: Usage: fake-agent [-delay 40ms]

package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/quill-console/internal/protocol"
	"github.com/2389/quill-console/internal/transcript"
)

func main() {
	delay := flag.Duration("delay", 40*time.Millisecond, "pause between emitted chunks")
	flag.Parse()

	if err := run(*delay); err != nil {
		log.Fatal(err)
	}
}

func run(delay time.Duration) error {
	out := bufio.NewWriter(os.Stdout)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	emit := func(u protocol.SessionUpdate) error {
		data, err := u.Encode()
		if err != nil {
			return fmt.Errorf("encoding update: %w", err)
		}
		if _, err := out.Write(append(data, '\n')); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
		time.Sleep(delay)
		return nil
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var p protocol.Prompt
		if err := json.Unmarshal(line, &p); err != nil {
			fmt.Fprintf(os.Stderr, "fake-agent: bad prompt: %v\n", err)
			continue
		}
		fmt.Fprintf(os.Stderr, "fake-agent: prompt for session %s (%d bytes)\n", p.SessionID, len(p.Content))

		if err := respond(emit, p.Content); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// respond plays one scripted turn. Prompts containing "edit" exercise the
// tool-call lifecycle with a permission request; "plan" exercises plan
// updates; everything else streams a thought and an echo.
func respond(emit func(protocol.SessionUpdate) error, content string) error {
	if err := emit(protocol.SessionUpdate{
		Kind: protocol.KindAgentThoughtChunk,
		Text: "Reading the message... ",
	}); err != nil {
		return err
	}
	if err := emit(protocol.SessionUpdate{
		Kind: protocol.KindAgentThoughtChunk,
		Text: "deciding how to answer.",
	}); err != nil {
		return err
	}

	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "edit"):
		if err := emitEditScript(emit); err != nil {
			return err
		}
	case strings.Contains(lower, "plan"):
		if err := emit(protocol.SessionUpdate{
			Kind: protocol.KindPlan,
			Plan: []transcript.PlanEntry{
				{Content: "Understand the request", Priority: "high", Status: "completed"},
				{Content: "Draft an answer", Priority: "medium", Status: "in_progress"},
				{Content: "Review and send", Priority: "low", Status: "pending"},
			},
		}); err != nil {
			return err
		}
	}

	reply := "You said: " + content
	for _, chunk := range splitChunks(reply, 12) {
		if err := emit(protocol.SessionUpdate{
			Kind: protocol.KindAgentMessageChunk,
			Text: chunk,
		}); err != nil {
			return err
		}
	}
	return nil
}

// emitEditScript walks a tool call through pending-with-permission,
// in-progress-with-diff, and completed.
func emitEditScript(emit func(protocol.SessionUpdate) error) error {
	callID := uuid.New().String()
	title := "Edit daily note"
	pending := transcript.ToolStatusPending
	kind := transcript.ToolKindEdit

	if err := emit(protocol.SessionUpdate{
		Kind: protocol.KindToolCall,
		ToolCall: &transcript.ToolCallUpdate{
			ID:     callID,
			Title:  &title,
			Status: &pending,
			Kind:   &kind,
			Permission: &transcript.PermissionRequest{
				ID:    uuid.New().String(),
				Title: "Allow editing daily.md?",
				Options: []transcript.PermissionOption{
					{ID: "allow", Name: "Allow", Kind: "allow_once"},
					{ID: "reject", Name: "Reject", Kind: "reject_once"},
				},
			},
		},
	}); err != nil {
		return err
	}

	inProgress := transcript.ToolStatusInProgress
	diffContent := []transcript.ToolContent{{
		Type: transcript.ToolContentDiff,
		Diff: &transcript.Diff{
			Path:    "daily.md",
			OldText: "- [ ] write demo",
			NewText: "- [x] write demo",
		},
	}}
	if err := emit(protocol.SessionUpdate{
		Kind: protocol.KindToolCallUpdate,
		ToolCall: &transcript.ToolCallUpdate{
			ID:      callID,
			Status:  &inProgress,
			Content: &diffContent,
			Locations: &[]transcript.Location{
				{Path: "daily.md", Line: 3},
			},
		},
	}); err != nil {
		return err
	}

	completed := transcript.ToolStatusCompleted
	doneContent := append(diffContent, transcript.ToolContent{
		Type: transcript.ToolContentText,
		Text: "Updated 1 checkbox.",
	})
	return emit(protocol.SessionUpdate{
		Kind: protocol.KindToolCallUpdate,
		ToolCall: &transcript.ToolCallUpdate{
			ID:      callID,
			Status:  &completed,
			Content: &doneContent,
		},
	})
}

// splitChunks slices s into rune-safe chunks of at most n runes.
func splitChunks(s string, n int) []string {
	runes := []rune(s)
	var chunks []string
	for len(runes) > 0 {
		end := n
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[:end]))
		runes = runes[end:]
	}
	return chunks
}
