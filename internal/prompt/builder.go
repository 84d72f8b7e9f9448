// ABOUTME: Reference prompt builder — note auto-mention, truncation, WSL paths
// ABOUTME: Assembles agent-facing content and display content for one message

package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/2389/quill-console/internal/session"
	"github.com/2389/quill-console/internal/transcript"
)

// Builder assembles outbound prompts. It auto-mentions the active note,
// truncates oversized note bodies and selections, and optionally rewrites
// Windows paths for agents running under WSL.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder returns a Builder. Pass nil logger for the default.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger.With("component", "prompt")}
}

// BuildPrompt implements session.PromptBuilder.
//
// The display content is always the raw message; context only ever changes
// what the agent sees. An empty or whitespace-only message is an error.
func (b *Builder) BuildPrompt(_ context.Context, req *session.PromptRequest) (*session.PromptResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("message is empty")
	}

	result := &session.PromptResult{
		AgentContent:   req.Message,
		DisplayContent: req.Message,
	}

	note := req.ActiveNote
	if note == nil || req.DisableAutoMention {
		return result, nil
	}

	path := note.Path
	if req.VaultBasePath != "" && !filepath.IsAbs(path) {
		path = filepath.Join(req.VaultBasePath, path)
	}
	if req.ConvertToWSL {
		path = toWSLPath(path)
	}

	content := truncate(note.Content, req.MaxNoteLength)
	selection := truncate(note.Selection, req.MaxSelectionLength)

	var sb strings.Builder
	sb.WriteString(req.Message)
	if req.SupportsEmbeddedContext {
		sb.WriteString("\n\n<active-note path=\"")
		sb.WriteString(path)
		sb.WriteString("\">\n")
		sb.WriteString(content)
		sb.WriteString("\n</active-note>")
		if selection != "" {
			sb.WriteString("\n\n<selection>\n")
			sb.WriteString(selection)
			sb.WriteString("\n</selection>")
		}
	} else {
		// Agents without embedded-context support get a plain reference and
		// read the file themselves.
		sb.WriteString("\n\nActive note: @")
		sb.WriteString(path)
		if selection != "" {
			sb.WriteString("\nSelected text:\n")
			sb.WriteString(selection)
		}
	}
	result.AgentContent = sb.String()

	result.Mention = &transcript.MentionContext{
		Path:    note.Path,
		Label:   filepath.Base(note.Path),
		Content: content,
	}

	b.logger.Debug("auto-mentioned active note",
		"path", note.Path,
		"embedded", req.SupportsEmbeddedContext,
		"truncated", len(content) < len(note.Content))
	return result, nil
}

// truncate limits s to max runes, appending an ellipsis when cut. A max of
// zero or less means unlimited.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// toWSLPath rewrites a Windows drive path like C:\Users\x into the WSL mount
// form /mnt/c/Users/x. Paths without a drive prefix pass through with only
// separator normalization.
func toWSLPath(p string) string {
	if len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0]) {
		rest := strings.ReplaceAll(p[2:], `\`, "/")
		rest = strings.TrimPrefix(rest, "/")
		return "/mnt/" + strings.ToLower(string(p[0])) + "/" + rest
	}
	return strings.ReplaceAll(p, `\`, "/")
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
