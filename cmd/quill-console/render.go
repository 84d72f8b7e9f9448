// ABOUTME: Incremental console renderer for transcript snapshots
// ABOUTME: Prints streamed text deltas, tool status lines, and plan updates

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/quill-console/internal/transcript"
)

// renderer turns a stream of full snapshots into append-only console output.
// It remembers how much of each block it already printed and emits only the
// deltas, so streamed text appears to type itself.
type renderer struct {
	out io.Writer

	// printed runes per message ID and block index
	printed map[string][]int
	// last rendered fingerprint per tool call ID
	tools map[string]string
	// last rendered fingerprint per plan block, keyed by message ID
	plans map[string]string

	lastPhase transcript.Phase
	lastRole  transcript.Role
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{
		out:     out,
		printed: make(map[string][]int),
		tools:   make(map[string]string),
		plans:   make(map[string]string),
	}
}

func (r *renderer) run(ctx context.Context, updates <-chan transcript.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			r.render(snap)
		}
	}
}

func (r *renderer) render(snap transcript.Snapshot) {
	// A shrinking transcript means reset or resume; start over.
	if len(snap.Messages) == 0 && len(r.printed) > 0 {
		r.printed = make(map[string][]int)
		r.tools = make(map[string]string)
		r.plans = make(map[string]string)
		r.lastRole = ""
	}

	for _, msg := range snap.Messages {
		r.renderMessage(msg)
	}

	if snap.Phase != r.lastPhase {
		r.lastPhase = snap.Phase
		if snap.Phase != transcript.PhaseIdle {
			fmt.Fprintln(r.out, color.HiBlackString("· "+string(snap.Phase)))
		}
	}
}

func (r *renderer) renderMessage(msg transcript.Message) {
	counts := r.printed[msg.ID]
	if len(counts) < len(msg.Content) {
		counts = append(counts, make([]int, len(msg.Content)-len(counts))...)
	}

	for i, b := range msg.Content {
		switch b.Type {
		case transcript.BlockText:
			r.printDelta(msg, i, counts, b.Text, nil)
		case transcript.BlockTextWithContext:
			// Outbound blocks arrive whole; print once with the note label.
			if counts[i] == 0 && b.Text != "" {
				r.header(msg.Role)
				fmt.Fprint(r.out, b.Text)
				if b.Mention != nil && b.Mention.Label != "" {
					fmt.Fprint(r.out, color.HiBlackString(" ["+b.Mention.Label+"]"))
				}
				fmt.Fprintln(r.out)
				counts[i] = len([]rune(b.Text))
			}
		case transcript.BlockAgentThought:
			r.printDelta(msg, i, counts, b.Text, color.New(color.FgHiBlack, color.Italic))
		case transcript.BlockImage:
			if counts[i] == 0 && len(b.ImageData) > 0 {
				r.header(msg.Role)
				fmt.Fprintln(r.out, color.HiBlackString(fmt.Sprintf("[image %s, %d bytes]", b.MimeType, len(b.ImageData))))
				counts[i] = 1
			}
		case transcript.BlockToolCall:
			r.renderToolCall(b.ToolCall)
		case transcript.BlockPlan:
			r.renderPlan(msg.ID, b.Plan)
		}
	}

	r.printed[msg.ID] = counts
}

// printDelta prints the unseen suffix of a text block, emitting the role
// header before the first rune of a message.
func (r *renderer) printDelta(msg transcript.Message, idx int, counts []int, text string, c *color.Color) {
	runes := []rune(text)
	if counts[idx] >= len(runes) {
		return
	}
	r.header(msg.Role)
	delta := string(runes[counts[idx]:])
	if c != nil {
		c.Fprint(r.out, delta)
	} else {
		fmt.Fprint(r.out, delta)
	}
	counts[idx] = len(runes)
}

// header prints a role label when the speaking role changes.
func (r *renderer) header(role transcript.Role) {
	if role == r.lastRole {
		return
	}
	if r.lastRole != "" {
		fmt.Fprintln(r.out)
	}
	r.lastRole = role
	switch role {
	case transcript.RoleUser:
		fmt.Fprintln(r.out, color.GreenString("── you"))
	case transcript.RoleAssistant:
		fmt.Fprintln(r.out, color.CyanString("── agent"))
	}
}

func (r *renderer) renderToolCall(tc *transcript.ToolCall) {
	if tc == nil {
		return
	}
	fp := fmt.Sprintf("%s|%s|%v", tc.Title, tc.Status, tc.Permission != nil)
	if r.tools[tc.ID] == fp {
		return
	}
	r.tools[tc.ID] = fp

	r.header(transcript.RoleAssistant)
	icon := statusIcon(tc.Status)
	title := tc.Title
	if title == "" {
		title = tc.ID
	}
	fmt.Fprintf(r.out, "%s %s %s\n", icon, color.New(color.Bold).Sprint(title), color.HiBlackString("("+string(tc.Status)+")"))

	if tc.Permission != nil {
		color.Yellow("  ⏸ approval needed: %s", tc.Permission.Title)
		for _, opt := range tc.Permission.Options {
			fmt.Fprintf(r.out, "    - %s (%s)\n", opt.Name, opt.Kind)
		}
	}
}

func (r *renderer) renderPlan(msgID string, entries []transcript.PlanEntry) {
	var fp strings.Builder
	for _, e := range entries {
		fp.WriteString(e.Content)
		fp.WriteString("|")
		fp.WriteString(e.Status)
		fp.WriteString(";")
	}
	if r.plans[msgID] == fp.String() {
		return
	}
	r.plans[msgID] = fp.String()

	r.header(transcript.RoleAssistant)
	fmt.Fprintln(r.out, color.New(color.Bold).Sprint("plan:"))
	for _, e := range entries {
		mark := "•"
		switch e.Status {
		case "in_progress":
			mark = "▸"
		case "completed":
			mark = "✓"
		}
		fmt.Fprintf(r.out, "  %s %s\n", mark, e.Content)
	}
}

func statusIcon(s transcript.ToolCallStatus) string {
	switch s {
	case transcript.ToolStatusCompleted:
		return color.GreenString("✓")
	case transcript.ToolStatusFailed:
		return color.RedString("✗")
	case transcript.ToolStatusInProgress:
		return color.YellowString("▸")
	default:
		return color.HiBlackString("·")
	}
}
