// ABOUTME: Entry point for the quill-console interactive agent client
// ABOUTME: Wires config, history, agent subprocess, and the input loop

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/quill-console/internal/config"
	"github.com/2389/quill-console/internal/history"
	"github.com/2389/quill-console/internal/prompt"
	"github.com/2389/quill-console/internal/session"
	"github.com/2389/quill-console/internal/transcript"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
              _ _ _
   __ _ _   _(_) | |
  / _' | | | | | | |
 | (_| | |_| | | | |
  \__, |\__,_|_|_|_|
     |_|  console
`

// getConfigPath returns the path to the console config file.
// Priority: QUILL_CONFIG env var > XDG_CONFIG_HOME/quill/console.yaml > ~/.config/quill/console.yaml
func getConfigPath() string {
	if envPath := os.Getenv("QUILL_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "console.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "quill", "console.yaml")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config: %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Agent:  %s\n", cfg.Agent.Command)

	var hist *history.Store
	if cfg.Database.Path != "" {
		hist, err = history.New(cfg.Database.Path, logger)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer hist.Close()
		green.Print("    ▶ ")
		fmt.Printf("History: %s\n", cfg.Database.Path)
	}
	fmt.Println()

	agent, err := startAgent(ctx, cfg.Agent, logger)
	if err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}
	defer agent.Close()

	store := transcript.NewStore(transcript.Options{Logger: logger})
	ctrl := session.NewController(store, prompt.NewBuilder(logger), agent, session.Settings{
		VaultBasePath:           cfg.Session.VaultBasePath,
		DisableAutoMention:      cfg.Session.DisableAutoMention,
		ConvertToWSL:            cfg.Session.ConvertToWSL,
		SupportsEmbeddedContext: cfg.Session.SupportsEmbeddedContext,
		MaxNoteLength:           cfg.Session.MaxNoteLength,
		MaxSelectionLength:      cfg.Session.MaxSelectionLength,
		AuthMethods:             cfg.Agent.AuthMethods,
	}, logger)
	ctrl.SetSession(uuid.New().String())

	go agent.pump(ctx, ctrl)

	var wg sync.WaitGroup
	updates, _ := store.Subscribe(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		newRenderer(os.Stdout).run(ctx, updates)
	}()

	err = inputLoop(ctx, ctrl, hist, logger)

	wg.Wait()
	return err
}

// inputLoop reads user lines from stdin until EOF, /quit, or shutdown.
func inputLoop(ctx context.Context, ctrl *session.Controller, hist *history.Store, logger *slog.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	ps1 := color.New(color.FgGreen).Sprint("> ")

	for {
		fmt.Print(ps1)
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := handleCommand(ctx, line, ctrl, hist)
			if err != nil {
				color.Red("✗ %v", err)
			}
			if quit {
				break
			}
			continue
		}

		if err := ctrl.SendMessage(ctx, line, session.SendOptions{}); err != nil {
			logger.Debug("send failed", "error", err)
			printSendError(ctrl.Store().Snapshot().LastError)
		}
	}

	if hist != nil {
		if err := saveSession(context.Background(), ctrl, hist); err != nil {
			logger.Warn("saving session on exit", "error", err)
		}
	}
	return scanner.Err()
}

// handleCommand runs one slash command. It returns true when the loop
// should exit.
func handleCommand(ctx context.Context, line string, ctrl *session.Controller, hist *history.Store) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		printHelp()

	case "/phase":
		snap := ctrl.Store().Snapshot()
		fmt.Printf("phase: %s  sending: %v\n", snap.Phase, snap.Sending)

	case "/new":
		if hist != nil {
			if err := saveSession(ctx, ctrl, hist); err != nil {
				return false, err
			}
		}
		ctrl.Store().Reset()
		ctrl.SetSession(uuid.New().String())
		fmt.Printf("new session %s\n", ctrl.SessionID())

	case "/save":
		if hist == nil {
			return false, errors.New("persistence is disabled (set database.path)")
		}
		if err := saveSession(ctx, ctrl, hist); err != nil {
			return false, err
		}
		fmt.Printf("saved session %s\n", ctrl.SessionID())

	case "/sessions":
		if hist == nil {
			return false, errors.New("persistence is disabled (set database.path)")
		}
		sessions, err := hist.ListSessions(ctx)
		if err != nil {
			return false, err
		}
		if len(sessions) == 0 {
			fmt.Println("no saved sessions")
		}
		for _, s := range sessions {
			fmt.Printf("%s  %s  %s\n", s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.Title)
		}

	case "/resume":
		if hist == nil {
			return false, errors.New("persistence is disabled (set database.path)")
		}
		if len(fields) < 2 {
			return false, errors.New("usage: /resume <session-id>")
		}
		id := fields[1]
		if _, err := hist.GetSession(ctx, id); err != nil {
			return false, err
		}
		messages, err := hist.LoadMessages(ctx, id)
		if err != nil {
			return false, err
		}
		ctrl.Store().ReplaceAll(messages)
		ctrl.SetSession(id)
		fmt.Printf("resumed session %s (%d messages)\n", id, len(messages))

	case "/retry":
		last := ctrl.Store().Snapshot().LastUserMessage
		if last == "" {
			return false, errors.New("nothing to retry")
		}
		if err := ctrl.SendMessage(ctx, last, session.SendOptions{}); err != nil {
			printSendError(ctrl.Store().Snapshot().LastError)
		}

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return false, nil
}

// saveSession persists the header and full transcript of the current session.
func saveSession(ctx context.Context, ctrl *session.Controller, hist *history.Store) error {
	snap := ctrl.Store().Snapshot()
	if len(snap.Messages) == 0 {
		return nil
	}
	now := time.Now().UTC()
	sess := history.Session{
		ID:        ctrl.SessionID(),
		Title:     sessionTitle(snap.Messages),
		CreatedAt: snap.Messages[0].Timestamp,
		UpdatedAt: now,
	}
	if err := hist.SaveSession(ctx, sess); err != nil {
		return err
	}
	return hist.SaveMessages(ctx, sess.ID, snap.Messages)
}

// sessionTitle derives a listing title from the first user text block.
func sessionTitle(messages []transcript.Message) string {
	for _, msg := range messages {
		if msg.Role != transcript.RoleUser {
			continue
		}
		for _, b := range msg.Content {
			if b.Text == "" {
				continue
			}
			runes := []rune(b.Text)
			if len(runes) > 40 {
				return string(runes[:40]) + "..."
			}
			return b.Text
		}
	}
	return "(untitled)"
}

func printSendError(e *transcript.SendError) {
	if e == nil {
		return
	}
	color.Red("✗ %s: %s", e.Title, e.Message)
	if e.Suggestion != "" {
		color.New(color.FgHiBlack).Printf("  %s\n", e.Suggestion)
	}
}

func printHelp() {
	fmt.Print(`commands:
  /new             start a fresh session (saves the current one first)
  /save            persist the current session
  /sessions        list saved sessions
  /resume <id>     load a saved session
  /retry           resend the last failed message
  /phase           show the streaming phase
  /quit            exit
`)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Logs go to stderr; stdout belongs to the conversation.
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
