// ABOUTME: Observable transcript store with atomic snapshots
// ABOUTME: Holds the ordered message list plus derived send/phase/error state

package transcript

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each snapshot subscriber.
const subscriberBufferSize = 64

// SendError is a structured, user-facing error recorded by the send pipeline.
type SendError struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Snapshot is an atomic, deep-copied view of the store. Readers never
// observe a message list in a partially-merged state.
type Snapshot struct {
	Messages        []Message
	Phase           Phase
	Sending         bool
	LastUserMessage string
	LastError       *SendError
}

// Options configures a Store. The identifier generator and clock are
// injectable so tests can supply deterministic values; both default to
// uuid.NewString and time.Now.
type Options struct {
	NewID  func() string
	Now    func() time.Time
	Logger *slog.Logger
}

// Store exclusively owns the ordered message list and the derived state
// around it. Every mutation happens under one mutex, so inbound update
// application and the send pipeline can interleave freely without a reader
// ever seeing a half-merged message.
type Store struct {
	mu              sync.RWMutex
	messages        []Message
	phase           Phase
	sending         bool
	lastUserMessage string
	lastErr         *SendError
	subscribers     map[string]chan Snapshot

	newID  func() string
	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates an empty transcript store. Zero-value Options select the
// defaults.
func NewStore(opts Options) *Store {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		phase:       PhaseIdle,
		subscribers: make(map[string]chan Snapshot),
		newID:       opts.NewID,
		now:         opts.Now,
		logger:      opts.Logger.With("component", "transcript"),
	}
}

// Append creates a message of the given role from the blocks and adds it to
// the tail. Returns a copy of the appended message.
func (s *Store) Append(role Role, blocks ...Block) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.appendLocked(role, blocks)
	s.notifyLocked()
	return msg.clone()
}

func (s *Store) appendLocked(role Role, blocks []Block) Message {
	msg := Message{
		ID:        s.newID(),
		Role:      role,
		Content:   cloneBlocks(blocks),
		Timestamp: s.now(),
	}
	s.messages = append(s.messages, msg)
	return msg
}

// UpdateTail merges block into the tail message when its role matches,
// otherwise appends a new message of that role holding only the block.
//
// Merge rule: if a block of the same type already exists in the tail and the
// incoming type is text or agent_thought, the text is concatenated
// (streaming-append); any other type replaces the existing block of that
// type. If no block of the type exists, it is appended. Tool-call blocks are
// not routed here; use UpsertToolCall.
func (s *Store) UpdateTail(role Role, block Block) {
	if block.Type == BlockToolCall {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.messages); n > 0 && s.messages[n-1].Role == role {
		tail := &s.messages[n-1]
		tail.Content = mergeBlock(tail.Content, block)
	} else {
		s.appendLocked(role, []Block{block})
	}
	s.notifyLocked()
}

// mergeBlock applies the streaming merge rule to a copied block slice.
func mergeBlock(blocks []Block, incoming Block) []Block {
	out := cloneBlocks(blocks)
	for i := range out {
		if out[i].Type != incoming.Type {
			continue
		}
		if incoming.Type == BlockText || incoming.Type == BlockAgentThought {
			out[i].Text += incoming.Text
		} else {
			out[i] = incoming.clone()
		}
		return out
	}
	return append(out, incoming.clone())
}

// MergeToolCall scans the entire transcript for a tool call matching the
// update's ID and replaces it with the merged result. Returns whether a
// match was found. Updates with an empty ID are ignored; that is a guard
// against malformed routing, not an error condition.
func (s *Store) MergeToolCall(update ToolCallUpdate) bool {
	if update.ID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := s.mergeToolCallLocked(update)
	if found {
		s.notifyLocked()
	}
	return found
}

func (s *Store) mergeToolCallLocked(update ToolCallUpdate) bool {
	// Scan newest-first: live tool calls cluster at the tail.
	for i := len(s.messages) - 1; i >= 0; i-- {
		msg := &s.messages[i]
		for j := range msg.Content {
			b := msg.Content[j]
			if b.Type != BlockToolCall || b.ToolCall == nil || b.ToolCall.ID != update.ID {
				continue
			}
			merged := MergeToolCall(*b.ToolCall, update)
			content := cloneBlocks(msg.Content)
			content[j].ToolCall = &merged
			msg.Content = content
			return true
		}
	}
	return false
}

// UpsertToolCall merges the update into an existing tool call anywhere in
// the transcript, or appends a new assistant message holding the tool call
// as given when no match exists.
func (s *Store) UpsertToolCall(update ToolCallUpdate) {
	if update.ID == "" {
		s.logger.Debug("ignoring tool call update without id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mergeToolCallLocked(update) {
		tc := update.ToolCall()
		s.appendLocked(RoleAssistant, []Block{{Type: BlockToolCall, ToolCall: &tc}})
	}
	s.notifyLocked()
}

// Reset clears the transcript and all derived state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.phase = PhaseIdle
	s.sending = false
	s.lastErr = nil
	s.lastUserMessage = ""
	s.notifyLocked()
}

// ReplaceAll substitutes the transcript wholesale, used for history load and
// session resume. Send/phase/error state and the retained user message are
// cleared; the incoming messages are deep-copied so the store keeps
// exclusive ownership.
func (s *Store) ReplaceAll(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make([]Message, len(messages))
	for i, m := range messages {
		s.messages[i] = m.clone()
	}
	s.phase = PhaseIdle
	s.sending = false
	s.lastErr = nil
	s.lastUserMessage = ""
	s.notifyLocked()
}

// SetPhase records the current streaming phase.
func (s *Store) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == p {
		return
	}
	s.phase = p
	s.notifyLocked()
}

// SetLastError records a structured error without touching any other state.
// Used for precondition failures where no send was started.
func (s *Store) SetLastError(e *SendError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = e
	s.notifyLocked()
}

// SetLastUserMessage retains the raw outbound text so a failed submission
// can be retried.
func (s *Store) SetLastUserMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastUserMessage = text
	s.notifyLocked()
}

// BeginSend atomically marks the transcript as sending: sending flag up,
// phase to waiting, raw text retained. All three are visible before the
// asynchronous submission starts.
func (s *Store) BeginSend(rawText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sending = true
	s.phase = PhaseWaiting
	s.lastUserMessage = rawText
	s.lastErr = nil
	s.notifyLocked()
}

// FinishSendSuccess resolves an in-flight send: sending cleared, phase back
// to idle, retained text and error dropped.
func (s *Store) FinishSendSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sending = false
	s.phase = PhaseIdle
	s.lastUserMessage = ""
	s.lastErr = nil
	s.notifyLocked()
}

// FinishSendFailure resolves an in-flight send with an error. The retained
// user message is kept for retry; the already-appended user message is never
// rolled back.
func (s *Store) FinishSendFailure(e *SendError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sending = false
	s.phase = PhaseIdle
	s.lastErr = e
	s.notifyLocked()
}

// Snapshot returns an atomic, deep-copied view of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Messages:        make([]Message, len(s.messages)),
		Phase:           s.phase,
		Sending:         s.sending,
		LastUserMessage: s.lastUserMessage,
	}
	for i, m := range s.messages {
		snap.Messages[i] = m.clone()
	}
	if s.lastErr != nil {
		e := *s.lastErr
		snap.LastError = &e
	}
	return snap
}

// Subscribe registers an observer that receives a snapshot after every
// mutation. Returns the channel and a subscription ID for Unsubscribe; the
// subscription is cleaned up automatically when ctx is cancelled.
func (s *Store) Subscribe(ctx context.Context) (<-chan Snapshot, string) {
	subID := uuid.NewString()
	ch := make(chan Snapshot, subscriberBufferSize)

	s.mu.Lock()
	s.subscribers[subID] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Unsubscribe(subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(subID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.subscribers[subID]
	if !ok {
		return
	}
	delete(s.subscribers, subID)
	close(ch)
}

// notifyLocked publishes the current snapshot to all subscribers.
// Non-blocking: snapshots are dropped for subscribers whose channels are
// full. Must be called with mu held.
func (s *Store) notifyLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for subID, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			s.logger.Debug("dropped snapshot for slow subscriber", "sub_id", subID)
		}
	}
}
