// Package transcript holds the in-memory conversation state: the ordered
// message list, the typed content blocks inside each message, and the
// derived send/phase/error state around them.
//
// # Store
//
// Store is the single owner of the message list. All mutations are
// serialized behind one mutex and observed through deep-copied snapshots:
//
//	store := transcript.NewStore(transcript.Options{})
//	store.UpdateTail(transcript.RoleAssistant, transcript.Block{Type: transcript.BlockText, Text: "Hel"})
//	store.UpdateTail(transcript.RoleAssistant, transcript.Block{Type: transcript.BlockText, Text: "lo"})
//	snap := store.Snapshot() // one assistant message, one "Hello" text block
//
// Streaming text and thought chunks concatenate into the single block of
// their type in the tail message; any other block type is replaced in place.
//
// # Tool calls
//
// Tool calls are identity-keyed records updated incrementally over their
// lifecycle. UpsertToolCall merges a partial update into the matching record
// wherever it lives in the transcript, or appends a fresh assistant message
// when the ID is new. MergeToolCall implements the field policy:
// update-wins-if-present for scalar fields, supersede-on-diff for content
// sub-items.
//
// # Observation
//
// Subscribe returns a channel that receives a snapshot after every mutation,
// with non-blocking delivery (slow subscribers miss intermediate states, but
// every snapshot they do receive is internally consistent).
package transcript
