// ABOUTME: Streaming phase derived from inbound updates and the send pipeline
// ABOUTME: Five-state enum driving UI affordances

package transcript

// Phase describes what kind of activity is currently streaming. It is driven
// only by the update dispatcher and the send pipeline; there is no
// time-based transition. A terminal send outcome always forces PhaseIdle,
// taking precedence over any phase set by earlier inbound chunks.
type Phase string

const (
	// PhaseIdle means no activity is in flight.
	PhaseIdle Phase = "idle"
	// PhaseWaiting means a message was submitted and no response has arrived.
	PhaseWaiting Phase = "waiting"
	// PhaseThinking means a reasoning chunk is streaming.
	PhaseThinking Phase = "thinking"
	// PhaseResponding means message or tool content is streaming.
	PhaseResponding Phase = "responding"
	// PhaseAwaitingApproval means a tool call is blocked on a permission
	// decision.
	PhaseAwaitingApproval Phase = "awaiting_approval"
)
