// Package session hosts the controller that mediates between the inbound
// update stream and the transcript store, and the outbound send pipeline
// with its two collaborator interfaces.
//
// # Inbound
//
// HandleUpdate routes one update event to transcript mutations and derives
// the streaming phase:
//
//	agent text chunk     -> concat into tail assistant text,   phase responding
//	agent thought chunk  -> concat into tail assistant thought, phase thinking
//	user text chunk      -> concat into tail user text,        phase unchanged
//	tool_call[_update]   -> identity-keyed upsert,             awaiting_approval
//	                        when a permission request is pending, else responding
//	plan                 -> replace plan block on tail,        phase unchanged
//	advisory updates     -> explicit no-ops
//	anything else        -> ErrUnknownUpdate
//
// # Outbound
//
// SendMessage validates the session precondition, asks the PromptBuilder for
// the assembled payload, optimistically appends the user-facing message,
// raises the sending/waiting state, and hands the payload to the Submitter.
// Failures keep the appended message and the retained raw text so the user
// can retry; success clears both.
package session
