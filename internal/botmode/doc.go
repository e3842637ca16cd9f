// Package botmode coordinates the per-conversation bot_active flag.
//
// # State machine
//
// Each conversation is in one of two states:
//
//	Idle(confirmed)              no toggle in flight
//	Pending(confirmed, target)   a toggle is in flight
//
// Toggle is only legal from Idle; a request that arrives while Pending is
// dropped outright. Entering Pending flips the effective (displayed) value
// to the target immediately, before any network call completes.
//
// # Effect ordering
//
// Inside Pending the coordinator first notifies the automation system of
// the intended change and only then mutates the store's bot_active field.
// The automation system must see the transition coming rather than
// discover it after the fact. This ordering is a policy decision agreed
// with the automation side, not something the coordinator derives.
//
// # Reconciliation
//
// A remote change event for a conversation in Pending never overwrites the
// in-flight optimistic value; it is deferred and folded into the confirmed
// baseline once the pending operation resolves. Every entry into Pending
// has exactly one exit back to Idle, carrying either the target value on
// success or the pre-toggle confirmed value on failure.
package botmode
