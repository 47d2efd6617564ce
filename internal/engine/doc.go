// Package engine runs script instances and stops them cooperatively.
//
// ARCHITECTURE:
//
// One goroutine per instance:
// Every loaded script gets its own goroutine, mailbox and stop coordinator.
// Instances run in parallel and never coordinate with each other. The only
// cooperation is between a stop requester and the one instance it targets.
//
// Event Processing Flow:
//  1. A world collaborator calls Manager.Enqueue (any goroutine)
//  2. The event is stamped from the shared Clock and appended to the mailbox
//  3. The instance goroutine dequeues it and runs the matching handler
//  4. The handler passes checkpoints at every loop edge, jump and call site
//  5. The instance returns to Idle and waits for the next event
//
// Stop Flow:
//  1. Manager.Stop raises the instance's stop flag (at most once)
//  2. The requester blocks on the instance's done channel, bounded by a timer
//  3. The instance's next checkpoint returns script.ErrStopRequested
//  4. The handler unwinds to the dispatch boundary; the instance is Stopped
//  5. The done channel closes and every waiting requester returns
//
// A script that never reaches another checkpoint, e.g. one parked inside a
// host call that ignores the stop context, always times out. The manager
// reports it as non-cooperative and never kills its goroutine.
//
// INVARIANTS:
//   - A live instance is Idle or runs exactly one handler
//   - Checkpoints of one instance never overlap (single goroutine)
//   - Once Stopped or Faulted, an instance never runs user code again
//   - Mailbox delivery preserves enqueue order per instance
package engine
