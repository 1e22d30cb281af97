// Package engine implements the omnilink command dispatch engine.
//
// The engine owns an ordered list of compiled templates, a routing table,
// before/after middleware chains, a bounded event history, and counters.
// Transport adapters drive it through Handle and never touch its state.
//
// ARCHITECTURE:
//
// Synchronous Pipeline:
// Every Handle call is an independent transaction on the caller's
// goroutine:
// 1. Stamp the event (wall clock, logical seq, ID) and parse the text
// 2. Under the engine lock: append to history, bump counters, snapshot
// the routes and middleware
// 3. Outside the lock: before-middleware, first matching route,
// after-middleware
// 4. Return the Result
//
// Handlers and middleware never run while the lock is held, so a slow
// handler does not delay bookkeeping of concurrent Handle calls.
//
// Failure Containment:
// Handle never returns an error and never panics. Route failures become
// ir.ErrorResult values; middleware failures are logged and swallowed.
// Only template compilation can fail, and it does so before a pattern is
// registered.
//
// Ordering:
// Templates match in registration order (first match wins). Routes are
// scanned in registration order (first true predicate wins). Additions
// are append-only; nothing is ever removed or reordered.
package engine
