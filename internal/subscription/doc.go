// Package subscription implements the Subscription Engine component.
//
// The Subscription Engine:
//   - Turns subscribe requests into cancellable periodic poll tasks
//   - Enforces at most one in-flight poll per subscription (ticks are
//     skipped, never queued)
//   - Keeps a failed poll from stopping the timer; only unsubscribe or
//     connection close tears a task down
//   - Scopes subscription ids per connection
package subscription
