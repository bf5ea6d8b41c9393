// Package dispatch decides which downstream pipelines a completed response
// should start.
//
// A Dispatcher evaluates every route registered for the response's type,
// builds the request of each matching route (through a registered
// transformer or by structural pass-through) and returns the resulting
// dispatches as data. It never starts anything itself; executing dispatches
// is the durable substrate's job, which keeps routing replay-safe.
package dispatch
