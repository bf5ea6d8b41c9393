// Package pipeline wraps a use case for durable execution.
//
// A Pipeline owns one use case instance and adds no business logic: it
// tracks the step the use case reports, runs the retry loop declared by its
// RetryPolicy and answers status queries at any time, including mid-run.
//
// Use cases reach their dependencies through Call (or the Proxy* wrappers)
// and read time through Now. When the context carries a
// ports.ActivityRunner, each of those calls becomes a suspension point the
// durable substrate can retry, record and replay. Without a runner they are
// plain function calls, which is what unit tests of a use case want.
package pipeline
