/*
Package durable is an in-process durable-execution substrate for pipelines.

The Engine persists every run as a domain.RunState. Each suspension point of
a run (activities, timers and clock reads issued through package pipeline) is
appended to the run's journal and checkpointed before the use case moves on.
Resuming a run re-executes its use case against the journal: recorded
outcomes are returned instead of calling dependencies again, and a use case
that issues a different sequence of calls fails with
domain.ErrNonDeterministic.

When a run completes, the Engine asks its Dispatcher which downstream
pipelines the response routes to and starts one child run per dispatch, with
ids derived from the parent so a replayed parent never starts a child twice.

The Scheduler drives periodic change-detection runs and carries each
endpoint's last completion into its next run.
*/
package durable
