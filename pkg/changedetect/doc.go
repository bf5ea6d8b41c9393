// Package changedetect polls an endpoint and reports whether its content
// changed since the previous run.
//
// A run's only state is the completion record of the run before it, handed
// back by the scheduler as ChangeDetectionRequest.PreviousCompletion. A first
// run never reports new data.
package changedetect
