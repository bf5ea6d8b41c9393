// Package handler delegates detected domain conditions to independently
// owned follow-up logic.
//
// An Orchestrator runs a pure condition-detection use case once and hands
// each detected condition to the fine-grained Handler registered for its
// name. The resulting acknowledgements are folded with domain.Aggregate.
// The detecting side never references the resolving side directly; both
// meet only through the Handler interface wired at the composition root.
package handler
