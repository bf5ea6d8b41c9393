/*
Package domain contains the core value types shared by every switchyard component.

It defines what flows between the pieces of the orchestration core: the
conditions a route is guarded by, the routes and dispatches produced when a
pipeline completes, the records carried between change-detection runs, the
acknowledgements handlers return, and the run state the durable substrate
persists. This package is kept pure and free of I/O.

# Key Entities

  - FieldCondition / PipelineCondition: inspectable predicates over a response.
  - Route: response type + condition → target pipeline + request type.
  - Dispatch: one (pipeline, request) pair produced by matching routes.
  - ChangeDetectionCompletion: the full outcome of one poll, fed back verbatim as
    the previous completion of the next scheduled run.
  - Acknowledgement: accept/reject plus info, warning and error messages.
  - RunState: what the durable substrate checkpoints for one pipeline run.
*/
package domain
