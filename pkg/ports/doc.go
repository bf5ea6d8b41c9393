/*
Package ports defines the driven ports (interfaces) of the orchestration core.

These interfaces decouple the core from concrete collaborators, so that use
cases, storage, polling and the durable-execution substrate can all be swapped
at the composition root.

# Key Interfaces

  - UseCase: a pure, deterministic Request → Response business operation.
  - Repository: get/save/list/delete storage of one entity type.
  - Poller: fetches the content of an external endpoint.
  - Handler / NewDataHandler: hands a detected condition to follow-up logic.
  - ActivityRunner: the substrate contract every proxied dependency call goes through.
  - DistributedLocker: cross-replica mutual exclusion.
*/
package ports
