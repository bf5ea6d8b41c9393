/*
Package switchyard is the orchestration core of a workflow system: durable
pipelines, declarative result routing, hash-based change detection and
handler delegation.

# Concept

A pipeline runs one use case durably. When it completes, its response is
routed: every registered route whose response type and condition match
yields a (pipeline, request) dispatch, and the durable engine starts each
one as a child run. Change detection is itself a pipeline. It polls an
endpoint, hashes the content and compares it with the previous completion,
which the scheduler hands back on the next tick.

Dependency calls inside a use case go through pipeline.Call. The engine
journals their results, so a resumed run replays them instead of calling
the dependency again.

# Usage

	runs := memory.NewRepository[domain.RunState]()
	orch, err := switchyard.New(runs,
		switchyard.WithEndpoints(domain.PollingConfig{
			EndpointID: "feed",
			URL:        "https://example.com/feed.xml",
			Interval:   time.Minute,
		}),
		switchyard.WithRoutes(domain.Route{
			ResponseType: "ChangeDetectionCompletion",
			Condition:    domain.All(domain.IsTrue("detection.has_new_data")),
			Pipeline:     "notify",
			RequestType:  "NotifyRequest",
		}),
		switchyard.WithPipelines(notifyDefinition),
	)
	if err != nil {
		log.Fatal(err)
	}
	err = orch.Run(ctx)

The cmd/switchyard binary assembles the same pieces from a YAML or TOML
file and adds the HTTP API, Prometheus metrics and the MCP server.
*/
package switchyard
