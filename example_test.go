package switchyard_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/switchyard"
	"github.com/aretw0/switchyard/pkg/adapters/memory"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/registry"
)

type alert struct {
	EndpointID string
	Hash       string
}

// ExampleOrchestrator_Evaluate shows how a completed change-detection run is
// matched against routes without starting anything.
func ExampleOrchestrator_Evaluate() {
	route := domain.Route{
		ResponseType: "ChangeDetectionCompletion",
		Condition: domain.All(
			domain.IsTrue("polling_result.success"),
			domain.IsTrue("detection.has_new_data"),
		),
		Pipeline:    "alert",
		RequestType: "Alert",
	}

	orch, err := switchyard.New(memory.NewRepository[domain.RunState](),
		switchyard.WithRoutes(route),
		switchyard.WithRegistrar(func(reg *registry.Registry) error {
			reg.RegisterTransformer("ChangeDetectionCompletion", "Alert", registry.Transform(
				func(c domain.ChangeDetectionCompletion) (alert, error) {
					return alert{EndpointID: c.EndpointID, Hash: c.Detection.CurrentHash}, nil
				}))
			return nil
		}),
	)
	if err != nil {
		log.Fatal(err)
	}

	completion := domain.ChangeDetectionCompletion{
		EndpointID:    "feed",
		PollingResult: domain.PollingResult{Success: true},
		Detection:     domain.DetectionOutcome{HasNewData: true, CurrentHash: "abc123"},
	}
	res := orch.Evaluate(context.Background(), "ChangeDetectionCompletion", completion)
	for _, d := range res.Dispatches {
		a := d.Request.(alert)
		fmt.Println(d.Pipeline, a.EndpointID, a.Hash)
	}

	completion.Detection.HasNewData = false
	res = orch.Evaluate(context.Background(), "ChangeDetectionCompletion", completion)
	fmt.Println(len(res.Dispatches))

	// Output:
	// alert feed abc123
	// 0
}
