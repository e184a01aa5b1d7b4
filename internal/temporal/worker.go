package temporal

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})
	Register(w)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// Registry is the subset of worker.Worker used for registration.
type Registry interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

// Register adds the workflow and its activities to r.
func Register(r Registry) {
	r.RegisterWorkflow(MetaboliteWorkflow)
	r.RegisterActivity(PrepareActivity)
	r.RegisterActivity(SimulateChunkActivity)
	r.RegisterActivity(FinalizeActivity)
}
