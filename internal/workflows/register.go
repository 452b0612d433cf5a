package workflows

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker) {
	w.RegisterWorkflow(CorpusIngestWorkflow)
	w.RegisterWorkflow(PaperIngestWorkflow)
	w.RegisterWorkflow(RebuildIndexWorkflow)
}
