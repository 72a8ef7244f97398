package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.EnsureSchemaActivity)
	w.RegisterActivity(a.IngestKindActivity)
	w.RegisterActivity(a.LinkKindActivity)
	w.RegisterActivity(a.ResolveKindActivity)
	w.RegisterActivity(a.WriteRunSummaryActivity)
}
