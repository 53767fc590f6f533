package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ResolvePaperActivity)
	w.RegisterActivity(a.EnsureIndexActivity)
	w.RegisterActivity(a.PlanSectionsActivity)
	w.RegisterActivity(a.DraftSectionActivity)
	w.RegisterActivity(a.SinglePassActivity)
	w.RegisterActivity(a.SaveSummaryActivity)
}
