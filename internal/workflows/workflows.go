package workflows

import (
	"strings"
	"time"

	"paperchat/internal/activities"
	"paperchat/internal/library"
	"paperchat/internal/models"
	"paperchat/internal/planner"
	"paperchat/internal/sections"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetProgress = "GetProgress"

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SummarizeWorkflow is the durable form of the section planner: one activity
// per step, section drafts fanned out in batches, progress exposed through
// the GetProgress query.
func SummarizeWorkflow(ctx workflow.Context, input SummarizeInput) (SummarizeResult, error) {
	progress := SummarizeProgress{
		ItemID:        input.ItemID,
		Status:        StatusRunning,
		Stage:         "resolving",
		SectionStatus: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (SummarizeProgress, error) {
		return progress, nil
	}); err != nil {
		return SummarizeResult{}, err
	}
	report := func(pct int, stage string) {
		if pct > progress.Percent {
			progress.Percent = pct
		}
		progress.Stage = stage
	}
	fail := func(err error) (SummarizeResult, error) {
		progress.Status = StatusFailed
		progress.FailReason = err.Error()
		return SummarizeResult{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	var resolved activities.ResolvePaperOutput
	if err := workflow.ExecuteActivity(ctx, "ResolvePaperActivity", activities.ResolvePaperInput{ItemID: input.ItemID}).Get(ctx, &resolved); err != nil {
		return fail(err)
	}
	paper := resolved.Paper
	progress.PaperID = paper.PaperID
	progress.Title = paper.Title

	var indexOut activities.EnsureIndexOutput
	if err := workflow.ExecuteActivity(ctx, "EnsureIndexActivity", activities.PaperInput{Paper: paper}).Get(ctx, &indexOut); err != nil {
		return fail(err)
	}
	report(10, planner.StageIndexReady)

	var planOut activities.PlanSectionsOutput
	if err := workflow.ExecuteActivity(ctx, "PlanSectionsActivity", activities.PaperInput{Paper: paper}).Get(ctx, &planOut); err != nil {
		logger.Warn("section plan failed", "paper_id", paper.PaperID, "error", err)
	}
	plan := sections.Limit(planOut.Sections, input.MaxSections)
	progress.TotalSections = len(plan)
	report(25, planner.StageContext)

	drafts := draftSections(ctx, paper, plan, input.MaxConcurrentDrafts, &progress, report)

	summary := planner.Summary{Mode: planner.ModeSections, Sections: plan}
	report(90, planner.StageComposing)
	if len(drafts) > 0 {
		summary.Text, summary.Uncertain = planner.Compose(paper.Title, plan, drafts)
		summary.Links = planner.SectionLinks(summary.Text, plan, attachmentID(paper))
	}
	if strings.TrimSpace(summary.Text) == "" {
		var single activities.SinglePassOutput
		if err := workflow.ExecuteActivity(ctx, "SinglePassActivity", activities.PaperInput{Paper: paper}).Get(ctx, &single); err != nil {
			return fail(err)
		}
		summary = planner.Summary{Text: single.Text, Mode: planner.ModeSinglePass}
	}

	var saved activities.SaveSummaryOutput
	if err := workflow.ExecuteActivity(ctx, "SaveSummaryActivity", activities.SaveSummaryInput{Paper: paper, Summary: summary}).Get(ctx, &saved); err != nil {
		return fail(err)
	}
	report(100, planner.StageComplete)
	progress.Status = StatusCompleted

	return SummarizeResult{
		PaperID:   paper.PaperID,
		Title:     paper.Title,
		Mode:      summary.Mode,
		Text:      summary.Text,
		File:      saved.File,
		Uncertain: summary.Uncertain,
	}, nil
}

// draftSections runs DraftSectionActivity in batches and returns the drafts
// keyed by section path. Failed sections are left out.
func draftSections(ctx workflow.Context, paper library.Resolved, plan []models.PdfSectionContext, batch int, progress *SummarizeProgress, report func(int, string)) map[string]string {
	if batch <= 0 {
		batch = 4
	}
	drafts := map[string]string{}
	total := len(plan)
	for i := 0; i < total; i += batch {
		end := i + batch
		if end > total {
			end = total
		}
		futures := make([]workflow.Future, 0, end-i)
		for _, sec := range plan[i:end] {
			progress.SectionStatus[sec.Path] = "drafting"
			futures = append(futures, workflow.ExecuteActivity(ctx, "DraftSectionActivity", activities.DraftSectionInput{Paper: paper, Section: sec}))
		}
		for j, f := range futures {
			sec := plan[i+j]
			var out activities.DraftSectionOutput
			if err := f.Get(ctx, &out); err != nil || strings.TrimSpace(out.Text) == "" {
				progress.SectionStatus[sec.Path] = "failed"
			} else {
				drafts[sec.Path] = out.Text
				progress.SectionStatus[sec.Path] = "done"
			}
			progress.DoneSections++
			report(25+60*progress.DoneSections/total, planner.StageDrafting)
		}
	}
	return drafts
}

func attachmentID(res library.Resolved) string {
	if res.AttachmentItem == nil {
		return ""
	}
	return res.AttachmentItem.ID
}

// WorkflowID names a summarize run for itemID; suffix keeps runs distinct.
func WorkflowID(itemID, suffix string) string {
	return "summarize-" + sanitizeID(itemID) + "-" + suffix
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, ":", "-")
	return s
}
