// Package activities exposes the summarization steps to Temporal workers.
package activities

import (
	"context"
	"errors"
	"fmt"

	"paperchat/internal/chat"
	"paperchat/internal/planner"
	"paperchat/internal/util"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

type Activities struct {
	svc     *chat.Service
	index   planner.Indexer
	planner *planner.Planner
}

func New(svc *chat.Service, index planner.Indexer) *Activities {
	return &Activities{svc: svc, index: index, planner: svc.Planner()}
}

func (a *Activities) ResolvePaperActivity(ctx context.Context, in ResolvePaperInput) (ResolvePaperOutput, error) {
	res, err := a.svc.Resolve(ctx, in.ItemID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return ResolvePaperOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), "NotFound", err)
		}
		return ResolvePaperOutput{}, err
	}
	return ResolvePaperOutput{Paper: res}, nil
}

func (a *Activities) EnsureIndexActivity(ctx context.Context, in PaperInput) (EnsureIndexOutput, error) {
	idx, err := a.index.EnsureIndex(ctx, in.Paper)
	if err != nil {
		if errors.Is(err, util.ErrContentUnavailable) {
			return EnsureIndexOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), "ContentUnavailable", err)
		}
		return EnsureIndexOutput{}, err
	}
	return EnsureIndexOutput{Source: idx.Source, Chunks: len(idx.Chunks)}, nil
}

func (a *Activities) PlanSectionsActivity(ctx context.Context, in PaperInput) (PlanSectionsOutput, error) {
	plan, err := a.planner.Plan(ctx, in.Paper)
	if err != nil {
		activity.GetLogger(ctx).Warn("section plan unavailable", "paper_id", in.Paper.PaperID, "error", err)
		return PlanSectionsOutput{}, nil
	}
	return PlanSectionsOutput{Sections: plan}, nil
}

func (a *Activities) DraftSectionActivity(ctx context.Context, in DraftSectionInput) (DraftSectionOutput, error) {
	text, err := a.planner.DraftSection(ctx, in.Paper, in.Section)
	if err != nil {
		return DraftSectionOutput{}, fmt.Errorf("draft %q: %w", in.Section.Title, err)
	}
	return DraftSectionOutput{Text: text}, nil
}

func (a *Activities) SinglePassActivity(ctx context.Context, in PaperInput) (SinglePassOutput, error) {
	idx, err := a.index.EnsureIndex(ctx, in.Paper)
	if err != nil {
		return SinglePassOutput{}, err
	}
	text, err := a.planner.SinglePass(ctx, in.Paper, idx)
	if err != nil {
		return SinglePassOutput{}, err
	}
	return SinglePassOutput{Text: text}, nil
}

func (a *Activities) SaveSummaryActivity(ctx context.Context, in SaveSummaryInput) (SaveSummaryOutput, error) {
	out, err := a.svc.SaveSummary(ctx, in.Paper, in.Summary)
	if err != nil {
		return SaveSummaryOutput{}, err
	}
	return SaveSummaryOutput{File: out.File}, nil
}
