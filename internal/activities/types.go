package activities

import (
	"paperchat/internal/library"
	"paperchat/internal/models"
	"paperchat/internal/planner"
)

type ResolvePaperInput struct {
	ItemID string `json:"item_id"`
}

type ResolvePaperOutput struct {
	Paper library.Resolved `json:"paper"`
}

type PaperInput struct {
	Paper library.Resolved `json:"paper"`
}

type EnsureIndexOutput struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

type PlanSectionsOutput struct {
	Sections []models.PdfSectionContext `json:"sections"`
}

type DraftSectionInput struct {
	Paper   library.Resolved         `json:"paper"`
	Section models.PdfSectionContext `json:"section"`
}

type DraftSectionOutput struct {
	Text string `json:"text"`
}

type SinglePassOutput struct {
	Text string `json:"text"`
}

type SaveSummaryInput struct {
	Paper   library.Resolved `json:"paper"`
	Summary planner.Summary  `json:"summary"`
}

type SaveSummaryOutput struct {
	File string `json:"file,omitempty"`
}
