package mcp

import "paperchat/internal/models"

type PaperInput struct {
	ItemID string `json:"item_id" jsonschema:"library item id of the paper or its PDF attachment"`
}

type AskPaperInput struct {
	ItemID   string `json:"item_id" jsonschema:"library item id of the paper or its PDF attachment"`
	Question string `json:"question" jsonschema:"question to answer from the paper"`
}

type AskPaperOutput struct {
	PaperID  string `json:"paper_id"`
	Title    string `json:"title"`
	Answer   string `json:"answer"`
	Mode     string `json:"mode"`
	Evidence int    `json:"evidence"`
}

type SummarizePaperOutput struct {
	PaperID   string               `json:"paper_id"`
	Title     string               `json:"title"`
	Mode      string               `json:"mode"`
	Summary   string               `json:"summary"`
	File      string               `json:"file,omitempty"`
	Links     []models.SectionLink `json:"links,omitempty"`
	Uncertain []string             `json:"uncertain,omitempty"`
}

type PaperOutlineOutput struct {
	Outline []models.PdfOutlineNode `json:"outline"`
	Message string                  `json:"message,omitempty"`
}

type ClearChatOutput struct {
	PaperID string `json:"paper_id"`
	Cleared bool   `json:"cleared"`
}
