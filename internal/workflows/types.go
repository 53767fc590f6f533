package workflows

type SummarizeInput struct {
	ItemID string `json:"item_id"`
	// MaxConcurrentDrafts bounds the section activities running at once.
	MaxConcurrentDrafts int `json:"max_concurrent_drafts"`
	MaxSections         int `json:"max_sections"`
}

type SummarizeProgress struct {
	ItemID        string            `json:"item_id"`
	PaperID       string            `json:"paper_id,omitempty"`
	Title         string            `json:"title,omitempty"`
	Percent       int               `json:"percent"`
	Stage         string            `json:"stage"`
	Status        string            `json:"status"`
	FailReason    string            `json:"fail_reason,omitempty"`
	TotalSections int               `json:"total_sections"`
	DoneSections  int               `json:"done_sections"`
	SectionStatus map[string]string `json:"section_status"`
}

type SummarizeResult struct {
	PaperID   string   `json:"paper_id"`
	Title     string   `json:"title"`
	Mode      string   `json:"mode"`
	Text      string   `json:"text"`
	File      string   `json:"file,omitempty"`
	Uncertain []string `json:"uncertain,omitempty"`
}
