package planner

import (
	"strings"

	"paperchat/internal/models"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

var markdown = goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID()))

// SectionLinks finds the headings of a composed summary and maps those that
// name a planned section to the section's first page.
func SectionLinks(summary string, plan []models.PdfSectionContext, attachmentID string) []models.SectionLink {
	src := []byte(summary)
	doc := markdown.Parser().Parse(text.NewReader(src))
	tree, err := toc.Inspect(doc, src, toc.Compact(true))
	if err != nil {
		return nil
	}
	headings := make([]string, 0, len(plan))
	var walk func(items toc.Items)
	walk = func(items toc.Items) {
		for _, it := range items {
			if len(it.Title) > 0 {
				headings = append(headings, string(it.Title))
			}
			walk(it.Items)
		}
	}
	walk(tree.Items)

	links := make([]models.SectionLink, 0, len(plan))
	cursor := 0
	for _, h := range headings {
		key := headingKey(h)
		for i := cursor; i < len(plan); i++ {
			if headingKey(plan[i].Title) != key {
				continue
			}
			cursor = i + 1
			if plan[i].StartPageNumber != nil {
				links = append(links, models.SectionLink{
					Title:        strings.TrimSpace(plan[i].Title),
					PageNumber:   *plan[i].StartPageNumber,
					AttachmentID: attachmentID,
				})
			}
			break
		}
	}
	return links
}

func headingKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
