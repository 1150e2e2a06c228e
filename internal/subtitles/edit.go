package subtitles

import (
	"fmt"

	"subtitler/internal/services"
)

// SetText replaces the text of the block whose index is index. The document
// is modified in place.
func SetText(doc *Document, index int, text string) error {
	if doc == nil {
		return services.Wrap(services.ErrValidation, "edit", "set text", "document is nil", nil)
	}
	text = singleLine(text)
	if text == "" {
		return services.Wrap(services.ErrValidation, "edit", "set text", "text must not be empty", nil)
	}
	for i := range doc.Blocks {
		if doc.Blocks[i].Index == index {
			doc.Blocks[i].Text = text
			return nil
		}
	}
	return services.Wrap(services.ErrNotFound, "edit", "set text", fmt.Sprintf("no block with index %d", index), nil)
}

// Validate reports structural problems in doc. An empty result means the
// document has contiguous 1-based indices, positive durations, and
// non-decreasing start times.
func Validate(doc Document) []string {
	if len(doc.Blocks) == 0 {
		return []string{"empty_document"}
	}
	var issues []string
	for i, block := range doc.Blocks {
		if block.Index != i+1 {
			issues = append(issues, fmt.Sprintf("non_contiguous_index: position %d has index %d", i+1, block.Index))
		}
		if block.End <= block.Start {
			issues = append(issues, fmt.Sprintf("invalid_range: block %d ends at or before its start (%s --> %s)",
				block.Index, FormatTimestamp(block.Start), FormatTimestamp(block.End)))
		}
		if i > 0 && block.Start < doc.Blocks[i-1].Start {
			issues = append(issues, fmt.Sprintf("non_monotonic_start: block %d starts before block %d",
				block.Index, doc.Blocks[i-1].Index))
		}
	}
	return issues
}
